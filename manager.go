package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/Kalito-Labs/luna-memory/storage"
	"github.com/Kalito-Labs/luna-memory/summarize"
)

// Manager is the conversational memory orchestrator. It owns the read cache,
// the importance scorer, and the summarizer, and mediates all reads and
// writes against the store. Turns within one session are expected to be
// serialized by the caller; turns across sessions may run concurrently.
type Manager struct {
	store      storage.Store
	cache      *ReadCache
	scorer     *Scorer
	summarizer *summarize.Summarizer
	config     *Config
	logger     Logger

	// mu guards summarizing, the per-session in-flight marker that keeps
	// overlapping trigger checks from compacting the same range twice.
	mu          sync.Mutex
	summarizing map[uuid.UUID]bool
}

// New creates a Manager. client is used for cloud summarization and optional
// token measurement; it may be nil, in which case summarization relies on
// the local endpoint and the extractive fallback. A nil config uses defaults
// and a nil logger discards output.
func New(store storage.Store, client *anthropic.Client, config *Config, logger Logger) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if config == nil {
		config = DefaultConfig()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = noopLogger{}
	}

	var local summarize.Completer
	if config.LocalBaseURL != "" {
		local = summarize.NewLocalCompleter(config.LocalBaseURL, config.LocalModel, config.SummarizerTimeout)
	}
	var cloud summarize.Completer
	var counter *summarize.TokenCounter
	if client != nil {
		cloud = summarize.NewAnthropicCompleter(client, config.SummarizerModel)
		if config.MeasureTokens {
			counter = summarize.NewTokenCounter(client, config.SummarizerModel)
		}
	}

	summarizer := summarize.NewSummarizer(summarize.Config{
		Local:     local,
		Cloud:     cloud,
		Validator: summarize.NewValidator(config.Validator),
		Counter:   counter,
		Timeout:   config.SummarizerTimeout,
		MaxTokens: config.SummarizerMaxTokens,
		Logger:    logger,
	})

	return &Manager{
		store:       store,
		cache:       NewReadCache(config.CacheTTL),
		scorer:      NewScorer(config.Scorer),
		summarizer:  summarizer,
		config:      config,
		logger:      logger,
		summarizing: make(map[uuid.UUID]bool),
	}, nil
}

// AppendMessage scores and appends one message to the session log. A zero
// importance is filled in by the scorer. The session's cache entries are
// invalidated before returning, so a read issued after this call never
// observes the pre-write state.
func (m *Manager) AppendMessage(ctx context.Context, params storage.AppendMessageParams) (*storage.Message, error) {
	if params.Importance == 0 {
		params.Importance = m.scorer.Score(params.Role, params.Text)
	}

	msg, err := m.store.AppendMessage(ctx, params)
	if err != nil {
		return nil, WrapError("AppendMessage", params.SessionID, err)
	}

	m.cache.Invalidate(params.SessionID)
	m.logger.Debug("message appended",
		"session_id", params.SessionID,
		"message_id", msg.ID,
		"role", msg.Role,
		"importance", msg.Importance)
	return msg, nil
}

// RescoreMessage recomputes and persists a message's importance.
func (m *Manager) RescoreMessage(ctx context.Context, msg *storage.Message) (float64, error) {
	score := m.scorer.Score(msg.Role, msg.Text)
	if err := m.store.UpdateMessageImportance(ctx, msg.ID, score); err != nil {
		return 0, NewMemoryError("RescoreMessage", err).WithSession(msg.SessionID).WithContext("message_id", msg.ID)
	}
	m.cache.Invalidate(msg.SessionID)
	return score, nil
}

// CreatePin persists a semantic pin. A zero importance is scored from the
// pin content and an empty type defaults to manual.
func (m *Manager) CreatePin(ctx context.Context, params storage.CreatePinParams) (*storage.SemanticPin, error) {
	if params.Importance == 0 {
		params.Importance = m.scorer.Score(storage.RoleUser, params.Content)
	}
	if params.Type == "" {
		params.Type = storage.PinManual
	}

	pin, err := m.store.CreatePin(ctx, params)
	if err != nil {
		return nil, WrapError("CreatePin", params.SessionID, err)
	}

	m.cache.Invalidate(params.SessionID)
	m.logger.Debug("pin created",
		"session_id", params.SessionID,
		"pin_id", pin.ID,
		"type", pin.Type)
	return pin, nil
}

// DeletePin removes a pin and invalidates the session's cache entries.
func (m *Manager) DeletePin(ctx context.Context, sessionID uuid.UUID, pinID int64) error {
	if err := m.store.DeletePin(ctx, pinID); err != nil {
		return NewMemoryError("DeletePin", err).WithSession(sessionID).WithContext("pin_id", pinID)
	}
	m.cache.Invalidate(sessionID)
	return nil
}

// BuildContext assembles a size-bounded memory context for the session:
// recent messages (excluding the just-submitted turn), top pins, and recent
// summaries, truncated against the budget. A budget of zero or less uses the
// configured default.
//
// A degraded context is always preferable to failing the turn: when the
// store is unavailable the affected group comes back empty and the miss is
// logged, never surfaced as an error.
func (m *Manager) BuildContext(ctx context.Context, sessionID uuid.UUID, tokenBudget int) *MemoryContext {
	if tokenBudget <= 0 {
		tokenBudget = m.config.TokenBudget
	}

	messages := m.cachedMessages(ctx, sessionID)
	pins := m.cachedPins(ctx, sessionID)
	summaries := m.cachedSummaries(ctx, sessionID)

	// Rows written before scoring existed carry a zero importance; score
	// them in memory so truncation ordering holds. Persistence is left to
	// RescoreMessage.
	for _, msg := range messages {
		if msg.Importance == 0 {
			msg.Importance = m.scorer.Score(msg.Role, msg.Text)
		}
	}

	out := assembleContext(sessionID, messages, pins, summaries,
		tokenBudget, m.config.MinRecentKept, m.config.TokenRatio)

	if out.Truncated {
		m.logger.Debug("context truncated",
			"session_id", sessionID,
			"budget", tokenBudget,
			"total_tokens", out.TotalTokens,
			"messages", len(out.Messages),
			"pins", len(out.Pins),
			"summaries", len(out.Summaries))
	}
	return out
}

// Cache query shapes. Keys are session-scoped; Invalidate removes all of a
// session's shapes at once.
func (m *Manager) messagesShape() string {
	return fmt.Sprintf("recent-messages:limit=%d:skip=1", m.config.RecentWindow)
}

func (m *Manager) pinsShape() string {
	return fmt.Sprintf("top-pins:limit=%d", m.config.PinLimit)
}

func (m *Manager) summariesShape() string {
	return fmt.Sprintf("recent-summaries:limit=%d", m.config.SummaryLimit)
}

func (m *Manager) cachedMessages(ctx context.Context, sessionID uuid.UUID) []*storage.Message {
	shape := m.messagesShape()
	if v, ok := m.cache.Get(sessionID, shape); ok {
		if messages, ok := v.([]*storage.Message); ok {
			return storage.CloneMessages(messages)
		}
	}

	messages, err := m.store.RecentMessages(ctx, sessionID, m.config.RecentWindow, 1)
	if err != nil {
		m.logger.Warn("recent messages unavailable, degrading to empty history",
			"session_id", sessionID, "error", err)
		return nil
	}

	m.cache.Put(sessionID, shape, storage.CloneMessages(messages))
	return messages
}

func (m *Manager) cachedPins(ctx context.Context, sessionID uuid.UUID) []*storage.SemanticPin {
	shape := m.pinsShape()
	if v, ok := m.cache.Get(sessionID, shape); ok {
		if pins, ok := v.([]*storage.SemanticPin); ok {
			return storage.ClonePins(pins)
		}
	}

	pins, err := m.store.TopPins(ctx, sessionID, m.config.PinLimit)
	if err != nil {
		m.logger.Warn("pins unavailable, degrading to none",
			"session_id", sessionID, "error", err)
		return nil
	}

	m.cache.Put(sessionID, shape, storage.ClonePins(pins))
	return pins
}

func (m *Manager) cachedSummaries(ctx context.Context, sessionID uuid.UUID) []*storage.ConversationSummary {
	shape := m.summariesShape()
	if v, ok := m.cache.Get(sessionID, shape); ok {
		if summaries, ok := v.([]*storage.ConversationSummary); ok {
			return storage.CloneSummaries(summaries)
		}
	}

	summaries, err := m.store.RecentSummaries(ctx, sessionID, m.config.SummaryLimit)
	if err != nil {
		m.logger.Warn("summaries unavailable, degrading to none",
			"session_id", sessionID, "error", err)
		return nil
	}

	m.cache.Put(sessionID, shape, storage.CloneSummaries(summaries))
	return summaries
}
