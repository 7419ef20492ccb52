package memory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Kalito-Labs/luna-memory/storage"
	"github.com/Kalito-Labs/luna-memory/summarize"
)

// Stats reports a session's compaction state, derived from the store rather
// than carried in memory so it survives restarts.
type Stats struct {
	// MessageCount is the total number of messages in the session.
	MessageCount int

	// MessagesSinceSummary is the number of messages appended after the
	// latest summary. Equals MessageCount when never summarized.
	MessagesSinceSummary int

	// LastSummaryAt is when the latest summary was created, nil when the
	// session has never been summarized.
	LastSummaryAt *time.Time
}

// Stats returns the session's compaction state.
func (m *Manager) Stats(ctx context.Context, sessionID uuid.UUID) (*Stats, error) {
	total, err := m.store.MessageCount(ctx, sessionID)
	if err != nil {
		return nil, WrapError("Stats", sessionID, err)
	}

	latest, err := m.store.LatestSummary(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return &Stats{MessageCount: total, MessagesSinceSummary: total}, nil
	}
	if err != nil {
		return nil, WrapError("Stats", sessionID, err)
	}

	since, err := m.store.MessageCountSince(ctx, sessionID, latest.CreatedAt)
	if err != nil {
		return nil, WrapError("Stats", sessionID, err)
	}

	at := latest.CreatedAt
	return &Stats{
		MessageCount:         total,
		MessagesSinceSummary: since,
		LastSummaryAt:        &at,
	}, nil
}

// MaybeSummarize checks whether the session has accumulated enough messages
// since its last summary and, if so, compacts the uncovered range into a new
// summary. It returns the created summary, or nil when the trigger did not
// fire. Callers invoke it after each turn; it is cheap when idle.
//
// The check-and-compact state is derived from the store on every call, so a
// failed attempt leaves nothing to roll back and the next turn simply
// retries. ErrSummarizationInProgress is returned when a concurrent call is
// already compacting this session.
func (m *Manager) MaybeSummarize(ctx context.Context, sessionID uuid.UUID) (*storage.ConversationSummary, error) {
	if !m.beginSummarize(sessionID) {
		return nil, WrapError("MaybeSummarize", sessionID, ErrSummarizationInProgress)
	}
	defer m.endSummarize(sessionID)

	startID, pending, err := m.pendingRange(ctx, sessionID)
	if err != nil {
		return nil, WrapError("MaybeSummarize", sessionID, err)
	}
	if pending < m.config.SummaryThreshold {
		return nil, nil
	}

	messages, err := m.store.MessagesInRange(ctx, sessionID, startID, 0)
	if err != nil {
		return nil, WrapError("MaybeSummarize", sessionID, err)
	}
	if len(messages) == 0 {
		return nil, nil
	}

	text := m.summarizer.Summarize(ctx, toSummarizeMessages(messages))
	if text == "" {
		return nil, WrapError("MaybeSummarize", sessionID, ErrSummarizationFailed)
	}

	summary, err := m.store.CreateSummary(ctx, storage.CreateSummaryParams{
		SessionID:      sessionID,
		Text:           text,
		MessageCount:   len(messages),
		StartMessageID: messages[0].ID,
		EndMessageID:   messages[len(messages)-1].ID + 1,
		Importance:     storage.SummaryImportance,
	})
	if err != nil {
		return nil, NewMemoryError("MaybeSummarize", errors.Join(ErrSummarizationFailed, err)).WithSession(sessionID)
	}

	m.cache.Invalidate(sessionID)
	m.logger.Info("conversation summarized",
		"session_id", sessionID,
		"summary_id", summary.ID,
		"messages", summary.MessageCount,
		"start_id", summary.StartMessageID,
		"end_id", summary.EndMessageID)
	return summary, nil
}

// pendingRange returns the first uncovered message id and how many messages
// have accumulated since the latest summary.
func (m *Manager) pendingRange(ctx context.Context, sessionID uuid.UUID) (int64, int, error) {
	latest, err := m.store.LatestSummary(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		count, err := m.store.MessageCount(ctx, sessionID)
		if err != nil {
			return 0, 0, err
		}
		return 0, count, nil
	}
	if err != nil {
		return 0, 0, err
	}

	count, err := m.store.MessageCountSince(ctx, sessionID, latest.CreatedAt)
	if err != nil {
		return 0, 0, err
	}
	return latest.EndMessageID, count, nil
}

func (m *Manager) beginSummarize(sessionID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.summarizing[sessionID] {
		return false
	}
	m.summarizing[sessionID] = true
	return true
}

func (m *Manager) endSummarize(sessionID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.summarizing, sessionID)
}

func toSummarizeMessages(messages []*storage.Message) []summarize.Message {
	out := make([]summarize.Message, len(messages))
	for i, msg := range messages {
		out[i] = summarize.Message{Role: msg.Role, Content: msg.Text}
	}
	return out
}
