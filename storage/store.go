package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for store operations.
var (
	// ErrUnavailable indicates the backing store cannot be reached or a
	// query failed. Callers are expected to degrade to a partial or empty
	// context rather than fail the conversational turn.
	ErrUnavailable = errors.New("message store unavailable")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Pin types.
const (
	PinManual = "manual"
	PinAuto   = "auto"
)

// DefaultImportance is the neutral baseline score assigned to records
// whose importance has not been computed yet.
const DefaultImportance = 0.5

// SummaryImportance is the fixed score given to conversation summaries.
// Summaries compress many turns, so they always rank high.
const SummaryImportance = 0.9

// MessageUsage records provider token usage for a message, when known.
type MessageUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (u *MessageUsage) TotalTokens() int {
	if u == nil {
		return 0
	}
	return u.InputTokens + u.OutputTokens
}

// Message is one turn fragment in a session's append-only log.
// Messages are immutable once written, except for the lazily recomputed
// importance score.
type Message struct {
	ID         int64         `json:"id"`
	SessionID  uuid.UUID     `json:"session_id"`
	Role       string        `json:"role"`
	Text       string        `json:"text"`
	ModelID    *string       `json:"model_id,omitempty"`
	Usage      *MessageUsage `json:"usage,omitempty"`
	Importance float64       `json:"importance"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.ModelID != nil {
		v := *m.ModelID
		out.ModelID = &v
	}
	if m.Usage != nil {
		u := *m.Usage
		out.Usage = &u
	}
	return &out
}

// ConversationSummary is a compressed record of a half-open message range
// [StartMessageID, EndMessageID). Summaries are immutable; later summaries
// supersede earlier ones, and the latest summary per session defines where
// the next compression resumes.
type ConversationSummary struct {
	ID             int64     `json:"id"`
	SessionID      uuid.UUID `json:"session_id"`
	Text           string    `json:"text"`
	MessageCount   int       `json:"message_count"`
	StartMessageID int64     `json:"start_message_id"`
	EndMessageID   int64     `json:"end_message_id"`
	Importance     float64   `json:"importance"`
	CreatedAt      time.Time `json:"created_at"`
}

// Clone returns a copy of the summary.
func (s *ConversationSummary) Clone() *ConversationSummary {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

// SemanticPin is a curated high-value fact, retained independently of the
// rolling message window. SourceMessageID is a weak reference: it may point
// at a message that has scrolled out of the active window and is never
// dereferenced for existence.
type SemanticPin struct {
	ID              int64     `json:"id"`
	SessionID       uuid.UUID `json:"session_id"`
	Content         string    `json:"content"`
	SourceMessageID *int64    `json:"source_message_id,omitempty"`
	Importance      float64   `json:"importance"`
	Type            string    `json:"type"`
	CreatedAt       time.Time `json:"created_at"`
}

// Clone returns a deep copy of the pin.
func (p *SemanticPin) Clone() *SemanticPin {
	if p == nil {
		return nil
	}
	out := *p
	if p.SourceMessageID != nil {
		v := *p.SourceMessageID
		out.SourceMessageID = &v
	}
	return &out
}

// CloneMessages deep-copies a message slice.
func CloneMessages(messages []*Message) []*Message {
	if messages == nil {
		return nil
	}
	out := make([]*Message, len(messages))
	for i, m := range messages {
		out[i] = m.Clone()
	}
	return out
}

// CloneSummaries deep-copies a summary slice.
func CloneSummaries(summaries []*ConversationSummary) []*ConversationSummary {
	if summaries == nil {
		return nil
	}
	out := make([]*ConversationSummary, len(summaries))
	for i, s := range summaries {
		out[i] = s.Clone()
	}
	return out
}

// ClonePins deep-copies a pin slice.
func ClonePins(pins []*SemanticPin) []*SemanticPin {
	if pins == nil {
		return nil
	}
	out := make([]*SemanticPin, len(pins))
	for i, p := range pins {
		out[i] = p.Clone()
	}
	return out
}

// AppendMessageParams are the inputs for appending one message.
type AppendMessageParams struct {
	SessionID  uuid.UUID
	Role       string
	Text       string
	ModelID    *string
	Usage      *MessageUsage
	Importance float64
}

// CreateSummaryParams are the inputs for persisting one summary.
type CreateSummaryParams struct {
	SessionID      uuid.UUID
	Text           string
	MessageCount   int
	StartMessageID int64
	EndMessageID   int64
	Importance     float64
}

// CreatePinParams are the inputs for creating one semantic pin.
type CreatePinParams struct {
	SessionID       uuid.UUID
	Content         string
	SourceMessageID *int64
	Importance      float64
	Type            string
}

// Store is the persistence contract for session memory: the ordered message
// log, derived summaries, and semantic pins. Implementations map backend
// failures to ErrUnavailable so callers can degrade instead of failing a turn.
type Store interface {
	// AppendMessage appends one message to the session log and returns the
	// stored record with its assigned id and timestamp.
	AppendMessage(ctx context.Context, params AppendMessageParams) (*Message, error)

	// RecentMessages returns up to limit messages ordered oldest first,
	// skipping the skipNewest most recent rows. Callers assembling
	// historical context pass skipNewest=1 so the just-submitted turn is
	// not echoed back into the prompt.
	RecentMessages(ctx context.Context, sessionID uuid.UUID, limit, skipNewest int) ([]*Message, error)

	// MessageCount returns the total number of messages in the session.
	MessageCount(ctx context.Context, sessionID uuid.UUID) (int, error)

	// MessageCountSince returns the number of messages created strictly
	// after the given time.
	MessageCountSince(ctx context.Context, sessionID uuid.UUID, since time.Time) (int, error)

	// MessagesInRange returns messages with startID <= id < endID ordered
	// oldest first. endID of 0 means no upper bound.
	MessagesInRange(ctx context.Context, sessionID uuid.UUID, startID, endID int64) ([]*Message, error)

	// UpdateMessageImportance stores a recomputed importance score.
	UpdateMessageImportance(ctx context.Context, messageID int64, score float64) error

	// CreateSummary persists a new conversation summary.
	CreateSummary(ctx context.Context, params CreateSummaryParams) (*ConversationSummary, error)

	// LatestSummary returns the most recently created summary for the
	// session, or ErrNotFound if the session has never been summarized.
	LatestSummary(ctx context.Context, sessionID uuid.UUID) (*ConversationSummary, error)

	// RecentSummaries returns up to limit summaries ordered newest first.
	RecentSummaries(ctx context.Context, sessionID uuid.UUID, limit int) ([]*ConversationSummary, error)

	// CreatePin persists a new semantic pin.
	CreatePin(ctx context.Context, params CreatePinParams) (*SemanticPin, error)

	// TopPins returns up to limit pins ordered by importance descending,
	// then recency descending.
	TopPins(ctx context.Context, sessionID uuid.UUID, limit int) ([]*SemanticPin, error)

	// DeletePin removes a pin. Pins are never expired automatically; this
	// is the only way a pin goes away.
	DeletePin(ctx context.Context, pinID int64) error
}
