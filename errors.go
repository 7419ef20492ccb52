package memory

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Kalito-Labs/luna-memory/storage"
)

// Sentinel errors for memory operations.
var (
	// ErrInvalidConfig indicates invalid memory configuration.
	ErrInvalidConfig = errors.New("invalid memory configuration")

	// ErrStoreUnavailable indicates the message/summary/pin store cannot
	// be reached. Callers recover by using the best available partial
	// context; it is never fatal to a chat turn.
	ErrStoreUnavailable = storage.ErrUnavailable

	// ErrSummarizationFailed indicates a summary could not be produced or
	// persisted. Counters are left unchanged so the next turn retries.
	ErrSummarizationFailed = errors.New("summarization failed")

	// ErrSummarizationInProgress indicates summarization is already
	// running for this session.
	ErrSummarizationInProgress = errors.New("summarization already in progress")
)

// MemoryError provides structured error context for memory operations.
type MemoryError struct {
	// Op is the operation that failed (e.g., "BuildContext", "AppendMessage")
	Op string

	// SessionID is the session ID if applicable
	SessionID uuid.UUID

	// Err is the underlying error
	Err error

	// Context holds additional key-value pairs for debugging
	Context map[string]any
}

// Error returns a formatted error message.
func (e *MemoryError) Error() string {
	msg := fmt.Sprintf("memory %s failed", e.Op)
	if e.SessionID != uuid.Nil {
		msg += fmt.Sprintf(" for session %s", e.SessionID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError creates a new MemoryError with the given operation and underlying error.
func NewMemoryError(op string, err error) *MemoryError {
	return &MemoryError{
		Op:      op,
		Err:     err,
		Context: make(map[string]any),
	}
}

// WithSession sets the session ID on the error and returns the error for chaining.
func (e *MemoryError) WithSession(sessionID uuid.UUID) *MemoryError {
	e.SessionID = sessionID
	return e
}

// WithContext adds a key-value pair to the error context and returns the error for chaining.
func (e *MemoryError) WithContext(key string, value any) *MemoryError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WrapError wraps an error with operation and session context. If err is nil,
// returns nil.
func WrapError(op string, sessionID uuid.UUID, err error) error {
	if err == nil {
		return nil
	}
	return NewMemoryError(op, err).WithSession(sessionID)
}
