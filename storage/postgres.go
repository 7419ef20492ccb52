package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txContextKey is the context key for storing pgx.Tx
type txContextKey struct{}

// WithTx returns a new context with the given transaction. Hosts that append
// the current turn inside their own transaction use this so the append and
// their other writes commit together.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext retrieves the transaction from context, or nil if not present
func TxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// querier is a common interface for pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// postgresSchema bootstraps the memory tables. Messages get a BIGSERIAL id so
// append order and id order agree.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS luna_messages (
	id BIGSERIAL PRIMARY KEY,
	session_id UUID NOT NULL,
	role TEXT NOT NULL,
	text TEXT NOT NULL,
	model_id TEXT,
	usage JSONB,
	importance DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS luna_messages_session_idx ON luna_messages (session_id, id);

CREATE TABLE IF NOT EXISTS luna_summaries (
	id BIGSERIAL PRIMARY KEY,
	session_id UUID NOT NULL,
	text TEXT NOT NULL,
	message_count INTEGER NOT NULL,
	start_message_id BIGINT NOT NULL,
	end_message_id BIGINT NOT NULL,
	importance DOUBLE PRECISION NOT NULL DEFAULT 0.9,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS luna_summaries_session_idx ON luna_summaries (session_id, id DESC);

CREATE TABLE IF NOT EXISTS luna_pins (
	id BIGSERIAL PRIMARY KEY,
	session_id UUID NOT NULL,
	content TEXT NOT NULL,
	source_message_id BIGINT,
	importance DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	pin_type TEXT NOT NULL DEFAULT 'manual',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS luna_pins_session_idx ON luna_pins (session_id, importance DESC, id DESC);
`

// PostgresStore implements Store using PostgreSQL with pgx
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the memory tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("%w: migrate: %v", ErrUnavailable, err)
	}
	return nil
}

// getQuerier returns the transaction from context if present, otherwise the pool
func (s *PostgresStore) getQuerier(ctx context.Context) querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

// AppendMessage appends one message to the session log
func (s *PostgresStore) AppendMessage(ctx context.Context, params AppendMessageParams) (*Message, error) {
	if err := validateAppend(params); err != nil {
		return nil, err
	}

	importance := params.Importance
	if importance == 0 {
		importance = DefaultImportance
	}

	var usageJSON []byte
	if params.Usage != nil {
		var err error
		usageJSON, err = json.Marshal(params.Usage)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal usage: %w", err)
		}
	}

	query := `
		INSERT INTO luna_messages (session_id, role, text, model_id, usage, importance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`

	msg := &Message{
		SessionID:  params.SessionID,
		Role:       params.Role,
		Text:       params.Text,
		ModelID:    params.ModelID,
		Usage:      params.Usage,
		Importance: importance,
	}

	err := s.getQuerier(ctx).QueryRow(ctx, query,
		params.SessionID, params.Role, params.Text, params.ModelID, usageJSON, importance,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: append message: %v", ErrUnavailable, err)
	}

	return msg, nil
}

// RecentMessages returns up to limit messages oldest first, skipping the
// skipNewest most recent rows.
func (s *PostgresStore) RecentMessages(ctx context.Context, sessionID uuid.UUID, limit, skipNewest int) ([]*Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	if skipNewest < 0 {
		skipNewest = 0
	}

	// Select newest first with an offset, then flip to oldest first.
	query := `
		SELECT id, session_id, role, text, model_id, usage, importance, created_at
		FROM luna_messages
		WHERE session_id = $1
		ORDER BY id DESC
		OFFSET $2 LIMIT $3
	`

	rows, err := s.getQuerier(ctx).Query(ctx, query, sessionID, skipNewest, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query recent messages: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	reverseMessages(messages)
	return messages, nil
}

// MessageCount returns the total number of messages in the session
func (s *PostgresStore) MessageCount(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM luna_messages WHERE session_id = $1`
	if err := s.getQuerier(ctx).QueryRow(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: count messages: %v", ErrUnavailable, err)
	}
	return count, nil
}

// MessageCountSince returns the number of messages created after the given time
func (s *PostgresStore) MessageCountSince(ctx context.Context, sessionID uuid.UUID, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM luna_messages WHERE session_id = $1 AND created_at > $2`
	if err := s.getQuerier(ctx).QueryRow(ctx, query, sessionID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: count messages since: %v", ErrUnavailable, err)
	}
	return count, nil
}

// MessagesInRange returns messages with startID <= id < endID, oldest first.
// endID of 0 means no upper bound.
func (s *PostgresStore) MessagesInRange(ctx context.Context, sessionID uuid.UUID, startID, endID int64) ([]*Message, error) {
	query := `
		SELECT id, session_id, role, text, model_id, usage, importance, created_at
		FROM luna_messages
		WHERE session_id = $1 AND id >= $2 AND ($3 = 0 OR id < $3)
		ORDER BY id ASC
	`

	rows, err := s.getQuerier(ctx).Query(ctx, query, sessionID, startID, endID)
	if err != nil {
		return nil, fmt.Errorf("%w: query message range: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// UpdateMessageImportance stores a recomputed importance score
func (s *PostgresStore) UpdateMessageImportance(ctx context.Context, messageID int64, score float64) error {
	query := `UPDATE luna_messages SET importance = $2 WHERE id = $1`
	tag, err := s.getQuerier(ctx).Exec(ctx, query, messageID, score)
	if err != nil {
		return fmt.Errorf("%w: update importance: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: message %d", ErrNotFound, messageID)
	}
	return nil
}

// CreateSummary persists a new conversation summary
func (s *PostgresStore) CreateSummary(ctx context.Context, params CreateSummaryParams) (*ConversationSummary, error) {
	if params.SessionID == uuid.Nil {
		return nil, fmt.Errorf("session_id is required")
	}
	if params.Text == "" {
		return nil, fmt.Errorf("summary text is required")
	}

	importance := params.Importance
	if importance == 0 {
		importance = SummaryImportance
	}

	query := `
		INSERT INTO luna_summaries (session_id, text, message_count, start_message_id, end_message_id, importance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`

	summary := &ConversationSummary{
		SessionID:      params.SessionID,
		Text:           params.Text,
		MessageCount:   params.MessageCount,
		StartMessageID: params.StartMessageID,
		EndMessageID:   params.EndMessageID,
		Importance:     importance,
	}

	err := s.getQuerier(ctx).QueryRow(ctx, query,
		params.SessionID, params.Text, params.MessageCount,
		params.StartMessageID, params.EndMessageID, importance,
	).Scan(&summary.ID, &summary.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: create summary: %v", ErrUnavailable, err)
	}

	return summary, nil
}

// LatestSummary returns the most recently created summary for the session
func (s *PostgresStore) LatestSummary(ctx context.Context, sessionID uuid.UUID) (*ConversationSummary, error) {
	query := `
		SELECT id, session_id, text, message_count, start_message_id, end_message_id, importance, created_at
		FROM luna_summaries
		WHERE session_id = $1
		ORDER BY id DESC
		LIMIT 1
	`

	summary, err := scanSummaryRow(s.getQuerier(ctx).QueryRow(ctx, query, sessionID))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: no summary for session %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: latest summary: %v", ErrUnavailable, err)
	}
	return summary, nil
}

// RecentSummaries returns up to limit summaries newest first
func (s *PostgresStore) RecentSummaries(ctx context.Context, sessionID uuid.UUID, limit int) ([]*ConversationSummary, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, session_id, text, message_count, start_message_id, end_message_id, importance, created_at
		FROM luna_summaries
		WHERE session_id = $1
		ORDER BY id DESC
		LIMIT $2
	`

	rows, err := s.getQuerier(ctx).Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query summaries: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var summaries []*ConversationSummary
	for rows.Next() {
		var summary ConversationSummary
		err := rows.Scan(
			&summary.ID,
			&summary.SessionID,
			&summary.Text,
			&summary.MessageCount,
			&summary.StartMessageID,
			&summary.EndMessageID,
			&summary.Importance,
			&summary.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scan summary: %v", ErrUnavailable, err)
		}
		summaries = append(summaries, &summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate summaries: %v", ErrUnavailable, err)
	}

	return summaries, nil
}

// CreatePin persists a new semantic pin
func (s *PostgresStore) CreatePin(ctx context.Context, params CreatePinParams) (*SemanticPin, error) {
	if err := validatePin(params); err != nil {
		return nil, err
	}

	importance := params.Importance
	if importance == 0 {
		importance = DefaultImportance
	}

	query := `
		INSERT INTO luna_pins (session_id, content, source_message_id, importance, pin_type, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`

	pin := &SemanticPin{
		SessionID:       params.SessionID,
		Content:         params.Content,
		SourceMessageID: params.SourceMessageID,
		Importance:      importance,
		Type:            params.Type,
	}

	err := s.getQuerier(ctx).QueryRow(ctx, query,
		params.SessionID, params.Content, params.SourceMessageID, importance, params.Type,
	).Scan(&pin.ID, &pin.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: create pin: %v", ErrUnavailable, err)
	}

	return pin, nil
}

// TopPins returns up to limit pins by importance descending, then recency
func (s *PostgresStore) TopPins(ctx context.Context, sessionID uuid.UUID, limit int) ([]*SemanticPin, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, session_id, content, source_message_id, importance, pin_type, created_at
		FROM luna_pins
		WHERE session_id = $1
		ORDER BY importance DESC, id DESC
		LIMIT $2
	`

	rows, err := s.getQuerier(ctx).Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query pins: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var pins []*SemanticPin
	for rows.Next() {
		var pin SemanticPin
		err := rows.Scan(
			&pin.ID,
			&pin.SessionID,
			&pin.Content,
			&pin.SourceMessageID,
			&pin.Importance,
			&pin.Type,
			&pin.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scan pin: %v", ErrUnavailable, err)
		}
		pins = append(pins, &pin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate pins: %v", ErrUnavailable, err)
	}

	return pins, nil
}

// DeletePin removes a pin
func (s *PostgresStore) DeletePin(ctx context.Context, pinID int64) error {
	tag, err := s.getQuerier(ctx).Exec(ctx, `DELETE FROM luna_pins WHERE id = $1`, pinID)
	if err != nil {
		return fmt.Errorf("%w: delete pin: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: pin %d", ErrNotFound, pinID)
	}
	return nil
}

// scanMessages is a helper to scan message rows
func scanMessages(rows pgx.Rows) ([]*Message, error) {
	var messages []*Message

	for rows.Next() {
		var msg Message
		var usageJSON []byte

		err := rows.Scan(
			&msg.ID,
			&msg.SessionID,
			&msg.Role,
			&msg.Text,
			&msg.ModelID,
			&usageJSON,
			&msg.Importance,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scan message: %v", ErrUnavailable, err)
		}

		if len(usageJSON) > 0 {
			msg.Usage = &MessageUsage{}
			if err := json.Unmarshal(usageJSON, msg.Usage); err != nil {
				return nil, fmt.Errorf("failed to unmarshal usage: %w", err)
			}
		}

		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate messages: %v", ErrUnavailable, err)
	}

	return messages, nil
}

func scanSummaryRow(row pgx.Row) (*ConversationSummary, error) {
	var summary ConversationSummary
	err := row.Scan(
		&summary.ID,
		&summary.SessionID,
		&summary.Text,
		&summary.MessageCount,
		&summary.StartMessageID,
		&summary.EndMessageID,
		&summary.Importance,
		&summary.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func reverseMessages(messages []*Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

func validateAppend(params AppendMessageParams) error {
	if params.SessionID == uuid.Nil {
		return fmt.Errorf("session_id is required")
	}
	switch params.Role {
	case RoleSystem, RoleUser, RoleAssistant:
	default:
		return fmt.Errorf("invalid role %q", params.Role)
	}
	if params.Text == "" {
		return fmt.Errorf("message text is required")
	}
	return nil
}

func validatePin(params CreatePinParams) error {
	if params.SessionID == uuid.Nil {
		return fmt.Errorf("session_id is required")
	}
	if params.Content == "" {
		return fmt.Errorf("pin content is required")
	}
	switch params.Type {
	case PinManual, PinAuto:
	default:
		return fmt.Errorf("invalid pin type %q", params.Type)
	}
	return nil
}
