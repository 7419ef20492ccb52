package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// sqliteSchema mirrors the Postgres tables. Timestamps are stored as unix
// nanoseconds so range comparisons stay exact across the driver boundary.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS luna_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		model_id TEXT,
		usage TEXT,
		importance REAL NOT NULL DEFAULT 0.5,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_luna_messages_session ON luna_messages(session_id, id)`,
	`CREATE TABLE IF NOT EXISTS luna_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		text TEXT NOT NULL,
		message_count INTEGER NOT NULL,
		start_message_id INTEGER NOT NULL,
		end_message_id INTEGER NOT NULL,
		importance REAL NOT NULL DEFAULT 0.9,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_luna_summaries_session ON luna_summaries(session_id, id DESC)`,
	`CREATE TABLE IF NOT EXISTS luna_pins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		content TEXT NOT NULL,
		source_message_id INTEGER,
		importance REAL NOT NULL DEFAULT 0.5,
		pin_type TEXT NOT NULL DEFAULT 'manual',
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_luna_pins_session ON luna_pins(session_id, importance DESC, id DESC)`,
}

// SQLiteStore implements Store on database/sql with the modernc.org/sqlite
// driver. It is the offline/local deployment of the same contract the
// Postgres store serves. Writes are serialized with a mutex; SQLite allows
// one writer at a time anyway.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) a SQLite-backed store at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *SQLiteStore) initSchema() error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendMessage appends one message to the session log
func (s *SQLiteStore) AppendMessage(ctx context.Context, params AppendMessageParams) (*Message, error) {
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

	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO luna_messages (session_id, role, text, model_id, usage, importance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		params.SessionID.String(), params.Role, params.Text, params.ModelID,
		nullableBytes(usageJSON), importance, now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: append message: %v", ErrUnavailable, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: append message id: %v", ErrUnavailable, err)
	}

	return &Message{
		ID:         id,
		SessionID:  params.SessionID,
		Role:       params.Role,
		Text:       params.Text,
		ModelID:    params.ModelID,
		Usage:      params.Usage,
		Importance: importance,
		CreatedAt:  now,
	}, nil
}

// RecentMessages returns up to limit messages oldest first, skipping the
// skipNewest most recent rows.
func (s *SQLiteStore) RecentMessages(ctx context.Context, sessionID uuid.UUID, limit, skipNewest int) ([]*Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	if skipNewest < 0 {
		skipNewest = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, text, model_id, usage, importance, created_at
		FROM luna_messages
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?`,
		sessionID.String(), limit, skipNewest,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query recent messages: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	messages, err := s.scanMessages(rows)
	if err != nil {
		return nil, err
	}

	reverseMessages(messages)
	return messages, nil
}

// MessageCount returns the total number of messages in the session
func (s *SQLiteStore) MessageCount(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM luna_messages WHERE session_id = ?`,
		sessionID.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: count messages: %v", ErrUnavailable, err)
	}
	return count, nil
}

// MessageCountSince returns the number of messages created after the given time
func (s *SQLiteStore) MessageCountSince(ctx context.Context, sessionID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM luna_messages WHERE session_id = ? AND created_at > ?`,
		sessionID.String(), since.UnixNano(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: count messages since: %v", ErrUnavailable, err)
	}
	return count, nil
}

// MessagesInRange returns messages with startID <= id < endID, oldest first.
// endID of 0 means no upper bound.
func (s *SQLiteStore) MessagesInRange(ctx context.Context, sessionID uuid.UUID, startID, endID int64) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, text, model_id, usage, importance, created_at
		FROM luna_messages
		WHERE session_id = ? AND id >= ? AND (? = 0 OR id < ?)
		ORDER BY id ASC`,
		sessionID.String(), startID, endID, endID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query message range: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	return s.scanMessages(rows)
}

// UpdateMessageImportance stores a recomputed importance score
func (s *SQLiteStore) UpdateMessageImportance(ctx context.Context, messageID int64, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE luna_messages SET importance = ? WHERE id = ?`,
		score, messageID,
	)
	if err != nil {
		return fmt.Errorf("%w: update importance: %v", ErrUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: message %d", ErrNotFound, messageID)
	}
	return nil
}

// CreateSummary persists a new conversation summary
func (s *SQLiteStore) CreateSummary(ctx context.Context, params CreateSummaryParams) (*ConversationSummary, error) {
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

	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO luna_summaries (session_id, text, message_count, start_message_id, end_message_id, importance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		params.SessionID.String(), params.Text, params.MessageCount,
		params.StartMessageID, params.EndMessageID, importance, now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create summary: %v", ErrUnavailable, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: create summary id: %v", ErrUnavailable, err)
	}

	return &ConversationSummary{
		ID:             id,
		SessionID:      params.SessionID,
		Text:           params.Text,
		MessageCount:   params.MessageCount,
		StartMessageID: params.StartMessageID,
		EndMessageID:   params.EndMessageID,
		Importance:     importance,
		CreatedAt:      now,
	}, nil
}

// LatestSummary returns the most recently created summary for the session
func (s *SQLiteStore) LatestSummary(ctx context.Context, sessionID uuid.UUID) (*ConversationSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, text, message_count, start_message_id, end_message_id, importance, created_at
		FROM luna_summaries
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT 1`,
		sessionID.String(),
	)

	summary, err := s.scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no summary for session %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: latest summary: %v", ErrUnavailable, err)
	}
	return summary, nil
}

// RecentSummaries returns up to limit summaries newest first
func (s *SQLiteStore) RecentSummaries(ctx context.Context, sessionID uuid.UUID, limit int) ([]*ConversationSummary, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, text, message_count, start_message_id, end_message_id, importance, created_at
		FROM luna_summaries
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		sessionID.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query summaries: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var summaries []*ConversationSummary
	for rows.Next() {
		summary, err := s.scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan summary: %v", ErrUnavailable, err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate summaries: %v", ErrUnavailable, err)
	}

	return summaries, nil
}

// CreatePin persists a new semantic pin
func (s *SQLiteStore) CreatePin(ctx context.Context, params CreatePinParams) (*SemanticPin, error) {
	if err := validatePin(params); err != nil {
		return nil, err
	}

	importance := params.Importance
	if importance == 0 {
		importance = DefaultImportance
	}

	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO luna_pins (session_id, content, source_message_id, importance, pin_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		params.SessionID.String(), params.Content, params.SourceMessageID,
		importance, params.Type, now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create pin: %v", ErrUnavailable, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: create pin id: %v", ErrUnavailable, err)
	}

	return &SemanticPin{
		ID:              id,
		SessionID:       params.SessionID,
		Content:         params.Content,
		SourceMessageID: params.SourceMessageID,
		Importance:      importance,
		Type:            params.Type,
		CreatedAt:       now,
	}, nil
}

// TopPins returns up to limit pins by importance descending, then recency
func (s *SQLiteStore) TopPins(ctx context.Context, sessionID uuid.UUID, limit int) ([]*SemanticPin, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, content, source_message_id, importance, pin_type, created_at
		FROM luna_pins
		WHERE session_id = ?
		ORDER BY importance DESC, id DESC
		LIMIT ?`,
		sessionID.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query pins: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var pins []*SemanticPin
	for rows.Next() {
		var pin SemanticPin
		var sessionStr string
		var createdAt int64

		err := rows.Scan(
			&pin.ID,
			&sessionStr,
			&pin.Content,
			&pin.SourceMessageID,
			&pin.Importance,
			&pin.Type,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scan pin: %v", ErrUnavailable, err)
		}

		pin.SessionID, err = uuid.Parse(sessionStr)
		if err != nil {
			return nil, fmt.Errorf("parse pin session id: %w", err)
		}
		pin.CreatedAt = time.Unix(0, createdAt).UTC()

		pins = append(pins, &pin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate pins: %v", ErrUnavailable, err)
	}

	return pins, nil
}

// DeletePin removes a pin
func (s *SQLiteStore) DeletePin(ctx context.Context, pinID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM luna_pins WHERE id = ?`, pinID)
	if err != nil {
		return fmt.Errorf("%w: delete pin: %v", ErrUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: pin %d", ErrNotFound, pinID)
	}
	return nil
}

func (s *SQLiteStore) scanMessages(rows *sql.Rows) ([]*Message, error) {
	var messages []*Message

	for rows.Next() {
		var msg Message
		var sessionStr string
		var usageJSON []byte
		var createdAt int64

		err := rows.Scan(
			&msg.ID,
			&sessionStr,
			&msg.Role,
			&msg.Text,
			&msg.ModelID,
			&usageJSON,
			&msg.Importance,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scan message: %v", ErrUnavailable, err)
		}

		msg.SessionID, err = uuid.Parse(sessionStr)
		if err != nil {
			return nil, fmt.Errorf("parse message session id: %w", err)
		}
		msg.CreatedAt = time.Unix(0, createdAt).UTC()

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

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanSummary(row rowScanner) (*ConversationSummary, error) {
	var summary ConversationSummary
	var sessionStr string
	var createdAt int64

	err := row.Scan(
		&summary.ID,
		&sessionStr,
		&summary.Text,
		&summary.MessageCount,
		&summary.StartMessageID,
		&summary.EndMessageID,
		&summary.Importance,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	summary.SessionID, err = uuid.Parse(sessionStr)
	if err != nil {
		return nil, fmt.Errorf("parse summary session id: %w", err)
	}
	summary.CreatedAt = time.Unix(0, createdAt).UTC()

	return &summary, nil
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
