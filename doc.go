// Package memory provides conversational memory for chat sessions: an
// append-only message log with importance scoring, semantic pins, rolling
// conversation summaries, and a budgeted context assembler that composes the
// three into a size-bounded prompt context.
//
// The Manager is the entry point. Wire it to a storage backend (Postgres or
// SQLite) and optionally an Anthropic client for cloud summarization:
//
//	store := storage.NewPostgresStore(pool)
//	client := anthropic.NewClient()
//	mgr, err := memory.New(store, &client, nil, logger)
//	...
//	mctx := mgr.BuildContext(ctx, sessionID, 2048)
//
// After each turn, call MaybeSummarize to compact history once enough
// messages have accumulated. Summarization prefers a locally-hosted model
// when configured, validates its output, and degrades to a deterministic
// extractive summary rather than failing.
//
// All reads go through a short-TTL per-session cache; every write path
// invalidates the session's entries before returning. A degraded context is
// always preferred over failing a turn: store outages surface as empty
// groups, not errors.
package memory
