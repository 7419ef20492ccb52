package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Kalito-Labs/luna-memory/internal/testutil"
)

func TestIntegration_PostgresStore_MessageLog(t *testing.T) {
	db := testutil.NewTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	ctx := context.Background()
	store := NewPostgresStore(db.Pool)

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if err := db.CleanTables(ctx); err != nil {
		t.Fatalf("Failed to clean tables: %v", err)
	}

	sessionID := uuid.New()

	var msgs []*Message
	for _, text := range []string{"one", "two", "three", "four"} {
		msg, err := store.AppendMessage(ctx, AppendMessageParams{
			SessionID: sessionID,
			Role:      RoleUser,
			Text:      text,
			Usage:     &MessageUsage{InputTokens: 3, OutputTokens: 0},
		})
		if err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
		msgs = append(msgs, msg)
		time.Sleep(time.Millisecond)
	}

	// skipNewest=1 excludes "four".
	recent, err := store.RecentMessages(ctx, sessionID, 2, 1)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d messages, want 2", len(recent))
	}
	if recent[0].Text != "two" || recent[1].Text != "three" {
		t.Errorf("got %q, %q; want two, three", recent[0].Text, recent[1].Text)
	}
	if recent[0].Usage.TotalTokens() != 3 {
		t.Errorf("usage not round-tripped: %+v", recent[0].Usage)
	}

	count, err := store.MessageCount(ctx, sessionID)
	if err != nil {
		t.Fatalf("MessageCount failed: %v", err)
	}
	if count != 4 {
		t.Errorf("MessageCount = %d, want 4", count)
	}

	since, err := store.MessageCountSince(ctx, sessionID, msgs[1].CreatedAt)
	if err != nil {
		t.Fatalf("MessageCountSince failed: %v", err)
	}
	if since != 2 {
		t.Errorf("MessageCountSince = %d, want 2", since)
	}

	ranged, err := store.MessagesInRange(ctx, sessionID, msgs[1].ID, msgs[3].ID)
	if err != nil {
		t.Fatalf("MessagesInRange failed: %v", err)
	}
	if len(ranged) != 2 {
		t.Errorf("got %d ranged messages, want 2", len(ranged))
	}
}

func TestIntegration_PostgresStore_SummariesAndPins(t *testing.T) {
	db := testutil.NewTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	ctx := context.Background()
	store := NewPostgresStore(db.Pool)

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if err := db.CleanTables(ctx); err != nil {
		t.Fatalf("Failed to clean tables: %v", err)
	}

	sessionID := uuid.New()

	if _, err := store.LatestSummary(ctx, sessionID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first summary, got %v", err)
	}

	_, err := store.CreateSummary(ctx, CreateSummaryParams{
		SessionID:      sessionID,
		Text:           "first",
		MessageCount:   8,
		StartMessageID: 1,
		EndMessageID:   9,
	})
	if err != nil {
		t.Fatalf("CreateSummary failed: %v", err)
	}

	second, err := store.CreateSummary(ctx, CreateSummaryParams{
		SessionID:      sessionID,
		Text:           "second",
		MessageCount:   6,
		StartMessageID: 9,
		EndMessageID:   15,
	})
	if err != nil {
		t.Fatalf("CreateSummary failed: %v", err)
	}

	latest, err := store.LatestSummary(ctx, sessionID)
	if err != nil {
		t.Fatalf("LatestSummary failed: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("latest summary id = %d, want %d", latest.ID, second.ID)
	}

	summaries, err := store.RecentSummaries(ctx, sessionID, 10)
	if err != nil {
		t.Fatalf("RecentSummaries failed: %v", err)
	}
	if len(summaries) != 2 || summaries[0].Text != "second" {
		t.Errorf("summaries not newest first: %+v", summaries)
	}

	if _, err := store.CreatePin(ctx, CreatePinParams{
		SessionID:  sessionID,
		Content:    "low",
		Importance: 0.4,
		Type:       PinAuto,
	}); err != nil {
		t.Fatalf("CreatePin failed: %v", err)
	}
	high, err := store.CreatePin(ctx, CreatePinParams{
		SessionID:  sessionID,
		Content:    "high",
		Importance: 0.9,
		Type:       PinManual,
	})
	if err != nil {
		t.Fatalf("CreatePin failed: %v", err)
	}

	pins, err := store.TopPins(ctx, sessionID, 10)
	if err != nil {
		t.Fatalf("TopPins failed: %v", err)
	}
	if len(pins) != 2 || pins[0].ID != high.ID {
		t.Errorf("pins not importance-ordered: %+v", pins)
	}
}

func TestIntegration_PostgresStore_Transaction(t *testing.T) {
	db := testutil.NewTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	ctx := context.Background()
	store := NewPostgresStore(db.Pool)

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if err := db.CleanTables(ctx); err != nil {
		t.Fatalf("Failed to clean tables: %v", err)
	}

	sessionID := uuid.New()

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	txCtx := WithTx(ctx, tx)
	if _, err := store.AppendMessage(txCtx, AppendMessageParams{
		SessionID: sessionID,
		Role:      RoleUser,
		Text:      "rolled back",
	}); err != nil {
		t.Fatalf("AppendMessage in tx failed: %v", err)
	}

	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	count, err := store.MessageCount(ctx, sessionID)
	if err != nil {
		t.Fatalf("MessageCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("message visible after rollback, count = %d", count)
	}
}
