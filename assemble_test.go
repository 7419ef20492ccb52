package memory

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/Kalito-Labs/luna-memory/storage"
)

// Fixtures use ratio 1.0 so one character estimates to one token and budget
// math is exact.

func fixedMessages(sizes ...int) []*storage.Message {
	out := make([]*storage.Message, len(sizes))
	for i, size := range sizes {
		out[i] = &storage.Message{
			ID:   int64(i + 1),
			Role: storage.RoleUser,
			Text: strings.Repeat("m", size),
		}
	}
	return out
}

func fixedPin(id int64, size int, importance float64) *storage.SemanticPin {
	return &storage.SemanticPin{
		ID:         id,
		Content:    strings.Repeat("p", size),
		Importance: importance,
		Type:       storage.PinManual,
	}
}

func fixedSummary(id int64, size int) *storage.ConversationSummary {
	return &storage.ConversationSummary{
		ID:         id,
		Text:       strings.Repeat("s", size),
		Importance: storage.SummaryImportance,
	}
}

func TestAssembleUnderBudgetReturnsEverything(t *testing.T) {
	session := uuid.New()
	messages := fixedMessages(10, 10, 10)
	pins := []*storage.SemanticPin{fixedPin(1, 10, 0.9)}
	summaries := []*storage.ConversationSummary{fixedSummary(1, 10)}

	out := assembleContext(session, messages, pins, summaries, 100, 3, 1.0)

	if out.Truncated {
		t.Error("under-budget context must not be truncated")
	}
	if out.TotalTokens != 50 {
		t.Errorf("TotalTokens = %d, want 50", out.TotalTokens)
	}
	if len(out.Messages) != 3 || len(out.Pins) != 1 || len(out.Summaries) != 1 {
		t.Errorf("groups trimmed: %d messages, %d pins, %d summaries",
			len(out.Messages), len(out.Pins), len(out.Summaries))
	}
}

func TestAssembleMandatorySliceExceedsBudget(t *testing.T) {
	session := uuid.New()
	// The three most recent messages alone estimate to 80 against a budget
	// of 50. They are still returned in full; the caller handles overage.
	messages := fixedMessages(40, 30, 30, 20)
	pins := []*storage.SemanticPin{fixedPin(1, 10, 0.9)}
	summaries := []*storage.ConversationSummary{fixedSummary(1, 10)}

	out := assembleContext(session, messages, pins, summaries, 50, 3, 1.0)

	if !out.Truncated {
		t.Fatal("expected truncation")
	}
	if len(out.Messages) != 3 {
		t.Fatalf("expected the 3 most recent messages, got %d", len(out.Messages))
	}
	if out.Messages[0].ID != 2 || out.Messages[2].ID != 4 {
		t.Errorf("wrong slice kept: ids %d..%d", out.Messages[0].ID, out.Messages[2].ID)
	}
	if out.TotalTokens != 80 {
		t.Errorf("TotalTokens = %d, want 80 (overage reported, not hidden)", out.TotalTokens)
	}
	if len(out.Pins) != 0 || len(out.Summaries) != 0 {
		t.Errorf("expected zero pins and summaries, got %d and %d", len(out.Pins), len(out.Summaries))
	}
}

func TestAssembleKeepsAppendOrder(t *testing.T) {
	session := uuid.New()
	messages := fixedMessages(30, 30, 30, 30, 30)

	out := assembleContext(session, messages, nil, nil, 100, 3, 1.0)

	for i := 1; i < len(out.Messages); i++ {
		if out.Messages[i].ID <= out.Messages[i-1].ID {
			t.Fatalf("messages out of append order at %d: %d after %d",
				i, out.Messages[i].ID, out.Messages[i-1].ID)
		}
	}
}

func TestAssemblePinPriority(t *testing.T) {
	session := uuid.New()
	messages := fixedMessages(10, 10, 10)
	// Pins arrive importance-descending from the store. Budget leaves room
	// for exactly one after the mandatory messages.
	pins := []*storage.SemanticPin{
		fixedPin(1, 15, 0.9),
		fixedPin(2, 15, 0.4),
	}

	out := assembleContext(session, messages, pins, nil, 45, 3, 1.0)

	if len(out.Pins) != 1 {
		t.Fatalf("expected exactly one pin to fit, got %d", len(out.Pins))
	}
	if out.Pins[0].Importance != 0.9 {
		t.Errorf("kept the wrong pin: importance %v", out.Pins[0].Importance)
	}
	if out.TotalTokens != 45 {
		t.Errorf("TotalTokens = %d, want 45", out.TotalTokens)
	}
}

func TestAssembleSummariesAfterPins(t *testing.T) {
	session := uuid.New()
	messages := fixedMessages(10, 10, 10)
	pins := []*storage.SemanticPin{fixedPin(1, 20, 0.8)}
	// Summaries arrive newest first; only the newest fits.
	summaries := []*storage.ConversationSummary{
		fixedSummary(2, 20),
		fixedSummary(1, 20),
	}

	out := assembleContext(session, messages, pins, summaries, 70, 3, 1.0)

	if len(out.Pins) != 1 {
		t.Fatalf("pin should fit before summaries, got %d pins", len(out.Pins))
	}
	if len(out.Summaries) != 1 || out.Summaries[0].ID != 2 {
		t.Fatalf("expected only the newest summary, got %d summaries", len(out.Summaries))
	}
	if out.TotalTokens != 70 {
		t.Errorf("TotalTokens = %d, want 70", out.TotalTokens)
	}
}

func TestAssembleBudgetMonotonicity(t *testing.T) {
	session := uuid.New()
	messages := fixedMessages(25, 25, 25, 25)
	pins := []*storage.SemanticPin{
		fixedPin(1, 30, 0.9),
		fixedPin(2, 20, 0.7),
	}
	summaries := []*storage.ConversationSummary{fixedSummary(1, 40)}

	prev := -1
	// Decreasing budget must never increase TotalTokens.
	for budget := 300; budget >= 10; budget -= 10 {
		out := assembleContext(session, messages, pins, summaries, budget, 3, 1.0)
		if prev >= 0 && out.TotalTokens > prev {
			t.Fatalf("budget %d produced TotalTokens %d, above %d at the larger budget",
				budget, out.TotalTokens, prev)
		}
		prev = out.TotalTokens
	}
}

func TestAssembleFewerMessagesThanMinimum(t *testing.T) {
	session := uuid.New()
	messages := fixedMessages(60)

	out := assembleContext(session, messages, nil, nil, 10, 3, 1.0)

	if len(out.Messages) != 1 {
		t.Fatalf("expected the single available message, got %d", len(out.Messages))
	}
	if out.TotalTokens != 60 {
		t.Errorf("TotalTokens = %d, want 60", out.TotalTokens)
	}
}

func TestAssembleEmptySession(t *testing.T) {
	session := uuid.New()

	out := assembleContext(session, nil, nil, nil, 100, 3, 1.0)

	if out.Truncated || out.TotalTokens != 0 {
		t.Errorf("empty session: truncated=%v total=%d", out.Truncated, out.TotalTokens)
	}
}
