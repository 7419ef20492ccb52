package memory

import (
	"github.com/google/uuid"

	"github.com/Kalito-Labs/luna-memory/storage"
)

// MemoryContext is the assembled, request-scoped context for one turn:
// recent messages in append order, ranked pins, recent summaries, and an
// estimated token total. When truncation succeeds TotalTokens <= Budget;
// if even the mandatory recent slice exceeds the budget, the context is
// returned anyway with TotalTokens reflecting the overage. An over-budget
// context is a normal return value the caller must check, not an error.
type MemoryContext struct {
	SessionID uuid.UUID
	Messages  []*storage.Message
	Pins      []*storage.SemanticPin
	Summaries []*storage.ConversationSummary

	// TotalTokens is the estimated size of all retained groups.
	TotalTokens int

	// Budget is the token budget the context was assembled against.
	Budget int

	// Truncated reports whether anything was dropped to fit the budget.
	Truncated bool
}

// assembleContext selects and truncates the fetched groups against the
// budget. Messages arrive oldest first, pins by importance descending,
// summaries newest first; selection never reorders within a group.
//
// Truncation priority: the most recent minKept messages are kept
// unconditionally, then pins are added in importance order while they fit,
// then summaries in recency order. Everything else is dropped silently.
func assembleContext(
	sessionID uuid.UUID,
	messages []*storage.Message,
	pins []*storage.SemanticPin,
	summaries []*storage.ConversationSummary,
	budget, minKept int,
	ratio float64,
) *MemoryContext {
	total := estimateMessageTokens(messages, ratio) +
		estimatePinTokens(pins, ratio) +
		estimateSummaryTokens(summaries, ratio)

	if total <= budget {
		return &MemoryContext{
			SessionID:   sessionID,
			Messages:    messages,
			Pins:        pins,
			Summaries:   summaries,
			TotalTokens: total,
			Budget:      budget,
		}
	}

	// Over budget: reserve the mandatory recent slice first. It is kept
	// even when it alone exceeds the budget.
	keep := minKept
	if keep > len(messages) {
		keep = len(messages)
	}
	kept := messages[len(messages)-keep:]
	used := estimateMessageTokens(kept, ratio)

	out := &MemoryContext{
		SessionID: sessionID,
		Messages:  kept,
		Budget:    budget,
		Truncated: true,
	}

	for _, pin := range pins {
		cost := EstimateTokens(pin.Content, ratio)
		if used+cost > budget {
			break
		}
		out.Pins = append(out.Pins, pin)
		used += cost
	}

	for _, summary := range summaries {
		cost := EstimateTokens(summary.Text, ratio)
		if used+cost > budget {
			break
		}
		out.Summaries = append(out.Summaries, summary)
		used += cost
	}

	out.TotalTokens = used
	return out
}
