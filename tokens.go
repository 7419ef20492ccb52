package memory

import (
	"github.com/Kalito-Labs/luna-memory/storage"
)

// EstimateTokens estimates the token size of text as character count times a
// fixed ratio. Exact token counts are a non-goal: this runs on every turn,
// so the estimator trades numeric precision for speed and predictability.
func EstimateTokens(text string, ratio float64) int {
	if text == "" {
		return 0
	}
	if ratio <= 0 {
		ratio = DefaultTokenRatio
	}
	n := int(float64(len(text)) * ratio)
	if n < 1 {
		n = 1
	}
	return n
}

func estimateMessageTokens(messages []*storage.Message, ratio float64) int {
	total := 0
	for _, msg := range messages {
		total += EstimateTokens(msg.Text, ratio)
	}
	return total
}

func estimatePinTokens(pins []*storage.SemanticPin, ratio float64) int {
	total := 0
	for _, pin := range pins {
		total += EstimateTokens(pin.Content, ratio)
	}
	return total
}

func estimateSummaryTokens(summaries []*storage.ConversationSummary, ratio float64) int {
	total := 0
	for _, summary := range summaries {
		total += EstimateTokens(summary.Text, ratio)
	}
	return total
}
