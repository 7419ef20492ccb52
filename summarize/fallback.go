package summarize

import (
	"fmt"
	"strings"
)

// excerptChars bounds each literal excerpt inside the fallback summary.
const excerptChars = 140

// ExtractiveSummary builds a deterministic, non-generative summary from
// counts and literal excerpts. It is the terminal fallback when generative
// summarization is rejected or unavailable, so it must never fail and must
// be stable for identical input.
func ExtractiveSummary(messages []Message, maxChars int) string {
	if len(messages) == 0 {
		return ""
	}
	if maxChars <= 0 {
		maxChars = DefaultFallbackMaxChars
	}

	userCount := 0
	assistantCount := 0
	firstUser := ""
	lastSubstantive := ""
	for _, msg := range messages {
		switch msg.Role {
		case "assistant":
			assistantCount++
		case "user":
			userCount++
			if firstUser == "" {
				firstUser = msg.Content
			}
		}
		if msg.Role != "system" && strings.TrimSpace(msg.Content) != "" {
			lastSubstantive = msg.Content
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Conversation segment with %d user message(s) and %d assistant repl(ies).", userCount, assistantCount)
	if firstUser != "" {
		fmt.Fprintf(&b, " It began with: %q.", excerpt(firstUser, excerptChars))
	}
	if lastSubstantive != "" && lastSubstantive != firstUser {
		fmt.Fprintf(&b, " Most recently: %q.", excerpt(lastSubstantive, excerptChars))
	}

	return excerpt(b.String(), maxChars)
}

// excerpt truncates text at a word boundary within limit, appending an
// ellipsis when anything was cut.
func excerpt(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= limit {
		return text
	}
	if limit <= 3 {
		return text[:limit]
	}

	cut := text[:limit-3]
	if idx := strings.LastIndexByte(cut, ' '); idx > limit/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}
