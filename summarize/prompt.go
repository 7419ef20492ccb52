package summarize

import (
	"fmt"
	"strings"
)

// BuildSystemPrompt returns the summarization system prompt. The instructions
// explicitly forbid generative elaboration and state a numeric length bound:
// open-ended models asked to "summarize" a short conversation will sometimes
// continue or embellish it instead.
func BuildSystemPrompt(maxWords int) string {
	return fmt.Sprintf(`You are a conversation summarizer for a chat assistant's memory system. Your task is to compress a conversation transcript into a short factual summary.

Rules:
- Summarize only what was actually discussed. Do not create new content.
- Do not continue the conversation, answer questions from it, or add advice that was not given.
- Preserve concrete facts: names, decisions, concerns raised, and anything the user asked to be remembered.
- Write plain prose with no headings, no bullet points, and no preamble.
- Use at most %d words.`, maxWords)
}

// BuildUserPrompt wraps the transcript for the completion call.
func BuildUserPrompt(transcript string) string {
	return `Summarize the following conversation.

<conversation>
` + transcript + `
</conversation>

Respond with the summary text only.`
}

// FormatTranscript renders messages as readable text for summarization.
func FormatTranscript(messages []Message) string {
	var b strings.Builder
	for _, msg := range messages {
		b.WriteString(roleLabel(msg.Role))
		b.WriteString(":\n")
		b.WriteString(msg.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}

func roleLabel(role string) string {
	switch role {
	case "assistant":
		return "Assistant"
	case "system":
		return "System"
	default:
		return "User"
	}
}
