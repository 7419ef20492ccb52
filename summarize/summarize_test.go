package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// stubCompleter is a scriptable Completer for tests.
type stubCompleter struct {
	text  string
	err   error
	block bool

	calls int
}

func (s *stubCompleter) Complete(ctx context.Context, systemPrompt string, messages []Message, opts Options) (string, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.text, s.err
}

var careConversation = []Message{
	{Role: "user", Content: "my new medication schedule is confusing, I mixed up the morning dose twice"},
	{Role: "assistant", Content: "Mixing up a morning dose is worth mentioning to your doctor; a pill organizer might also help"},
	{Role: "user", Content: "I will ask about the pill organizer at my next appointment"},
}

func TestSummarizer_PrefersValidLocalSummary(t *testing.T) {
	local := &stubCompleter{text: "User mixed up the morning medication dose; will ask about a pill organizer."}
	cloud := &stubCompleter{text: "cloud summary"}

	s := NewSummarizer(Config{Local: local, Cloud: cloud})

	got := s.Summarize(context.Background(), careConversation)
	if got != local.text {
		t.Errorf("got %q, want local summary", got)
	}
	if cloud.calls != 0 {
		t.Errorf("cloud called %d times, want 0", cloud.calls)
	}
}

func TestSummarizer_RejectedLocalFallsBackToExtractive(t *testing.T) {
	// No lexical overlap with the source: the validator must reject it,
	// and a fabricating model is not retried against the cloud.
	local := &stubCompleter{text: "Travelers compared hotel packages and airline loyalty upgrades throughout"}
	cloud := &stubCompleter{text: "cloud summary"}

	s := NewSummarizer(Config{Local: local, Cloud: cloud})

	got := s.Summarize(context.Background(), careConversation)
	if !strings.Contains(got, "user message(s)") {
		t.Errorf("expected extractive fallback, got %q", got)
	}
	if cloud.calls != 0 {
		t.Errorf("cloud called %d times after rejection, want 0", cloud.calls)
	}
}

func TestSummarizer_LocalErrorFallsBackToCloud(t *testing.T) {
	local := &stubCompleter{err: errors.New("connection refused")}
	cloud := &stubCompleter{text: "User mixed up the morning medication dose and will ask about a pill organizer."}

	s := NewSummarizer(Config{Local: local, Cloud: cloud})

	got := s.Summarize(context.Background(), careConversation)
	if got != cloud.text {
		t.Errorf("got %q, want cloud summary", got)
	}
}

func TestSummarizer_AllEndpointsFailingUsesExtractive(t *testing.T) {
	local := &stubCompleter{err: errors.New("connection refused")}
	cloud := &stubCompleter{err: errors.New("rate limited")}

	s := NewSummarizer(Config{Local: local, Cloud: cloud})

	got := s.Summarize(context.Background(), careConversation)
	if !strings.Contains(got, "user message(s)") {
		t.Errorf("expected extractive fallback, got %q", got)
	}
}

func TestSummarizer_NoCompletersUsesExtractive(t *testing.T) {
	s := NewSummarizer(Config{})

	got := s.Summarize(context.Background(), careConversation)
	if !strings.Contains(got, "user message(s)") {
		t.Errorf("expected extractive fallback, got %q", got)
	}
}

func TestSummarizer_TimeoutTriggersFallback(t *testing.T) {
	local := &stubCompleter{block: true}
	cloud := &stubCompleter{block: true}

	s := NewSummarizer(Config{Local: local, Cloud: cloud, Timeout: 20 * time.Millisecond})

	start := time.Now()
	got := s.Summarize(context.Background(), careConversation)
	elapsed := time.Since(start)

	if !strings.Contains(got, "user message(s)") {
		t.Errorf("expected extractive fallback, got %q", got)
	}
	if elapsed > 2*time.Second {
		t.Errorf("summarize blocked for %v despite timeout", elapsed)
	}
}

func TestSummarizer_EmptyInput(t *testing.T) {
	local := &stubCompleter{text: "anything"}
	s := NewSummarizer(Config{Local: local})

	if got := s.Summarize(context.Background(), nil); got != "" {
		t.Errorf("expected empty summary for no messages, got %q", got)
	}
	if local.calls != 0 {
		t.Errorf("completer called for empty input")
	}
}

func TestApproximateTokens(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected int
	}{
		{name: "empty string", content: "", expected: 0},
		{name: "short string", content: "hi", expected: 1},
		{name: "4 chars", content: "test", expected: 1},
		{name: "8 chars", content: "12345678", expected: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApproximateTokens(tt.content)
			if got != tt.expected {
				t.Errorf("ApproximateTokens(%q) = %d, want %d", tt.content, got, tt.expected)
			}
		})
	}
}
