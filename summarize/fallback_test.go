package summarize

import (
	"strings"
	"testing"
)

func TestExtractiveSummary(t *testing.T) {
	messages := []Message{
		{Role: "user", Content: "I keep arguing with my brother about our mother's care"},
		{Role: "assistant", Content: "That sounds exhausting. What usually starts the arguments?"},
		{Role: "user", Content: "Mostly who pays for the home visits"},
	}

	summary := ExtractiveSummary(messages, 600)

	if summary == "" {
		t.Fatal("expected non-empty summary")
	}
	if !strings.Contains(summary, "2 user message(s)") {
		t.Errorf("summary missing user count: %q", summary)
	}
	if !strings.Contains(summary, "1 assistant") {
		t.Errorf("summary missing assistant count: %q", summary)
	}
	if !strings.Contains(summary, "arguing with my brother") {
		t.Errorf("summary missing opening excerpt: %q", summary)
	}
	if !strings.Contains(summary, "who pays for the home visits") {
		t.Errorf("summary missing latest excerpt: %q", summary)
	}
}

func TestExtractiveSummaryDeterministic(t *testing.T) {
	messages := []Message{
		{Role: "user", Content: "first message"},
		{Role: "assistant", Content: "second message"},
	}

	a := ExtractiveSummary(messages, 600)
	b := ExtractiveSummary(messages, 600)
	if a != b {
		t.Errorf("fallback not deterministic:\n%q\n%q", a, b)
	}
}

func TestExtractiveSummaryRespectsMaxChars(t *testing.T) {
	long := strings.Repeat("words and more words ", 50)
	messages := []Message{
		{Role: "user", Content: long},
		{Role: "assistant", Content: long},
	}

	summary := ExtractiveSummary(messages, 200)
	if len(summary) > 200 {
		t.Errorf("summary length %d exceeds limit 200", len(summary))
	}
}

func TestExtractiveSummaryEmptyInput(t *testing.T) {
	if got := ExtractiveSummary(nil, 600); got != "" {
		t.Errorf("expected empty summary for no messages, got %q", got)
	}
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{name: "short text unchanged", text: "hello there", limit: 50, want: "hello there"},
		{name: "whitespace collapsed", text: "hello\n\n  there", limit: 50, want: "hello there"},
		{name: "cut at truncation point", text: "one two three four five six", limit: 16, want: "one two three..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := excerpt(tt.text, tt.limit)
			if got != tt.want {
				t.Errorf("excerpt(%q, %d) = %q, want %q", tt.text, tt.limit, got, tt.want)
			}
			if len(got) > tt.limit {
				t.Errorf("excerpt length %d exceeds limit %d", len(got), tt.limit)
			}
		})
	}
}
