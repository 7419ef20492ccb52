package summarize

import (
	"strings"
	"testing"
)

var leaseConversation = []Message{
	{Role: "user", Content: "I am worried about my apartment lease renewal, the landlord raised the rent again"},
	{Role: "assistant", Content: "That sounds stressful. Have you checked whether the rent increase is within the legal limit for your city?"},
	{Role: "user", Content: "I have not, my sister said there might be a cap on increases for older buildings"},
	{Role: "assistant", Content: "Checking the local rent control rules for older buildings is a good first step before you sign the renewal"},
}

func TestValidator_AcceptsExtractiveSummary(t *testing.T) {
	v := NewValidator(nil)

	summary := "User is worried about an apartment lease renewal after the landlord raised the rent; discussed checking local rent control rules."

	ok, reason := v.Check(summary, leaseConversation)
	if !ok {
		t.Errorf("valid summary rejected: %s", reason)
	}
}

func TestValidator_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		config     *ValidatorConfig
		summary    string
		wantReason string
	}{
		{
			name:       "empty",
			summary:    "   ",
			wantReason: "empty summary",
		},
		{
			name:       "conversational preamble",
			summary:    "Here's a summary of the lease discussion about rent increases.",
			wantReason: "preamble",
		},
		{
			name:       "certainly preamble",
			summary:    "Certainly! The user discussed their apartment lease renewal.",
			wantReason: "preamble",
		},
		{
			name:       "section formatting",
			summary:    "## Overview\nThe user discussed the apartment lease renewal and rent increase.",
			wantReason: "section formatting",
		},
		{
			name:       "absolute ceiling",
			config:     &ValidatorConfig{MaxChars: 50, MaxSourceRatio: 10, MinOverlap: 0.01},
			summary:    "The user discussed the apartment lease renewal and the landlord raising rent again this year.",
			wantReason: "ceiling",
		},
		{
			name:       "low lexical overlap",
			config:     &ValidatorConfig{MaxSourceRatio: 10},
			summary:    "Borrower negotiated mortgage refinancing terms and considered fixed versus variable percentage products downtown.",
			wantReason: "lexical overlap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(tt.config)
			ok, reason := v.Check(tt.summary, leaseConversation)
			if ok {
				t.Fatal("expected rejection, summary accepted")
			}
			if !strings.Contains(reason, tt.wantReason) {
				t.Errorf("reason = %q, want it to mention %q", reason, tt.wantReason)
			}
		})
	}
}

// A candidate close to the source's length that shares almost no vocabulary
// with it is the signature of a fabricated summary.
func TestValidator_RejectsNearSourceLengthFabrication(t *testing.T) {
	v := NewValidator(nil)

	sourceLen := 0
	for _, msg := range leaseConversation {
		sourceLen += len(msg.Content)
	}

	fabricated := strings.Repeat("zxqv wbfj kplm ", sourceLen*8/10/15)

	ok, reason := v.Check(fabricated, leaseConversation)
	if ok {
		t.Fatal("fabricated near-source-length summary accepted")
	}
	if reason == "" {
		t.Error("expected a rejection reason")
	}
}

func TestValidator_AllowStructuredRelaxesSectionCheck(t *testing.T) {
	summary := "## Narrative\nUser raised concerns about the apartment lease renewal and the rent increase; discussed rent control rules."

	strict := NewValidator(nil)
	if ok, _ := strict.Check(summary, leaseConversation); ok {
		t.Fatal("structured summary accepted by strict validator")
	}

	relaxed := NewValidator(&ValidatorConfig{AllowStructured: true})
	if ok, reason := relaxed.Check(summary, leaseConversation); !ok {
		t.Errorf("structured summary rejected by relaxed validator: %s", reason)
	}
}

func TestLexicalOverlap(t *testing.T) {
	source := []Message{{Role: "user", Content: "the quick brown fox jumps"}}

	tests := []struct {
		name    string
		summary string
		want    float64
	}{
		{name: "all words present", summary: "quick brown fox", want: 1.0},
		{name: "no words present", summary: "lazy dogs sleep", want: 0.0},
		{name: "half present", summary: "quick dogs", want: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lexicalOverlap(tt.summary, source)
			if got != tt.want {
				t.Errorf("lexicalOverlap = %v, want %v", got, tt.want)
			}
		})
	}
}
