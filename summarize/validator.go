package summarize

import (
	"fmt"
	"strings"
	"unicode"
)

// Default validator thresholds.
const (
	DefaultMaxChars       = 2000
	DefaultMaxSourceRatio = 0.4
	DefaultMinOverlap     = 0.07
)

// defaultPreamblePrefixes flag conversational openers. A summary that talks
// to the user is generated prose, not a summary.
var defaultPreamblePrefixes = []string{
	"here's",
	"here is",
	"certainly",
	"sure,",
	"sure!",
	"of course",
	"i'd be happy",
	"great question",
	"as an ai",
}

// defaultSectionMarkers flag structured document formatting. Deployments
// whose domain legitimately produces structured narrative set AllowStructured
// instead of editing this list.
var defaultSectionMarkers = []string{
	"## ",
	"### ",
	"\n---",
	"**section",
}

// ValidatorConfig holds the tunable thresholds and pattern lists. The
// mechanism (detect fabricated vs. extractive summaries) is domain-general;
// the tuning is domain knowledge and belongs to the deployment.
type ValidatorConfig struct {
	// MaxChars is the absolute length ceiling for a summary.
	// Default: 2000
	MaxChars int

	// MaxSourceRatio rejects summaries longer than this fraction of the
	// source text. A "summary" near the source's length compressed nothing.
	// Default: 0.4
	MaxSourceRatio float64

	// MinOverlap is the minimum fraction of summary words that must appear
	// literally in the source. Low overlap is the strongest signal of
	// fabricated rather than extracted content.
	// Default: 0.07
	MinOverlap float64

	// PreamblePrefixes are lowercase prefixes that mark conversational
	// openers. Nil means the default list.
	PreamblePrefixes []string

	// SectionMarkers are substrings that mark generated document structure.
	// Nil means the default list.
	SectionMarkers []string

	// AllowStructured relaxes the section-marker check for domains whose
	// summaries legitimately carry structure (e.g. therapeutic narrative).
	AllowStructured bool
}

// DefaultValidatorConfig returns a config with default thresholds.
func DefaultValidatorConfig() *ValidatorConfig {
	return &ValidatorConfig{
		MaxChars:       DefaultMaxChars,
		MaxSourceRatio: DefaultMaxSourceRatio,
		MinOverlap:     DefaultMinOverlap,
	}
}

// Validator checks candidate summaries produced by less-trusted models.
type Validator struct {
	config *ValidatorConfig
}

// NewValidator creates a Validator. A nil config uses defaults; zero fields
// in a non-nil config are filled with defaults.
func NewValidator(config *ValidatorConfig) *Validator {
	if config == nil {
		config = DefaultValidatorConfig()
	}
	if config.MaxChars == 0 {
		config.MaxChars = DefaultMaxChars
	}
	if config.MaxSourceRatio == 0 {
		config.MaxSourceRatio = DefaultMaxSourceRatio
	}
	if config.MinOverlap == 0 {
		config.MinOverlap = DefaultMinOverlap
	}
	if config.PreamblePrefixes == nil {
		config.PreamblePrefixes = defaultPreamblePrefixes
	}
	if config.SectionMarkers == nil {
		config.SectionMarkers = defaultSectionMarkers
	}
	return &Validator{config: config}
}

// Check reports whether the candidate summary is acceptable. On rejection it
// returns the reason, which callers log: validator rejections are one of the
// most likely latent-bug sources and must stay diagnosable.
func (v *Validator) Check(summary string, source []Message) (bool, string) {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return false, "empty summary"
	}

	lower := strings.ToLower(summary)
	for _, prefix := range v.config.PreamblePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false, fmt.Sprintf("conversational preamble %q", prefix)
		}
	}

	if !v.config.AllowStructured {
		for _, marker := range v.config.SectionMarkers {
			if strings.Contains(lower, marker) {
				return false, fmt.Sprintf("section formatting %q", strings.TrimSpace(marker))
			}
		}
	}

	if len(summary) > v.config.MaxChars {
		return false, fmt.Sprintf("length %d exceeds ceiling %d", len(summary), v.config.MaxChars)
	}

	sourceLen := 0
	for _, msg := range source {
		sourceLen += len(msg.Content)
	}
	if sourceLen > 0 {
		ratio := float64(len(summary)) / float64(sourceLen)
		if ratio > v.config.MaxSourceRatio {
			return false, fmt.Sprintf("length ratio %.2f exceeds %.2f", ratio, v.config.MaxSourceRatio)
		}
	}

	overlap := lexicalOverlap(summary, source)
	if overlap < v.config.MinOverlap {
		return false, fmt.Sprintf("lexical overlap %.3f below %.3f", overlap, v.config.MinOverlap)
	}

	return true, ""
}

// IsInvalid is the boolean form of Check.
func (v *Validator) IsInvalid(summary string, source []Message) bool {
	ok, _ := v.Check(summary, source)
	return !ok
}

// lexicalOverlap returns the fraction of summary words that appear literally
// in the source text.
func lexicalOverlap(summary string, source []Message) float64 {
	summaryWords := splitWords(summary)
	if len(summaryWords) == 0 {
		return 0
	}

	sourceSet := make(map[string]struct{})
	for _, msg := range source {
		for _, word := range splitWords(msg.Content) {
			sourceSet[word] = struct{}{}
		}
	}

	matched := 0
	for _, word := range summaryWords {
		if _, ok := sourceSet[word]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(summaryWords))
}

func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
