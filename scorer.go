package memory

import (
	"strings"

	"github.com/Kalito-Labs/luna-memory/storage"
)

// Default scoring weights. The mechanism (baseline plus additive clamped
// increments) is part of the core contract: truncation ordering depends on
// score monotonicity being stable across calls. The vocabulary is domain
// knowledge and lives in ScorerConfig.
const (
	DefaultScoreBaseline     = 0.5
	DefaultQuestionBoost     = 0.10
	DefaultMarkupBoost       = 0.10
	DefaultLengthBoost       = 0.05
	DefaultAssistantBoost    = 0.05
	DefaultLongMessageChars  = 240
	DefaultCrisisBoost       = 0.25
	DefaultCareBoost         = 0.15
	DefaultRelationshipBoost = 0.15
	DefaultProblemBoost      = 0.08
)

// VocabTier is a named set of high-salience terms with a score boost.
type VocabTier struct {
	Name  string
	Terms []string
	Boost float64
}

// ScorerConfig holds the tunable scoring weights and vocabulary tiers.
type ScorerConfig struct {
	// Baseline is the neutral starting score.
	// Default: 0.5
	Baseline float64

	// QuestionBoost is added for interrogative messages.
	QuestionBoost float64

	// MarkupBoost is added for structured or technical markup.
	MarkupBoost float64

	// LengthBoost is added for messages longer than LongMessageChars.
	LengthBoost float64

	// LongMessageChars is the length threshold for LengthBoost.
	LongMessageChars int

	// AssistantBoost is added for assistant-authored messages.
	AssistantBoost float64

	// Tiers are the domain vocabulary tiers, checked independently; at
	// most one boost per tier is applied.
	Tiers []VocabTier
}

// DefaultScorerConfig returns the default weights with the conversational
// support vocabulary: crisis language scores highest, treatment and
// relationship references next, general problem language lowest.
func DefaultScorerConfig() *ScorerConfig {
	return &ScorerConfig{
		Baseline:         DefaultScoreBaseline,
		QuestionBoost:    DefaultQuestionBoost,
		MarkupBoost:      DefaultMarkupBoost,
		LengthBoost:      DefaultLengthBoost,
		LongMessageChars: DefaultLongMessageChars,
		AssistantBoost:   DefaultAssistantBoost,
		Tiers: []VocabTier{
			{
				Name:  "crisis",
				Boost: DefaultCrisisBoost,
				Terms: []string{
					"crisis", "urgent", "emergency", "hopeless",
					"can't cope", "hurt myself", "suicid",
				},
			},
			{
				Name:  "care",
				Boost: DefaultCareBoost,
				Terms: []string{
					"medication", "therapy", "therapist", "treatment",
					"diagnos", "dose", "prescri", "appointment",
				},
			},
			{
				Name:  "relationship",
				Boost: DefaultRelationshipBoost,
				Terms: []string{
					"family", "partner", "relationship", "mother",
					"father", "sister", "brother", "marriage", "divorce",
				},
			},
			{
				Name:  "problem",
				Boost: DefaultProblemBoost,
				Terms: []string{
					"problem", "error", "issue", "failed", "wrong", "stuck",
				},
			},
		},
	}
}

// Scorer assigns importance scores to messages. It is a pure function of
// role and text: no side effects, deterministic for identical input.
type Scorer struct {
	config *ScorerConfig
}

// NewScorer creates a Scorer. A nil config uses the default weights.
func NewScorer(config *ScorerConfig) *Scorer {
	if config == nil {
		config = DefaultScorerConfig()
	}
	if config.Baseline == 0 {
		config.Baseline = DefaultScoreBaseline
	}
	if config.LongMessageChars == 0 {
		config.LongMessageChars = DefaultLongMessageChars
	}
	return &Scorer{config: config}
}

// Score computes the importance of a message, clamped to [0, 1].
func (s *Scorer) Score(role, text string) float64 {
	score := s.config.Baseline
	lower := strings.ToLower(text)

	if isInterrogative(lower) {
		score += s.config.QuestionBoost
	}
	if hasStructuredMarkup(text) {
		score += s.config.MarkupBoost
	}
	for _, tier := range s.config.Tiers {
		if containsAnyTerm(lower, tier.Terms) {
			score += tier.Boost
		}
	}
	if len(text) > s.config.LongMessageChars {
		score += s.config.LengthBoost
	}
	if role == storage.RoleAssistant {
		score += s.config.AssistantBoost
	}

	return clampScore(score)
}

func isInterrogative(lower string) bool {
	if strings.Contains(lower, "?") {
		return true
	}
	for _, prefix := range []string{"how ", "what ", "why ", "when ", "where ", "who ", "can ", "should "} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func hasStructuredMarkup(text string) bool {
	if strings.Contains(text, "```") {
		return true
	}
	for _, marker := range []string{"\n- ", "\n* ", "\n1. ", "\n| "} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func containsAnyTerm(lower string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
