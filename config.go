package memory

import (
	"fmt"
	"time"

	"github.com/Kalito-Labs/luna-memory/summarize"
)

// Default configuration values. Summarization threshold and cache TTL are
// deployment-tunable, not contract values; deployments tune them for their
// conversational density.
const (
	DefaultRecentWindow     = 8
	DefaultPinLimit         = 5
	DefaultSummaryLimit     = 3
	DefaultMinRecentKept    = 3
	DefaultTokenBudget      = 2048
	DefaultTokenRatio       = 0.75
	DefaultSummaryThreshold = 12
	DefaultCacheTTL         = 15 * time.Second
	DefaultSummarizerModel  = "claude-3-5-haiku-20241022"
)

// Config holds memory subsystem configuration.
type Config struct {
	// RecentWindow is the number of recent messages fetched for context,
	// excluding the just-submitted turn.
	// Default: 8
	RecentWindow int

	// PinLimit is the number of semantic pins fetched for context.
	// Default: 5
	PinLimit int

	// SummaryLimit is the number of summaries fetched for context.
	// Default: 3
	SummaryLimit int

	// MinRecentKept is the number of most recent messages that truncation
	// always keeps, regardless of budget. Recency is non-negotiable for
	// conversational coherence.
	// Default: 3
	MinRecentKept int

	// TokenBudget is the default context size bound when the caller
	// passes no budget.
	// Default: 2048
	TokenBudget int

	// TokenRatio converts character counts to estimated tokens. The
	// estimate is intentionally approximate: it runs on every turn, so
	// precision is traded for speed.
	// Default: 0.75
	TokenRatio float64

	// SummaryThreshold is the message count since the last summary that
	// triggers compaction.
	// Default: 12
	SummaryThreshold int

	// CacheTTL bounds read-cache staleness. Short enough that a missed
	// invalidation self-heals, long enough to absorb bursty reads within
	// one turn.
	// Default: 15s
	CacheTTL time.Duration

	// SummarizerModel is the cloud model used for summarization. A
	// faster/cheaper model is recommended.
	// Default: "claude-3-5-haiku-20241022"
	SummarizerModel string

	// SummarizerMaxTokens caps the summarization response length.
	// Default: summarize.DefaultMaxTokens
	SummarizerMaxTokens int

	// SummarizerTimeout bounds the summarization call. A hung external
	// call must never keep the trigger out of its idle state.
	// Default: summarize.DefaultTimeout
	SummarizerTimeout time.Duration

	// LocalBaseURL is an optional OpenAI-compatible endpoint for a
	// locally-hosted summarization model, tried before the cloud model.
	LocalBaseURL string

	// LocalModel is the model name served by LocalBaseURL.
	LocalModel string

	// MeasureTokens enables measuring produced summaries via the token
	// counting API instead of character approximation.
	// Default: false
	MeasureTokens bool

	// Scorer overrides the importance scoring weights and vocabulary.
	// Nil means defaults.
	Scorer *ScorerConfig

	// Validator overrides the summary validator thresholds.
	// Nil means defaults.
	Validator *summarize.ValidatorConfig
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RecentWindow:        DefaultRecentWindow,
		PinLimit:            DefaultPinLimit,
		SummaryLimit:        DefaultSummaryLimit,
		MinRecentKept:       DefaultMinRecentKept,
		TokenBudget:         DefaultTokenBudget,
		TokenRatio:          DefaultTokenRatio,
		SummaryThreshold:    DefaultSummaryThreshold,
		CacheTTL:            DefaultCacheTTL,
		SummarizerModel:     DefaultSummarizerModel,
		SummarizerMaxTokens: summarize.DefaultMaxTokens,
		SummarizerTimeout:   summarize.DefaultTimeout,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.RecentWindow == 0 {
		c.RecentWindow = DefaultRecentWindow
	}
	if c.PinLimit == 0 {
		c.PinLimit = DefaultPinLimit
	}
	if c.SummaryLimit == 0 {
		c.SummaryLimit = DefaultSummaryLimit
	}
	if c.MinRecentKept == 0 {
		c.MinRecentKept = DefaultMinRecentKept
	}
	if c.TokenBudget == 0 {
		c.TokenBudget = DefaultTokenBudget
	}
	if c.TokenRatio == 0 {
		c.TokenRatio = DefaultTokenRatio
	}
	if c.SummaryThreshold == 0 {
		c.SummaryThreshold = DefaultSummaryThreshold
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.SummarizerModel == "" {
		c.SummarizerModel = DefaultSummarizerModel
	}
	if c.SummarizerMaxTokens == 0 {
		c.SummarizerMaxTokens = summarize.DefaultMaxTokens
	}
	if c.SummarizerTimeout == 0 {
		c.SummarizerTimeout = summarize.DefaultTimeout
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.RecentWindow <= 0 {
		return fmt.Errorf("%w: recent_window must be positive, got %d", ErrInvalidConfig, c.RecentWindow)
	}
	if c.PinLimit < 0 {
		return fmt.Errorf("%w: pin_limit must be non-negative, got %d", ErrInvalidConfig, c.PinLimit)
	}
	if c.SummaryLimit < 0 {
		return fmt.Errorf("%w: summary_limit must be non-negative, got %d", ErrInvalidConfig, c.SummaryLimit)
	}
	if c.MinRecentKept < 0 {
		return fmt.Errorf("%w: min_recent_kept must be non-negative, got %d", ErrInvalidConfig, c.MinRecentKept)
	}
	if c.TokenBudget <= 0 {
		return fmt.Errorf("%w: token_budget must be positive, got %d", ErrInvalidConfig, c.TokenBudget)
	}
	if c.TokenRatio <= 0 {
		return fmt.Errorf("%w: token_ratio must be positive, got %f", ErrInvalidConfig, c.TokenRatio)
	}
	if c.SummaryThreshold <= 0 {
		return fmt.Errorf("%w: summary_threshold must be positive, got %d", ErrInvalidConfig, c.SummaryThreshold)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("%w: cache_ttl must be positive, got %v", ErrInvalidConfig, c.CacheTTL)
	}
	if c.SummarizerModel == "" {
		return fmt.Errorf("%w: summarizer_model is required", ErrInvalidConfig)
	}
	return nil
}
