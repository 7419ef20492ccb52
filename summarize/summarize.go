package summarize

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Logger interface for summarization logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a no-op implementation of Logger.
type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// ErrCompletionFailed indicates a completion call failed or returned nothing.
var ErrCompletionFailed = errors.New("completion failed")

// Message is one conversation turn handed to the summarizer.
type Message struct {
	Role    string
	Content string
}

// Options control a single completion call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Completer is the abstract text-completion capability. Implementations are
// single-shot, possibly slow, possibly failing external calls.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, messages []Message, opts Options) (string, error)
}

// Default configuration values.
const (
	DefaultTimeout          = 30 * time.Second
	DefaultMaxTokens        = 512
	DefaultMaxWords         = 150
	DefaultFallbackMaxChars = 600

	// summaryTemperature is forced low: correctness matters more than
	// stylistic variety here.
	summaryTemperature = 0.1
)

// Config holds summarizer configuration.
type Config struct {
	// Local is the completion endpoint bound to the session's local model,
	// if any. Tried first; its output is validated before acceptance.
	Local Completer

	// Cloud is the trusted default completion endpoint, used when no local
	// endpoint is configured or the local call errored. A rejected local
	// result skips the cloud and goes straight to the extractive fallback.
	Cloud Completer

	// Validator checks local-model output. Nil means default thresholds.
	Validator *Validator

	// Timeout bounds each completion call.
	// Default: 30s
	Timeout time.Duration

	// MaxTokens caps the completion response length.
	// Default: 512
	MaxTokens int

	// MaxWords is the numeric length bound stated in the prompt.
	// Default: 150
	MaxWords int

	// FallbackMaxChars caps the extractive fallback summary.
	// Default: 600
	FallbackMaxChars int

	// Counter measures produced summaries for logging and stats. Nil
	// means character approximation only.
	Counter *TokenCounter

	// Logger receives rejection reasons and completion failures.
	Logger Logger
}

// Summarizer produces summaries of message ranges. The zero-value preference
// order is local endpoint, then cloud endpoint, then extractive fallback;
// Summarize never returns an error to the caller.
type Summarizer struct {
	local            Completer
	cloud            Completer
	validator        *Validator
	counter          *TokenCounter
	timeout          time.Duration
	maxTokens        int
	maxWords         int
	fallbackMaxChars int
	logger           Logger
}

// NewSummarizer creates a Summarizer from the given configuration.
func NewSummarizer(cfg Config) *Summarizer {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxWords == 0 {
		cfg.MaxWords = DefaultMaxWords
	}
	if cfg.FallbackMaxChars == 0 {
		cfg.FallbackMaxChars = DefaultFallbackMaxChars
	}
	if cfg.Validator == nil {
		cfg.Validator = NewValidator(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}

	return &Summarizer{
		local:            cfg.Local,
		cloud:            cfg.Cloud,
		validator:        cfg.Validator,
		counter:          cfg.Counter,
		timeout:          cfg.Timeout,
		maxTokens:        cfg.MaxTokens,
		maxWords:         cfg.MaxWords,
		fallbackMaxChars: cfg.FallbackMaxChars,
		logger:           cfg.Logger,
	}
}

// Summarize compresses the given messages into a summary. It always returns
// usable text: generative failures and validator rejections degrade to the
// deterministic extractive summary.
func (s *Summarizer) Summarize(ctx context.Context, messages []Message) string {
	if len(messages) == 0 {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	systemPrompt := BuildSystemPrompt(s.maxWords)
	userPrompt := BuildUserPrompt(FormatTranscript(messages))
	opts := Options{Temperature: summaryTemperature, MaxTokens: s.maxTokens}
	request := []Message{{Role: "user", Content: userPrompt}}

	if s.local != nil {
		text, err := s.local.Complete(ctx, systemPrompt, request, opts)
		switch {
		case err != nil:
			s.logger.Warn("local summarization failed", "error", err)
		default:
			text = strings.TrimSpace(text)
			if ok, reason := s.validator.Check(text, messages); ok {
				s.logger.Debug("local summary accepted", "tokens", s.countTokens(ctx, text))
				return text
			} else {
				// Rejected local output means a fabricating model;
				// retries are not assumed to self-correct, so fall
				// straight through to the deterministic fallback.
				s.logger.Warn("local summary rejected", "reason", reason)
				return ExtractiveSummary(messages, s.fallbackMaxChars)
			}
		}
	}

	if s.cloud != nil {
		text, err := s.cloud.Complete(ctx, systemPrompt, request, opts)
		if err != nil {
			s.logger.Warn("cloud summarization failed", "error", err)
		} else if text = strings.TrimSpace(text); text != "" {
			s.logger.Debug("cloud summary accepted", "tokens", s.countTokens(ctx, text))
			return text
		}
	}

	s.logger.Info("using extractive fallback summary", "messages", len(messages))
	return ExtractiveSummary(messages, s.fallbackMaxChars)
}

func (s *Summarizer) countTokens(ctx context.Context, text string) int {
	if s.counter == nil {
		return ApproximateTokens(text)
	}
	return s.counter.Count(ctx, text)
}
