package summarize

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
)

// TokenCounter measures summary sizes via Claude's token counting API, with
// caching and a character-based approximation fallback. Counts feed logging
// and stats only; budget math elsewhere stays on the cheap deterministic
// estimator.
type TokenCounter struct {
	client *anthropic.Client
	model  string

	mu    sync.Mutex
	cache map[string]int
}

// NewTokenCounter creates a token counter for the given client and model.
func NewTokenCounter(client *anthropic.Client, model string) *TokenCounter {
	return &TokenCounter{
		client: client,
		model:  model,
		cache:  make(map[string]int),
	}
}

// Count returns the token count for the content. API failures fall back to
// approximation and are not surfaced.
func (c *TokenCounter) Count(ctx context.Context, content string) int {
	if content == "" {
		return 0
	}
	if c == nil || c.client == nil {
		return ApproximateTokens(content)
	}

	key := c.cacheKey(content)
	c.mu.Lock()
	if count, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return count
	}
	c.mu.Unlock()

	resp, err := c.client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(content)),
		},
	})
	if err != nil {
		return ApproximateTokens(content)
	}

	count := int(resp.InputTokens)
	c.mu.Lock()
	c.cache[key] = count
	c.mu.Unlock()
	return count
}

// ApproximateTokens provides fast estimation without an API call, assuming
// roughly 4 characters per token.
func ApproximateTokens(content string) int {
	return (len(content) + 3) / 4
}

func (c *TokenCounter) cacheKey(content string) string {
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s:%x", c.model, hash[:8])
}
