package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LocalCompleter talks to a locally-hosted, OpenAI-compatible chat completion
// endpoint (Ollama, llama.cpp server, LM Studio and the like). It exists so
// that summarization keeps working offline for sessions bound to a local
// model.
type LocalCompleter struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewLocalCompleter creates a completer for the given base URL and model.
// baseURL is the API root, e.g. "http://localhost:11434/v1".
func NewLocalCompleter(baseURL, model string, timeout time.Duration) *LocalCompleter {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &LocalCompleter{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Complete runs a single chat completion against the local endpoint.
func (c *LocalCompleter) Complete(ctx context.Context, systemPrompt string, messages []Message, opts Options) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("%w: missing base url", ErrCompletionFailed)
	}
	if c.model == "" {
		return "", fmt.Errorf("%w: missing model", ErrCompletionFailed)
	}

	chatMessages := make([]map[string]string, 0, len(messages)+1)
	if systemPrompt != "" {
		chatMessages = append(chatMessages, map[string]string{
			"role":    "system",
			"content": systemPrompt,
		})
	}
	for _, msg := range messages {
		chatMessages = append(chatMessages, map[string]string{
			"role":    msg.Role,
			"content": msg.Content,
		})
	}

	body := map[string]any{
		"model":       c.model,
		"messages":    chatMessages,
		"max_tokens":  opts.MaxTokens,
		"temperature": opts.Temperature,
		"stream":      false,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrCompletionFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: http %d: %s", ErrCompletionFailed, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrCompletionFailed, err)
	}

	if len(decoded.Choices) == 0 || decoded.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty response", ErrCompletionFailed)
	}

	return decoded.Choices[0].Message.Content, nil
}
