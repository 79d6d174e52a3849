// Package llm wraps the Anthropic Messages API for the evolution
// orchestrator (spec §4.8), with the retry/backoff contract from
// spec §5: up to 3 retries, exponential backoff starting at 2s, on
// transient status codes {429, 500, 502, 503, 529}.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// MaxRetries is the number of retry attempts after the first try.
const MaxRetries = 3

// BaseDelay is the base of the exponential backoff: delay(attempt) =
// BaseDelay * 2^attempt.
const BaseDelay = 2 * time.Second

// RequestTimeout bounds a single attempt.
const RequestTimeout = 120 * time.Second

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true, // 429
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	529:                            true, // Anthropic overloaded
}

// Client sends a system+user prompt pair to an LLM and returns the
// assistant's text reply.
type Client interface {
	SendMessage(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// AnthropicClient is the production Client backed by
// anthropic-sdk-go.
type AnthropicClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicClient builds a Client for the given API key and model.
// An empty apiKey is a configuration error the caller should reject
// before evolution runs, per spec §4.8's "missing file"-style failure
// contract: callers are expected to validate config up front.
func NewAnthropicClient(apiKey, model string, maxTokens int64) *AnthropicClient {
	return &AnthropicClient{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}
}

// SendMessage submits systemPrompt/userMessage, retrying transient
// failures with exponential backoff, and returns the first text block
// of the response.
func (c *AnthropicClient) SendMessage(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, RequestTimeout)
		resp, err := c.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     c.model,
			MaxTokens: c.maxTokens,
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)),
			},
		})
		cancel()

		if err == nil {
			for _, block := range resp.Content {
				if block.Type == "text" {
					return block.Text, nil
				}
			}
			return "", errors.New("llm: no text content in response")
		}

		lastErr = err
		if attempt == MaxRetries || !isRetryable(err) {
			return "", fmt.Errorf("llm request failed: %w", err)
		}

		delay := BaseDelay * time.Duration(1<<uint(attempt))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("llm request canceled during backoff: %w", ctx.Err())
		}
	}

	return "", fmt.Errorf("llm request failed after %d attempts: %w", MaxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return retryableStatus[apiErr.StatusCode]
	}
	return false
}
