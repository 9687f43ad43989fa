// Package agent wraps the LLM stages of the chat pipeline: intent
// classification, SQL generation, answer synthesis, and follow-up
// suggestions. Every stage is a single completion call with a
// constrained output shape; parsing failures degrade per stage instead
// of failing the whole request.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v4"

	"github.com/hypersignal/backend/internal/config"
)

// LLMClient is the completion interface the pipeline stages run on.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// AnthropicClient implements LLMClient using the Anthropic API. The API
// key is taken from the environment by the SDK.
type AnthropicClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	log       *slog.Logger
}

// NewAnthropicClient creates a client for the configured model.
func NewAnthropicClient(cfg config.AgentConfig, log *slog.Logger) *AnthropicClient {
	return &AnthropicClient{
		client:    anthropic.NewClient(),
		model:     anthropic.Model(cfg.Model),
		maxTokens: cfg.MaxTokens,
		log:       log.With("component", "llm"),
	}
}

// Complete sends one prompt pair and returns the response text.
// Transient API failures are retried with exponential backoff.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var text string

	op := func() error {
		start := time.Now()
		msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     c.model,
			MaxTokens: c.maxTokens,
			System: []anthropic.TextBlockParam{
				{Type: "text", Text: systemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
			},
		})
		if err != nil {
			c.log.Warn("completion failed", "model", c.model, "duration", time.Since(start), "error", err)
			return err
		}
		c.log.Debug("completion ok", "model", c.model, "duration", time.Since(start), "stop_reason", msg.StopReason)

		for _, block := range msg.Content {
			if block.Type == "text" {
				text = block.Text
				return nil
			}
		}
		return backoff.Permanent(fmt.Errorf("no text content in response"))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	return text, nil
}
