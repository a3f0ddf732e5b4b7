// Package genai optionally rewrites templated captions with the OpenAI API.
//
// Enhancement is best-effort: callers fall back to the original caption on
// any error, so a missing key or API outage never blocks a post.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const systemPrompt = "You punch up short social media captions for a daily " +
	"year-progress video. Keep the percentage figure exactly as given, keep it " +
	"under 150 characters, no hashtags, no emoji spam."

// completionService is the minimal chat-completion surface, extracted so tests
// can substitute a mock.
type completionService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Enhancer rewrites captions through a chat model.
type Enhancer struct {
	completions completionService
	model       openai.ChatModel
}

// NewEnhancer builds an Enhancer with the given API key.
func NewEnhancer(apiKey string) (*Enhancer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key must be provided")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Enhancer{
		completions: &client.Chat.Completions,
		model:       openai.ChatModelGPT4oMini,
	}, nil
}

// EnhanceCaption returns a rewritten caption, or an error the caller should
// treat as "use the original".
func (e *Enhancer) EnhanceCaption(ctx context.Context, caption string) (string, error) {
	resp, err := e.completions.New(ctx, openai.ChatCompletionNewParams{
		Model: e.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(caption),
		},
	})
	if err != nil {
		return "", fmt.Errorf("caption enhancement request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("caption enhancement returned no choices")
	}
	enhanced := strings.TrimSpace(resp.Choices[0].Message.Content)
	if enhanced == "" {
		return "", fmt.Errorf("caption enhancement returned empty content")
	}
	slog.Debug("caption enhanced", "original_len", len(caption), "enhanced_len", len(enhanced))
	return enhanced, nil
}
