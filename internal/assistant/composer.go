package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// DefaultComposerModel is used when no model is configured.
const DefaultComposerModel = "gemini-2.0-flash"

// GenAIComposer phrases replies with the Gemini API. The routing and
// execution pipeline never depends on it; it only rewrites already
// computed results into prose.
type GenAIComposer struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGenAIComposer creates a composer. The API key comes from the
// GEMINI_API_KEY environment variable when the client config leaves it
// empty.
func NewGenAIComposer(ctx context.Context, model string, logger *slog.Logger) (*GenAIComposer, error) {
	if model == "" {
		model = DefaultComposerModel
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAIComposer{client: client, model: model, logger: logger}, nil
}

// Compose sends the prompt and returns the generated reply.
func (c *GenAIComposer) Compose(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("model returned an empty response")
	}
	c.logger.Debug("reply composed",
		slog.String("model", c.model),
		slog.Int("chars", len(text)))
	return text, nil
}
