package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicProvider struct {
	client anthropic.Client
	model  string
}

// newAnthropicProvider creates a Provider using the Anthropic Messages API.
func newAnthropicProvider(cfg Config) (Provider, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5-20250514"
	}

	return &anthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

func (p *anthropicProvider) Name() string {
	return ProviderAnthropic
}

func (p *anthropicProvider) IsAvailable(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return fmt.Errorf("anthropic models list: %w", err)
	}
	return nil
}

func (p *anthropicProvider) GenerateResponse(ctx context.Context, prompt string, genOpts Options) (string, error) {
	maxTokens := genOpts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(prompt),
				},
			},
		},
	}

	// Anthropic requires system prompts to be passed separately, not in the
	// messages array.
	if genOpts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: genOpts.SystemPrompt},
		}
	}

	if genOpts.Temperature != nil {
		params.Temperature = anthropic.Float(*genOpts.Temperature)
	}

	start := time.Now()
	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic chat: %w", err)
	}

	slog.DebugContext(ctx, "chat completed",
		"provider", ProviderAnthropic,
		"model", p.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason)

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	if content == "" {
		return "", fmt.Errorf("anthropic chat: empty response")
	}

	return content, nil
}
