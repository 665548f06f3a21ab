package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openaiProvider struct {
	client openai.Client
	name   string
	model  string
}

// newOpenAIProvider creates a Provider over any OpenAI-compatible endpoint.
// The Gemini adapter reuses it with a different base URL.
func newOpenAIProvider(name string, cfg Config) (Provider, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &openaiProvider{
		client: openai.NewClient(opts...),
		name:   name,
		model:  model,
	}, nil
}

func (p *openaiProvider) Name() string {
	return p.name
}

func (p *openaiProvider) IsAvailable(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("%s models list: %w", p.name, err)
	}
	return nil
}

func (p *openaiProvider) GenerateResponse(ctx context.Context, prompt string, genOpts Options) (string, error) {
	maxTokens := genOpts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if genOpts.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(genOpts.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:               p.model,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if genOpts.Temperature != nil {
		params.Temperature = openai.Float(*genOpts.Temperature)
	}
	if genOpts.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        genOpts.SchemaName,
					Description: openai.String("Structured response schema"),
					Schema:      genOpts.Schema,
					Strict:      openai.Bool(true),
				},
			},
		}
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s chat: %w", p.name, err)
	}

	slog.DebugContext(ctx, "chat completed",
		"provider", p.name,
		"model", p.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat: no choices in response", p.name)
	}

	return resp.Choices[0].Message.Content, nil
}

func (p *openaiProvider) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModelTextEmbedding3Small,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s embedding: %w", p.name, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%s embedding: empty response", p.name)
	}
	return resp.Data[0].Embedding, nil
}
