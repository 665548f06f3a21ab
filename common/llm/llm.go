package llm

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Provider constants for AI provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config holds provider client configuration.
type Config struct {
	APIKey  string // Required: API key for the provider
	BaseURL string // Optional: custom API endpoint
	Model   string // Model name (e.g. "gpt-4o-mini", "claude-sonnet-4-5-20250514")
}

// Provider is the uniform capability every AI backend exposes to the engine.
// The fallback executor only ever talks to this contract.
type Provider interface {
	Name() string
	// IsAvailable probes the provider's API. A nil error means the provider
	// can be tried for generation. Callers bound the probe with a context
	// timeout.
	IsAvailable(ctx context.Context) error
	// GenerateResponse runs a single-turn completion and returns the text.
	GenerateResponse(ctx context.Context, prompt string, opts Options) (string, error)
}

// Embedder is an optional capability; providers that support embeddings
// implement it in addition to Provider.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float64, error)
}

// Options control a single generation call.
type Options struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  *float64 // nil = model default, explicit 0 = deterministic
	SchemaName   string   // optional: structured output schema name
	Schema       any      // optional: JSON Schema the response must satisfy
}

// New creates a Provider for the given backend name.
func New(name string, cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	switch name {
	case ProviderOpenAI:
		return newOpenAIProvider(ProviderOpenAI, cfg)
	case ProviderAnthropic:
		return newAnthropicProvider(cfg)
	case ProviderGemini:
		return newGeminiProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", name)
	}
}

// GenerateSchema generates a JSON schema for T, suitable for structured
// output response formats.
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Temp(t float64) *float64 {
	return &t
}
