package llm

const geminiOpenAIEndpoint = "https://generativelanguage.googleapis.com/v1beta/openai/"

// newGeminiProvider creates a Provider over Gemini's OpenAI-compatible
// endpoint. The adapter is the OpenAI client pointed at Google's base URL.
func newGeminiProvider(cfg Config) (Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiOpenAIEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	return newOpenAIProvider(ProviderGemini, cfg)
}
