package llm

import (
	"context"
	"fmt"

	"github.com/fabfab/hr-copilot/config"
)

// Params are the generation settings sent with every prompt.
type Params struct {
	Temperature float32
	MaxTokens   int
}

type Client interface {
	Generate(ctx context.Context, prompt string, params Params) (string, error)
}

type Options struct {
	Provider string
	Model    string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GoogleAPIKey  string
}

func ParamsFromConfig(cfg config.Config) Params {
	return Params{Temperature: cfg.LLM.Temperature, MaxTokens: cfg.LLM.MaxTokens}
}

// NewClient builds the configured generation client. The client is meant to
// be created once and shared; callers should Close it when it implements
// io.Closer.
func NewClient(ctx context.Context, cfg config.Config) (Client, error) {
	opts := Options{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.LLM.Model,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		GoogleAPIKey:  cfg.GoogleAPIKey,
	}

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIClient(opts), nil
	case config.ProviderGemini:
		if opts.GoogleAPIKey == "" {
			return nil, fmt.Errorf("gemini provider selected but GOOGLE_API_KEY not set")
		}
		client, err := NewGeminiClient(ctx, opts)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}
}
