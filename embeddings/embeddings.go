package embeddings

import (
	"context"
	"fmt"

	"github.com/fabfab/hr-copilot/config"
)

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	Provider  string
	Model     string
	Dimension int

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GoogleAPIKey  string
}

// NewEmbedder builds the configured embedder. Every provider is wrapped so
// malformed vectors surface as ErrUnavailable.
func NewEmbedder(ctx context.Context, cfg config.Config) (Embedder, error) {
	opts := Options{
		Provider:      cfg.Embeddings.Provider,
		Model:         cfg.Embeddings.Model,
		Dimension:     cfg.Embeddings.Dimension,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		GoogleAPIKey:  cfg.GoogleAPIKey,
	}

	var inner Embedder
	switch opts.Provider {
	case config.ProviderOllama:
		inner = NewOllamaEmbedder(opts)
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		inner = NewOpenAIEmbedder(opts)
	case config.ProviderGemini:
		if opts.GoogleAPIKey == "" {
			return nil, fmt.Errorf("gemini provider selected but GOOGLE_API_KEY not set")
		}
		gemini, err := NewGeminiEmbedder(ctx, opts)
		if err != nil {
			return nil, err
		}
		inner = gemini
	case config.ProviderHash:
		inner = NewHashEmbedder(opts.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", opts.Provider)
	}

	return Validate(opts.Provider, opts.Dimension, inner), nil
}
