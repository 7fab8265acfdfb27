package embeddings

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini batch requests are capped by the API.
const geminiBatchLimit = 100

type GeminiEmbedder struct {
	client *genai.Client
	model  *genai.EmbeddingModel
}

func NewGeminiEmbedder(ctx context.Context, opts Options) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.GoogleAPIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: client.EmbeddingModel(opts.Model)}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += geminiBatchLimit {
		end := min(start+geminiBatchLimit, len(texts))

		batch := e.model.NewBatch()
		for _, text := range texts[start:end] {
			batch.AddContent(genai.Text(text))
		}

		res, err := e.model.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch embed gemini contents: %w", err)
		}
		for _, emb := range res.Embeddings {
			results = append(results, emb.Values)
		}
	}

	return results, nil
}

func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}

var _ Embedder = (*GeminiEmbedder)(nil)
