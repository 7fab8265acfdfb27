package embeddings_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fabfab/hr-copilot/config"
	"github.com/fabfab/hr-copilot/embeddings"
)

type stubEmbedder struct {
	vectors [][]float32
	err     error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return s.vectors, s.err
}

var _ embeddings.Embedder = (*stubEmbedder)(nil)

func TestNewEmbedderDefaults(t *testing.T) {
	cfg := config.Config{
		Embeddings: config.EmbeddingConfig{
			Provider:  config.ProviderOllama,
			Model:     "nomic-embed-text",
			Dimension: 3,
		},
		OllamaHost: "http://localhost:11434",
	}

	embedder, err := embeddings.NewEmbedder(context.Background(), cfg)
	if err != nil {
		t.Fatalf("expected embedder, got error: %v", err)
	}

	if embedder == nil {
		t.Fatal("expected non-nil embedder")
	}
}

func TestNewEmbedderMissingKeys(t *testing.T) {
	for _, provider := range []string{config.ProviderOpenAI, config.ProviderGemini} {
		cfg := config.Config{
			Embeddings: config.EmbeddingConfig{Provider: provider, Model: "model", Dimension: 768},
		}
		if _, err := embeddings.NewEmbedder(context.Background(), cfg); err == nil {
			t.Fatalf("expected error for %s without API key", provider)
		}
	}
}

func TestValidateRejectsUnusableVectors(t *testing.T) {
	tests := []struct {
		name  string
		inner *stubEmbedder
	}{
		{name: "transport error", inner: &stubEmbedder{err: errors.New("connection refused")}},
		{name: "zero vector", inner: &stubEmbedder{vectors: [][]float32{{0, 0, 0}}}},
		{name: "wrong dimension", inner: &stubEmbedder{vectors: [][]float32{{1, 0}}}},
		{name: "missing vector", inner: &stubEmbedder{vectors: nil}},
		{name: "empty vector", inner: &stubEmbedder{vectors: [][]float32{{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := embeddings.Validate("stub", 3, tt.inner)
			_, err := embedder.Embed(context.Background(), []string{"parental leave"})
			if !errors.Is(err, embeddings.ErrUnavailable) {
				t.Fatalf("expected ErrUnavailable, got %v", err)
			}
		})
	}
}

func TestValidatePassesGoodVectors(t *testing.T) {
	embedder := embeddings.Validate("stub", 3, &stubEmbedder{vectors: [][]float32{{0.1, 0.2, 0.3}}})
	vectors, err := embedder.Embed(context.Background(), []string{"parental leave"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 1 || len(vectors[0]) != 3 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
}

func TestHashEmbedderDeterministicAndNormalized(t *testing.T) {
	embedder := embeddings.NewHashEmbedder(64)
	first, err := embedder.Embed(context.Background(), []string{"Maternity leave lasts 26 weeks."})
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	second, _ := embedder.Embed(context.Background(), []string{"Maternity leave lasts 26 weeks."})

	var norm float64
	for i := range first[0] {
		if first[0][i] != second[0][i] {
			t.Fatalf("embedding differs at %d", i)
		}
		norm += float64(first[0][i]) * float64(first[0][i])
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Fatalf("expected unit vector, got norm %v", norm)
	}
}

func TestHashEmbedderStopWordsOnlyIsNonZero(t *testing.T) {
	vectors, err := embeddings.Validate("hash", 16, embeddings.NewHashEmbedder(16)).
		Embed(context.Background(), []string{"what is the"})
	if err != nil {
		t.Fatalf("expected a usable vector, got %v", err)
	}
	if vectors[0][0] != 1 {
		t.Fatalf("expected fallback bucket, got %v", vectors[0])
	}
}

func TestOllamaEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "nomic-embed-text" {
			t.Errorf("unexpected model %q", req.Model)
		}
		vectors := make([][]float32, len(req.Input))
		for i := range req.Input {
			vectors[i] = []float32{0.5, 0.25, float32(i)}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": vectors})
	}))
	defer server.Close()

	embedder := embeddings.NewOllamaEmbedder(embeddings.Options{OllamaHost: server.URL, Model: "nomic-embed-text", Dimension: 3})
	vectors, err := embedder.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	if len(vectors) != 2 || vectors[1][0] != 0.5 || vectors[1][2] != 1 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
}

func TestOllamaEmbedderServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	embedder := embeddings.Validate("ollama", 3, embeddings.NewOllamaEmbedder(embeddings.Options{OllamaHost: server.URL, Model: "m"}))
	if _, err := embedder.Embed(context.Background(), []string{"a"}); !errors.Is(err, embeddings.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
