// Package index holds the in-memory embedding index over policy chunks.
//
// The index is append-only. Adds are serialized; each add embeds its chunks
// without holding the read lock and then appends them in one write-locked
// step, so concurrent searches see either none or all of a document's
// chunks. A search issued while a document is still being embedded runs
// against the entries that existed before that add.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/fabfab/hr-copilot/chunking"
	"github.com/fabfab/hr-copilot/embeddings"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

type Entry struct {
	Chunk  chunking.Chunk `json:"chunk"`
	Vector []float32      `json:"vector"`
}

type Result struct {
	Chunk chunking.Chunk
	Score float32
}

type Options struct {
	// Threshold is the minimum cosine similarity a result needs.
	Threshold float32
	// Model labels the embedding model; snapshots record it.
	Model string
}

type Index struct {
	embedder  embeddings.Embedder
	threshold float32
	model     string

	ingest sync.Mutex

	mu        sync.RWMutex
	entries   []Entry
	dimension int
	sources   []string
	seen      map[string]struct{}
}

func New(embedder embeddings.Embedder, opts Options) *Index {
	return &Index{
		embedder:  embeddings.Validate("embedder", 0, embedder),
		threshold: opts.Threshold,
		model:     opts.Model,
		seen:      make(map[string]struct{}),
	}
}

// Embed returns the embedding of a single text.
func (i *Index) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := i.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	return vectors[0], nil
}

// Add embeds chunks and appends them. On error the index is unchanged.
func (i *Index) Add(ctx context.Context, chunks []chunking.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	i.ingest.Lock()
	defer i.ingest.Unlock()

	texts := make([]string, len(chunks))
	for n, chunk := range chunks {
		texts[n] = chunk.Text
	}

	vectors, err := i.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	dimension := i.Dimension()
	if dimension == 0 {
		dimension = len(vectors[0])
	}
	for n, vec := range vectors {
		if len(vec) != dimension {
			return fmt.Errorf("chunk %d of %q: %w: expected %d, got %d", n, chunks[n].Source, ErrDimensionMismatch, dimension, len(vec))
		}
	}

	added := make([]Entry, len(chunks))
	for n := range chunks {
		added[n] = Entry{Chunk: chunks[n], Vector: vectors[n]}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.dimension = dimension
	i.appendLocked(added)
	return nil
}

func (i *Index) appendLocked(entries []Entry) {
	for _, entry := range entries {
		if _, ok := i.seen[entry.Chunk.Source]; !ok {
			i.seen[entry.Chunk.Source] = struct{}{}
			i.sources = append(i.sources, entry.Chunk.Source)
		}
	}
	i.entries = append(i.entries, entries...)
}

// Search returns up to k entries ordered by descending cosine similarity.
// Equal scores keep insertion order. Entries scoring below the threshold are
// left out, so fewer than k results is normal.
func (i *Index) Search(query []float32, k int) ([]Result, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(i.entries) == 0 || k <= 0 {
		return []Result{}, nil
	}
	if len(query) != i.dimension {
		return nil, fmt.Errorf("search: %w: index has %d, query has %d", ErrDimensionMismatch, i.dimension, len(query))
	}

	k = min(k, len(i.entries))

	scored := make([]Result, 0, len(i.entries))
	for _, entry := range i.entries {
		score := cosine(query, entry.Vector)
		if score < i.threshold {
			continue
		}
		scored = append(scored, Result{Chunk: entry.Chunk, Score: score})
	}

	slices.SortStableFunc(scored, func(a, b Result) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Query embeds text and searches with the result.
func (i *Index) Query(ctx context.Context, text string, k int) ([]Result, error) {
	if i.Len() == 0 {
		return []Result{}, nil
	}
	vec, err := i.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return i.Search(vec, k)
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

func (i *Index) Dimension() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.dimension
}

// Sources lists the distinct source labels in ingestion order.
func (i *Index) Sources() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return slices.Clone(i.sources)
}

func (i *Index) HasSource(source string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.seen[source]
	return ok
}

func (i *Index) Threshold() float32 { return i.threshold }

func cosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for n := range a {
		dot += float64(a[n]) * float64(b[n])
		normA += float64(a[n]) * float64(a[n])
		normB += float64(b[n]) * float64(b[n])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return float32(math.Max(-1, math.Min(1, score)))
}
