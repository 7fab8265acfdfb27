package embeddings

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var ErrUnavailable = errors.New("embedding unavailable")

func unavailable(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, provider, err)
}

type validating struct {
	provider  string
	dimension int
	inner     Embedder
}

// Validate wraps an embedder so that transport failures and unusable
// vectors (wrong count, wrong or empty dimension, all zeros) are reported as
// ErrUnavailable instead of reaching the index.
func Validate(provider string, dimension int, inner Embedder) Embedder {
	return &validating{provider: provider, dimension: dimension, inner: inner}
}

func (v *validating) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := v.inner.Embed(ctx, texts)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, unavailable(v.provider, err)
	}
	if len(vectors) != len(texts) {
		return nil, unavailable(v.provider, fmt.Errorf("expected %d vectors, got %d", len(texts), len(vectors)))
	}

	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, unavailable(v.provider, fmt.Errorf("vector %d is empty", i))
		}
		if v.dimension > 0 && len(vec) != v.dimension {
			return nil, unavailable(v.provider, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", v.dimension, len(vec)))
		}
		if isZero(vec) {
			return nil, unavailable(v.provider, fmt.Errorf("vector %d is all zeros", i))
		}
	}

	return vectors, nil
}

func (v *validating) Close() error {
	if closer, ok := v.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func isZero(vec []float32) bool {
	for _, value := range vec {
		if value != 0 {
			return false
		}
	}
	return true
}
