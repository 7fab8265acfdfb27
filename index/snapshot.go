package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/fabfab/hr-copilot/embeddings"
)

var (
	ErrNoSnapshot       = errors.New("no snapshot")
	ErrSnapshotMismatch = errors.New("snapshot does not match embedding model")
)

type Snapshot struct {
	ID        uuid.UUID `json:"id"`
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
}

type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
}

// Snapshot copies the current entries.
func (i *Index) Snapshot() Snapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return Snapshot{
		ID:        uuid.New(),
		Model:     i.model,
		Dimension: i.dimension,
		CreatedAt: time.Now().UTC(),
		Entries:   slices.Clone(i.entries),
	}
}

// FromSnapshot rebuilds an index from a snapshot taken with the same model.
func FromSnapshot(embedder embeddings.Embedder, snap Snapshot, opts Options) (*Index, error) {
	if opts.Model != "" && snap.Model != opts.Model {
		return nil, fmt.Errorf("%w: snapshot %q, configured %q", ErrSnapshotMismatch, snap.Model, opts.Model)
	}
	for n, entry := range snap.Entries {
		if len(entry.Vector) != snap.Dimension {
			return nil, fmt.Errorf("snapshot entry %d: %w: expected %d, got %d", n, ErrDimensionMismatch, snap.Dimension, len(entry.Vector))
		}
	}

	idx := New(embedder, opts)
	if len(snap.Entries) > 0 {
		idx.dimension = snap.Dimension
	}
	idx.appendLocked(slices.Clone(snap.Entries))
	return idx, nil
}

type FileSnapshotStore struct {
	path string
}

func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path}
}

func (s *FileSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (s *FileSnapshotStore) Load(ctx context.Context) (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, fmt.Errorf("%w at %s", ErrNoSnapshot, s.path)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}
	return snap, nil
}

var _ SnapshotStore = (*FileSnapshotStore)(nil)
