package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fabfab/hr-copilot/chunking"
	"github.com/fabfab/hr-copilot/config"
	"github.com/fabfab/hr-copilot/embeddings"
	"github.com/fabfab/hr-copilot/index"
	"github.com/fabfab/hr-copilot/logging"
)

func TestRestoreIndex(t *testing.T) {
	ctx := context.Background()
	logger := logging.Discard()
	embedder := embeddings.NewHashEmbedder(16)
	store := index.NewFileSnapshotStore(filepath.Join(t.TempDir(), "index.json"))

	if idx := restoreIndex(ctx, nil, embedder, index.Options{}, logger); idx.Len() != 0 {
		t.Fatal("expected empty index without a store")
	}
	if idx := restoreIndex(ctx, store, embedder, index.Options{Model: "hash/v1"}, logger); idx.Len() != 0 {
		t.Fatal("expected empty index when no snapshot exists")
	}

	built := index.New(embedder, index.Options{Model: "hash/v1"})
	if err := built.Add(ctx, []chunking.Chunk{{Source: "Leave Policy", Text: "Casual leave is 12 days."}}); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if err := store.Save(ctx, built.Snapshot()); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	restored := restoreIndex(ctx, store, embedder, index.Options{Model: "hash/v1"}, logger)
	if restored.Len() != 1 || !restored.HasSource("Leave Policy") {
		t.Fatalf("expected restored index, got %d entries", restored.Len())
	}

	other := restoreIndex(ctx, store, embedder, index.Options{Model: "hash/v2"}, logger)
	if other.Len() != 0 {
		t.Fatal("expected snapshot from another model to be ignored")
	}
}

func TestModelLabel(t *testing.T) {
	cfg := config.Defaults()
	if got := modelLabel(cfg); got != "gemini/text-embedding-004" {
		t.Fatalf("unexpected model label %q", got)
	}
}
