package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotSchema returns the statements creating the index snapshot tables
// for embeddings of the given dimension.
func SnapshotSchema(dimension int) ([]string, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}

	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS hr_index_snapshots (
			id UUID PRIMARY KEY,
			model TEXT NOT NULL,
			dimension INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS hr_index_entries (
			snapshot_id UUID NOT NULL REFERENCES hr_index_snapshots(id) ON DELETE CASCADE,
			position INT NOT NULL,
			source TEXT NOT NULL,
			chunk_index INT NOT NULL,
			chunk_offset INT NOT NULL,
			chunk_overlap INT NOT NULL,
			page INT NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			PRIMARY KEY (snapshot_id, position)
		)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_hr_index_entries_source ON hr_index_entries(snapshot_id, source)",
	}, nil
}

// EnsureSnapshotSchema creates the snapshot tables when missing. Tables
// created earlier for another dimension are reported rather than altered;
// run DropSnapshotSchema first.
func EnsureSnapshotSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	stmts, err := SnapshotSchema(dimension)
	if err != nil {
		return err
	}
	if pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	// pgvector keeps the declared dimension in atttypmod.
	var existing int
	err = pool.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'hr_index_entries'::regclass AND attname = 'embedding'
	`).Scan(&existing)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("read embedding column: %w", err)
	}
	if existing > 0 && existing != dimension {
		return fmt.Errorf("snapshot tables use dimension %d, embedder produces %d", existing, dimension)
	}
	return nil
}

func DropSnapshotSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS hr_index_entries",
		"DROP TABLE IF EXISTS hr_index_snapshots",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("drop snapshot tables: %w", err)
		}
	}
	return nil
}
