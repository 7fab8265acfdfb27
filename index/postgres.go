package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/hr-copilot/chunking"
)

// PostgresSnapshotStore keeps the latest snapshot in pgvector tables created
// by database.EnsureSnapshotSchema. Saving replaces the previous snapshot.
type PostgresSnapshotStore struct {
	pool *pgxpool.Pool
}

func NewPostgresSnapshotStore(pool *pgxpool.Pool) *PostgresSnapshotStore {
	return &PostgresSnapshotStore{pool: pool}
}

func (s *PostgresSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, "DELETE FROM hr_index_snapshots"); err != nil {
		return fmt.Errorf("clear previous snapshots: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO hr_index_snapshots (id, model, dimension, created_at)
		VALUES ($1, $2, $3, $4)
	`, snap.ID, snap.Model, snap.Dimension, snap.CreatedAt); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	batch := &pgx.Batch{}
	for position, entry := range snap.Entries {
		batch.Queue(`
			INSERT INTO hr_index_entries (
				snapshot_id, position, source, chunk_index, chunk_offset, chunk_overlap, page, content, embedding
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::vector)
		`, snap.ID, position, entry.Chunk.Source, entry.Chunk.Index, entry.Chunk.Offset,
			entry.Chunk.Overlap, entry.Chunk.Page, entry.Chunk.Text, pgvector.NewVector(entry.Vector))
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert snapshot entries: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (s *PostgresSnapshotStore) Load(ctx context.Context) (Snapshot, error) {
	if s.pool == nil {
		return Snapshot{}, fmt.Errorf("postgres pool is nil")
	}

	var snap Snapshot
	err := s.pool.QueryRow(ctx, `
		SELECT id, model, dimension, created_at
		FROM hr_index_snapshots
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&snap.ID, &snap.Model, &snap.Dimension, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("%w in postgres", ErrNoSnapshot)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("query snapshot: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT source, chunk_index, chunk_offset, chunk_overlap, page, content, embedding::text
		FROM hr_index_entries
		WHERE snapshot_id = $1
		ORDER BY position
	`, snap.ID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query snapshot entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			chunk   chunking.Chunk
			literal string
			vector  pgvector.Vector
		)
		if err := rows.Scan(&chunk.Source, &chunk.Index, &chunk.Offset, &chunk.Overlap, &chunk.Page, &chunk.Text, &literal); err != nil {
			return Snapshot{}, fmt.Errorf("scan snapshot entry: %w", err)
		}
		if err := vector.Scan(literal); err != nil {
			return Snapshot{}, fmt.Errorf("parse snapshot vector: %w", err)
		}
		snap.Entries = append(snap.Entries, Entry{Chunk: chunk, Vector: vector.Slice()})
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	return snap, nil
}

var _ SnapshotStore = (*PostgresSnapshotStore)(nil)
