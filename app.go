package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/fabfab/hr-copilot/chat"
	"github.com/fabfab/hr-copilot/chunking"
	"github.com/fabfab/hr-copilot/classify"
	"github.com/fabfab/hr-copilot/config"
	"github.com/fabfab/hr-copilot/database"
	"github.com/fabfab/hr-copilot/embeddings"
	"github.com/fabfab/hr-copilot/employees"
	"github.com/fabfab/hr-copilot/index"
	"github.com/fabfab/hr-copilot/ingestion"
	"github.com/fabfab/hr-copilot/llm"
)

// app holds the long-lived collaborators shared by the commands.
type app struct {
	cfg       config.Config
	logger    logrus.FieldLogger
	records   *employees.Store
	embedder  embeddings.Embedder
	index     *index.Index
	snapshots index.SnapshotStore
	ingest    *ingestion.Service
	chat      *chat.Service
	llm       llm.Client
	pool      *pgxpool.Pool
}

type buildOptions struct {
	// withLLM is false for commands that never generate.
	withLLM bool
	// ingest walks the policies directory after restoring any snapshot.
	ingest bool
}

func buildApp(ctx context.Context, cfg config.Config, logger logrus.FieldLogger, opts buildOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	records, err := employees.Load(cfg.EmployeeDataPath)
	if err != nil {
		return nil, fmt.Errorf("load employee records: %w", err)
	}
	a.records = records
	logger.WithFields(logrus.Fields{"path": cfg.EmployeeDataPath, "employees": records.Len()}).Info("employee records loaded")

	a.embedder, err = embeddings.NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder setup: %w", err)
	}

	a.snapshots, err = a.snapshotStore(ctx)
	if err != nil {
		return nil, err
	}

	indexOpts := index.Options{
		Threshold: cfg.RAG.SimilarityThreshold,
		Model:     modelLabel(cfg),
	}
	a.index = restoreIndex(ctx, a.snapshots, a.embedder, indexOpts, logger)

	chunker, err := chunking.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("chunker setup: %w", err)
	}
	a.ingest = ingestion.NewService(a.index, chunker, logger)

	if opts.ingest && cfg.PoliciesDir != "" {
		report, err := a.ingest.IngestDirectory(ctx, cfg.PoliciesDir)
		if err != nil {
			logger.WithError(err).Warn("policy ingestion skipped")
		} else if failed := report.Err(); failed != nil {
			logger.WithError(failed).Warn("some policy files could not be ingested")
		}
	}

	if opts.withLLM {
		a.llm, err = llm.NewClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("llm setup: %w", err)
		}
		classifier := classify.NewKeywordClassifier(cfg.Keywords.Employee, cfg.Keywords.Policy)
		a.chat = chat.NewService(a.records, a.index, classifier, a.llm, chat.OptionsFromConfig(cfg, logger))
	}

	ok = true
	return a, nil
}

// snapshotStore prefers PostgreSQL when a DSN is configured and falls back
// to the snapshot file. Neither configured means no persistence.
func (a *app) snapshotStore(ctx context.Context) (index.SnapshotStore, error) {
	switch {
	case a.cfg.PostgresDSN != "":
		pool, err := database.NewPostgresPool(ctx, a.cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		a.pool = pool
		if err := database.EnsureSnapshotSchema(ctx, pool, a.cfg.Embeddings.Dimension); err != nil {
			return nil, fmt.Errorf("ensure snapshot schema: %w", err)
		}
		return index.NewPostgresSnapshotStore(pool), nil
	case a.cfg.SnapshotPath != "":
		return index.NewFileSnapshotStore(a.cfg.SnapshotPath), nil
	default:
		return nil, nil
	}
}

// restoreIndex loads the saved snapshot when it was built with the same
// embedding model; otherwise it starts from an empty index.
func restoreIndex(ctx context.Context, store index.SnapshotStore, embedder embeddings.Embedder, opts index.Options, logger logrus.FieldLogger) *index.Index {
	if store == nil {
		return index.New(embedder, opts)
	}

	snap, err := store.Load(ctx)
	if err != nil {
		if !errors.Is(err, index.ErrNoSnapshot) {
			logger.WithError(err).Warn("could not load index snapshot")
		}
		return index.New(embedder, opts)
	}

	idx, err := index.FromSnapshot(embedder, snap, opts)
	if err != nil {
		logger.WithError(err).Warn("index snapshot ignored; rebuilding from policy files")
		return index.New(embedder, opts)
	}
	logger.WithFields(logrus.Fields{
		"snapshot": snap.ID,
		"entries":  idx.Len(),
		"sources":  len(idx.Sources()),
	}).Info("index restored from snapshot")
	return idx
}

func modelLabel(cfg config.Config) string {
	return cfg.Embeddings.Provider + "/" + cfg.Embeddings.Model
}

func (a *app) Close() {
	for _, c := range []any{a.llm, a.embedder} {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				a.logger.WithError(err).Warn("close client")
			}
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
