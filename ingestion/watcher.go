package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/fabfab/hr-copilot/logging"
)

const defaultSettle = 500 * time.Millisecond

// Watcher ingests policy files that appear in a directory while the server
// runs. A file is picked up once it has stopped changing for the settle
// period. The index never shrinks, so a rewritten file whose source is
// already indexed is logged and left alone.
type Watcher struct {
	service *Service
	watcher *fsnotify.Watcher
	settle  time.Duration
	logger  logrus.FieldLogger
}

func NewWatcher(service *Service, settle time.Duration, logger logrus.FieldLogger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if settle <= 0 {
		settle = defaultSettle
	}
	return &Watcher{
		service: service,
		watcher: w,
		settle:  settle,
		logger:  logging.OrDiscard(logger),
	}, nil
}

// Run watches dir until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.WithField("dir", dir).Info("watching policies directory")

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !Supported(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				pending[event.Name] = time.Now()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("watcher error")
		case now := <-ticker.C:
			for path, changed := range pending {
				if now.Sub(changed) < w.settle {
					continue
				}
				delete(pending, path)
				w.ingest(ctx, path)
			}
		}
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	log := w.logger.WithField("path", path)
	if w.service.index.HasSource(SourceLabel(path)) {
		log.Warn("policy file changed but its source is already indexed; restart to reindex")
		return
	}
	n, err := w.service.IngestFile(ctx, path)
	if err != nil {
		log.WithError(err).Warn("ingest failed")
		return
	}
	log.WithField("chunks", n).Info("ingested new policy file")
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
