package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fabfab/hr-copilot/chunking"
	"github.com/fabfab/hr-copilot/logging"
)

// DocumentIndex is the part of the embedding index ingestion writes to.
type DocumentIndex interface {
	Add(ctx context.Context, chunks []chunking.Chunk) error
	HasSource(source string) bool
}

type Service struct {
	index   DocumentIndex
	chunker *chunking.Chunker
	logger  logrus.FieldLogger
}

func NewService(idx DocumentIndex, chunker *chunking.Chunker, logger logrus.FieldLogger) *Service {
	return &Service{
		index:   idx,
		chunker: chunker,
		logger:  logging.OrDiscard(logger),
	}
}

type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e FileError) Unwrap() error { return e.Err }

// Report summarises one directory ingestion.
type Report struct {
	Ingested map[string]int
	Skipped  []string
	Failed   []FileError
}

// Chunks is the total number of chunks added.
func (r Report) Chunks() int {
	total := 0
	for _, n := range r.Ingested {
		total += n
	}
	return total
}

// Err joins the per-file failures.
func (r Report) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, failure := range r.Failed {
		errs = append(errs, failure)
	}
	return errors.Join(errs...)
}

// IngestDirectory ingests every supported file under dir. A file that fails
// is recorded in the report and does not stop the others; sources already
// in the index are skipped.
func (s *Service) IngestDirectory(ctx context.Context, dir string) (Report, error) {
	report := Report{Ingested: map[string]int{}}

	if _, err := os.Stat(dir); err != nil {
		return report, fmt.Errorf("policies directory: %w", err)
	}

	paths := make([]string, 0)
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !Supported(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	}); err != nil {
		return report, fmt.Errorf("walk policies directory: %w", err)
	}

	if len(paths) == 0 {
		s.logger.WithField("dir", dir).Warn("no policy documents found")
		return report, nil
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		source := SourceLabel(path)
		if s.index.HasSource(source) {
			report.Skipped = append(report.Skipped, path)
			continue
		}
		n, err := s.IngestFile(ctx, path)
		if err != nil {
			report.Failed = append(report.Failed, FileError{Path: path, Err: err})
			s.logger.WithError(err).WithField("path", path).Warn("ingest failed")
			continue
		}
		report.Ingested[path] = n
	}

	s.logger.WithFields(logrus.Fields{
		"dir":      dir,
		"files":    len(report.Ingested),
		"chunks":   report.Chunks(),
		"skipped":  len(report.Skipped),
		"failures": len(report.Failed),
	}).Info("ingested policies directory")
	return report, nil
}

// IngestFile parses, chunks and indexes one file and returns the number of
// chunks added.
func (s *Service) IngestFile(ctx context.Context, path string) (int, error) {
	format := DetectFormat(path)
	parser, err := parserFor(format)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}
	if err := sniffContent(format, data); err != nil {
		return 0, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	doc, err := parser.Parse(ctx, Payload{Path: path, Source: SourceLabel(path), Data: data})
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", format, err)
	}
	return s.ingest(ctx, doc)
}

// IngestText indexes already extracted text under the given source label.
func (s *Service) IngestText(ctx context.Context, source, text string) (int, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return 0, fmt.Errorf("source cannot be empty")
	}
	return s.ingest(ctx, chunking.Document{Source: source, Text: normalizePlainText(text)})
}

func (s *Service) ingest(ctx context.Context, doc chunking.Document) (int, error) {
	chunks, err := s.chunker.Split(doc)
	if err != nil {
		return 0, err
	}
	if err := s.index.Add(ctx, chunks); err != nil {
		return 0, fmt.Errorf("index %s: %w", doc.Source, err)
	}
	s.logger.WithFields(logrus.Fields{"source": doc.Source, "chunks": len(chunks)}).Info("ingested document")
	return len(chunks), nil
}

// SourceLabel turns a file name into a readable source name, so
// "leave_policy.txt" becomes "Leave Policy".
func SourceLabel(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return filepath.Base(path)
	}
	return cases.Title(language.English).String(name)
}
