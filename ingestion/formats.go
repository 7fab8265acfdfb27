// Package ingestion turns policy files into chunks in the embedding index.
package ingestion

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrFormatMismatch means a file's content does not match its extension.
var ErrFormatMismatch = errors.New("content does not match file extension")

type DocumentFormat string

const (
	FormatUnknown  DocumentFormat = ""
	FormatText     DocumentFormat = "text"
	FormatMarkdown DocumentFormat = "markdown"
	FormatPDF      DocumentFormat = "pdf"
)

// DetectFormat infers a document format from the path's extension.
func DetectFormat(path string) DocumentFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return FormatText
	case ".md", ".markdown":
		return FormatMarkdown
	case ".pdf":
		return FormatPDF
	default:
		return FormatUnknown
	}
}

// Supported reports whether files at path can be ingested.
func Supported(path string) bool {
	return DetectFormat(path) != FormatUnknown
}

func (f DocumentFormat) mimeType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/plain"
}

// sniffContent checks the leading bytes of data against the format the
// extension promised. Markdown and other text subtypes count as text.
func sniffContent(format DocumentFormat, data []byte) error {
	want := format.mimeType()
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		if m.Is(want) {
			return nil
		}
	}
	return fmt.Errorf("%w: want %s, found %s", ErrFormatMismatch, want, detected.String())
}
