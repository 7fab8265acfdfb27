package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/fabfab/hr-copilot/chunking"
)

type Payload struct {
	Path   string
	Source string
	Data   []byte
}

type DocumentParser interface {
	Parse(ctx context.Context, payload Payload) (chunking.Document, error)
}

func parserFor(format DocumentFormat) (DocumentParser, error) {
	switch format {
	case FormatText:
		return textParser{}, nil
	case FormatMarkdown:
		return markdownParser{}, nil
	case FormatPDF:
		return pdfParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported document format")
	}
}

type textParser struct{}

func (textParser) Parse(_ context.Context, payload Payload) (chunking.Document, error) {
	if !utf8.Valid(payload.Data) {
		return chunking.Document{}, fmt.Errorf("%s is not valid UTF-8 text", payload.Path)
	}
	return chunking.Document{
		Source: payload.Source,
		Text:   normalizePlainText(string(payload.Data)),
	}, nil
}

// markdownParser keeps the markup; headings and lists read fine to the model
// and give the chunker paragraph breaks.
type markdownParser struct{}

func (markdownParser) Parse(ctx context.Context, payload Payload) (chunking.Document, error) {
	return textParser{}.Parse(ctx, payload)
}

type pdfParser struct{}

func (pdfParser) Parse(ctx context.Context, payload Payload) (chunking.Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(payload.Data), int64(len(payload.Data)))
	if err != nil {
		return chunking.Document{}, fmt.Errorf("open pdf: %w", err)
	}

	var (
		text   strings.Builder
		starts []int
		offset int
	)
	for n := 1; n <= reader.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return chunking.Document{}, err
		}
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		plain, err := page.GetPlainText(nil)
		if err != nil {
			return chunking.Document{}, fmt.Errorf("extract pdf page %d: %w", n, err)
		}
		plain = strings.TrimSpace(normalizePlainText(plain))

		// Pages without text keep their number so later pages are labelled
		// correctly.
		starts = append(starts, offset)
		if plain == "" {
			continue
		}
		if offset > 0 {
			text.WriteString("\n\n")
			offset += 2
			starts[len(starts)-1] = offset
		}
		text.WriteString(plain)
		offset += utf8.RuneCountInString(plain)
	}

	return chunking.Document{
		Source:     payload.Source,
		Text:       text.String(),
		PageStarts: starts,
	}, nil
}

func normalizePlainText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
