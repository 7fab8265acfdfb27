// Package chunking splits document text into overlapping windows that can be
// embedded independently.
package chunking

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"
	"unicode"
)

const (
	DefaultSize           = 1000
	DefaultOverlap        = 200
	DefaultBoundaryWindow = 100
)

var ErrEmptyDocument = errors.New("empty document")

type Document struct {
	Source string
	Text   string
	// PageStarts holds the rune offset at which each page begins, in order.
	PageStarts []int
}

// Chunk is a contiguous slice of a document. Offset and Overlap are counted
// in runes; Overlap is the length of the prefix shared with the previous
// chunk.
type Chunk struct {
	Source  string
	Text    string
	Index   int
	Offset  int
	Overlap int
	Page    int
}

// Fresh returns the part of the chunk not already covered by its predecessor.
func (c Chunk) Fresh() string {
	runes := []rune(c.Text)
	if c.Overlap >= len(runes) {
		return ""
	}
	return string(runes[c.Overlap:])
}

type Chunker struct {
	size    int
	overlap int
	window  int
}

func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap, window: DefaultBoundaryWindow}, nil
}

// WithBoundaryWindow sets how far back from a hard cut the chunker looks for
// a paragraph or sentence break. Zero disables the search.
func (c *Chunker) WithBoundaryWindow(n int) *Chunker {
	clone := *c
	if n < 0 {
		n = 0
	}
	clone.window = n
	return &clone
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Chunks validates the document and returns a sequence over its chunks. The
// sequence is computed lazily and can be ranged over any number of times.
func (c *Chunker) Chunks(doc Document) (iter.Seq[Chunk], error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("chunk %q: %w", doc.Source, ErrEmptyDocument)
	}

	runes := []rune(doc.Text)
	pages := append([]int(nil), doc.PageStarts...)

	return func(yield func(Chunk) bool) {
		start, overlap := 0, 0
		for index := 0; ; index++ {
			end := c.cut(runes, start)
			chunk := Chunk{
				Source:  doc.Source,
				Text:    string(runes[start:end]),
				Index:   index,
				Offset:  start,
				Overlap: overlap,
				Page:    pageAt(pages, start),
			}
			if !yield(chunk) {
				return
			}
			if end >= len(runes) {
				return
			}
			start = end - c.overlap
			overlap = c.overlap
		}
	}, nil
}

// Split is Chunks collected into a slice.
func (c *Chunker) Split(doc Document) ([]Chunk, error) {
	seq, err := c.Chunks(doc)
	if err != nil {
		return nil, err
	}
	var chunks []Chunk
	for chunk := range seq {
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (c *Chunker) cut(runes []rune, start int) int {
	end := start + c.size
	if end >= len(runes) {
		return len(runes)
	}

	// The next window starts at b - overlap, which has to move past start.
	lo := end - c.window
	if floor := start + c.overlap + 1; lo < floor {
		lo = floor
	}

	for _, isBreak := range []func([]rune, int) bool{paragraphBreak, lineBreak, sentenceBreak} {
		for b := end; b >= lo; b-- {
			if isBreak(runes, b) {
				return b
			}
		}
	}
	return end
}

func paragraphBreak(runes []rune, b int) bool {
	return b >= 2 && runes[b-1] == '\n' && runes[b-2] == '\n'
}

func lineBreak(runes []rune, b int) bool {
	return b >= 1 && runes[b-1] == '\n'
}

func sentenceBreak(runes []rune, b int) bool {
	if b < 2 || !unicode.IsSpace(runes[b-1]) {
		return false
	}
	switch runes[b-2] {
	case '.', '!', '?':
		return true
	}
	return false
}

func pageAt(starts []int, offset int) int {
	if len(starts) == 0 {
		return 0
	}
	return sort.Search(len(starts), func(i int) bool { return starts[i] > offset })
}
