// Package chunker splits document text into bounded, overlapping chunks.
//
// Budgets are counted in characters (Unicode code points) or tokens
// (whitespace-delimited words). Chunk k+1 always starts exactly Overlap
// units before chunk k ends, so removing each chunk's leading overlap and
// concatenating reconstructs the original text byte for byte.
//
// Within a window a chunk ends, in order of preference, after a paragraph
// break, after a sentence end, after any whitespace, or, for input with no
// whitespace at all, exactly at the budget.
package chunker

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.Chunker = (*Processor)(nil)

// DefaultChunkSize is the default number of units per chunk.
const DefaultChunkSize = 800

// DefaultChunkOverlap is the default number of overlapping units.
const DefaultChunkOverlap = 200

// chunkNamespace scopes deterministic chunk IDs.
var chunkNamespace = uuid.MustParse("0b6f3c1e-52a4-4f0e-9d77-3c2a8e51b9d4")

// Processor splits document content into chunks.
type Processor struct {
	size    int
	overlap int
	unit    domain.ChunkUnit
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the maximum chunk size in units.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		p.size = size
	}
}

// WithOverlap sets the overlap between chunks in units.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		p.overlap = overlap
	}
}

// WithUnit sets what size and overlap count.
func WithUnit(unit domain.ChunkUnit) Option {
	return func(p *Processor) {
		p.unit = unit
	}
}

// New creates a chunker. An invalid budget is a *domain.ChunkingError.
func New(opts ...Option) (*Processor, error) {
	p := &Processor{
		size:    DefaultChunkSize,
		overlap: DefaultChunkOverlap,
		unit:    domain.ChunkUnitCharacters,
	}

	for _, opt := range opts {
		opt(p)
	}

	cfg := domain.ChunkSettings{Size: p.size, Overlap: p.overlap, Unit: p.unit}
	if err := cfg.Validate(); err != nil {
		return nil, &domain.ChunkingError{Reason: err.Error()}
	}

	return p, nil
}

// FromSettings creates a chunker from configuration.
func FromSettings(s domain.ChunkSettings) (*Processor, error) {
	return New(WithChunkSize(s.Size), WithOverlap(s.Overlap), WithUnit(s.Unit))
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkID returns the deterministic ID of the index-th chunk of a document.
func ChunkID(documentID string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d", documentID, index))).String()
}

// Chunk splits doc.Text. Empty text produces no chunks.
func (p *Processor) Chunk(doc *domain.Document) ([]domain.Chunk, error) {
	text := doc.Text
	if text == "" {
		return nil, nil
	}

	bounds := p.bounds(text)
	n := len(bounds) - 1

	chunks := make([]domain.Chunk, 0, n/(p.size-p.overlap)+1)
	i := 0
	for {
		j := n
		if n-i > p.size {
			j = p.breakAt(text, bounds, i)
		}

		start, end := bounds[i], bounds[j]
		if end <= start || end > len(text) {
			return nil, &domain.ChunkingError{
				DocumentID: doc.ID,
				Reason:     fmt.Sprintf("invalid span [%d,%d) at chunk %d", start, end, len(chunks)),
			}
		}

		body := text[start:end]
		chunks = append(chunks, domain.Chunk{
			ID:            ChunkID(doc.ID, len(chunks)),
			DocumentID:    doc.ID,
			SequenceIndex: len(chunks),
			Start:         start,
			End:           end,
			Text:          body,
			TokenCount:    len(strings.Fields(body)),
		})

		if j == n {
			break
		}
		i = j - p.overlap
	}

	return chunks, nil
}

// bounds returns the byte offset of every unit start plus len(text).
// A chunk covering units [i, j) is text[bounds[i]:bounds[j]].
func (p *Processor) bounds(text string) []int {
	if p.unit == domain.ChunkUnitTokens {
		return tokenBounds(text)
	}

	out := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		out = append(out, i)
	}
	return append(out, len(text))
}

// tokenBounds treats each word plus its trailing whitespace as one unit.
// Leading whitespace belongs to the first unit.
func tokenBounds(text string) []int {
	out := []int{0}
	prevSpace := false
	seenWord := false
	for i, r := range text {
		space := unicode.IsSpace(r)
		if !space && prevSpace && seenWord {
			out = append(out, i)
		}
		if !space {
			seenWord = true
		}
		prevSpace = space
	}
	return append(out, len(text))
}

// breakAt picks the end unit for a chunk starting at unit i when the rest
// of the text does not fit. The result is in [lo, i+size] where lo leaves
// room for the overlap and keeps chunks at least half full.
func (p *Processor) breakAt(text string, bounds []int, i int) int {
	hi := i + p.size
	lo := i + max(p.overlap+1, p.size/2)

	for _, isBreak := range []func(string, int) bool{paragraphBreak, sentenceBreak, whitespaceBreak} {
		for j := hi; j >= lo; j-- {
			if isBreak(text, bounds[j]) {
				return j
			}
		}
	}
	return hi
}

// whitespaceBreak reports whether pos directly follows whitespace.
func whitespaceBreak(text string, pos int) bool {
	if pos == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text[:pos])
	return unicode.IsSpace(r)
}

// paragraphBreak reports whether pos follows a blank line.
func paragraphBreak(text string, pos int) bool {
	if !whitespaceBreak(text, pos) {
		return false
	}
	return strings.HasSuffix(strings.TrimRight(text[:pos], " \t\r"), "\n\n")
}

// sentenceBreak reports whether pos follows sentence-ending punctuation
// and whitespace.
func sentenceBreak(text string, pos int) bool {
	if !whitespaceBreak(text, pos) {
		return false
	}
	head := strings.TrimRightFunc(text[:pos], unicode.IsSpace)
	if head == "" {
		return false
	}
	switch head[len(head)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
