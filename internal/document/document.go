// Package document turns paper files into ordered, metadata-carrying text
// chunks ready for embedding.
package document

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dslipak/pdf"
)

// Chunk is a contiguous span of a document's cleaned text.
type Chunk struct {
	Text     string
	Index    int
	Metadata map[string]any
}

// Processor extracts, cleans and chunks documents.
type Processor struct {
	chunkSize       int
	chunkOverlap    int
	minParagraphLen int
	logger          *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(n int) Option { return func(p *Processor) { p.chunkSize = n } }

// WithChunkOverlap sets the overlap used by window chunking.
func WithChunkOverlap(n int) Option { return func(p *Processor) { p.chunkOverlap = n } }

// WithMinParagraphLen sets the minimum length for a paragraph to count as content.
func WithMinParagraphLen(n int) Option { return func(p *Processor) { p.minParagraphLen = n } }

// WithLogger sets the processor's logger.
func WithLogger(l *slog.Logger) Option { return func(p *Processor) { p.logger = l } }

// NewProcessor creates a Processor with the given options applied over defaults.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		chunkSize:       500,
		chunkOverlap:    50,
		minParagraphLen: 50,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExtractText reads a document and returns its raw text. PDFs are extracted
// page by page; .txt and .md are read as UTF-8. Unknown extensions are
// attempted as plain text.
func (p *Processor) ExtractText(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDF(path)
	case ".txt", ".md":
		return readPlaintext(path)
	default:
		p.logger.Warn("unsupported file extension, reading as plain text", "path", path)
		return readPlaintext(path)
	}
}

func readPlaintext(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func extractPDF(path string) (string, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf %s: %w", path, err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A broken page should not lose the rest of the paper.
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	blankLines  = regexp.MustCompile(`\n\s*\n`)
	pageNumbers = regexp.MustCompile(`(?m)^\s*\d+\s*$`)
)

// CleanText normalizes whitespace and strips isolated page-number lines.
// Paragraph boundaries (blank lines) are preserved.
func CleanText(text string) string {
	text = pageNumbers.ReplaceAllString(text, "")
	paragraphs := blankLines.Split(text, -1)
	for i, para := range paragraphs {
		para = spaceRuns.ReplaceAllString(para, " ")
		para = strings.ReplaceAll(para, "\n", " ")
		paragraphs[i] = strings.TrimSpace(para)
	}
	return strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
}

// SplitParagraphs splits cleaned text on blank-line boundaries, dropping
// paragraphs below the minimum length (headers, stray numerals).
func (p *Processor) SplitParagraphs(text string) []string {
	var out []string
	for _, para := range blankLines.Split(text, -1) {
		para = strings.TrimSpace(para)
		if len(para) > p.minParagraphLen {
			out = append(out, para)
		}
	}
	return out
}

// SplitChunks splits cleaned text into chunk strings. With useParagraphs,
// consecutive paragraphs are greedily packed while the running length stays
// under the chunk size; a single oversized paragraph is kept whole even when
// it exceeds the bound. Otherwise fixed-size character windows with overlap
// are used.
func (p *Processor) SplitChunks(text string, useParagraphs bool) []string {
	if useParagraphs {
		return p.packParagraphs(p.SplitParagraphs(text))
	}
	return p.windowChunks(text)
}

func (p *Processor) packParagraphs(paragraphs []string) []string {
	var chunks []string
	var current strings.Builder
	for _, para := range paragraphs {
		if current.Len() > 0 && current.Len()+len(para) >= p.chunkSize {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(para)
		current.WriteString("\n\n")
	}
	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}
	return chunks
}

func (p *Processor) windowChunks(text string) []string {
	step := p.chunkSize - p.chunkOverlap
	if step <= 0 {
		step = p.chunkSize
	}
	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + p.chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}

// Process runs the full pipeline for one document: extract, clean, chunk and
// assign dense 0-based indexes. Each chunk's metadata is the document
// metadata plus paper_id, chunk_index, total_chunks and the chunk's own text
// for retrieval-time display. An unreadable or empty source yields an empty
// slice, not an error; the caller decides whether that is a failure.
func (p *Processor) Process(path, paperID string, metadata map[string]any) []Chunk {
	raw, err := p.ExtractText(path)
	if err != nil {
		p.logger.Error("text extraction failed", "path", path, "error", err)
		return nil
	}
	if strings.TrimSpace(raw) == "" {
		p.logger.Warn("no text extracted", "path", path)
		return nil
	}

	texts := p.SplitChunks(CleanText(raw), true)
	chunks := make([]Chunk, 0, len(texts))
	for idx, text := range texts {
		meta := make(map[string]any, len(metadata)+4)
		for k, v := range metadata {
			meta[k] = v
		}
		meta["paper_id"] = paperID
		meta["chunk_index"] = idx
		meta["total_chunks"] = len(texts)
		meta["chunk_text"] = text
		chunks = append(chunks, Chunk{Text: text, Index: idx, Metadata: meta})
	}

	p.logger.Info("processed document", "path", path, "chunks", len(chunks))
	return chunks
}
