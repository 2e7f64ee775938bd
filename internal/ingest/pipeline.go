// Package ingest turns documents on disk into stored, searchable vectors.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/paperscope/paperscope/internal/document"
	"github.com/paperscope/paperscope/internal/embedding"
	"github.com/paperscope/paperscope/internal/observability"
	"github.com/paperscope/paperscope/internal/store"
)

// Metric used for every collection this pipeline prepares.
const Metric = "cosine"

// ingestible file extensions; anything else in a directory is skipped.
var allowedExtensions = map[string]bool{
	".pdf": true,
	".txt": true,
	".md":  true,
}

// MetadataFunc supplies the paper id and metadata for a file found during a
// directory walk. Returning an empty id lets the pipeline assign one.
type MetadataFunc func(path string) (paperID string, metadata map[string]any)

// Report summarizes a directory ingestion. Errors maps each attempted file
// to its failure, or nil on success.
type Report struct {
	Total     int
	Succeeded int
	Errors    map[string]error
}

// Failed returns the number of files that did not ingest.
func (r *Report) Failed() int { return r.Total - r.Succeeded }

// Pipeline wires document processing, embedding and the vector store into
// one ingestion path.
type Pipeline struct {
	store     store.Gateway
	embedder  embedding.Provider
	processor *document.Processor
	logger    *slog.Logger
}

// New creates an ingestion pipeline.
func New(gw store.Gateway, emb embedding.Provider, proc *document.Processor, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: gw, embedder: emb, processor: proc, logger: logger}
}

// EnsureReady prepares the collection for this pipeline's embedder.
func (p *Pipeline) EnsureReady(ctx context.Context) error {
	if err := p.store.EnsureCollection(ctx, p.embedder.Dimension(), Metric); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	return nil
}

// IngestPaper extracts, chunks, embeds and stores a single document. An
// empty paperID gets a generated uuid. The store is not touched unless at
// least one chunk came out of the document.
func (p *Pipeline) IngestPaper(ctx context.Context, path, paperID string, metadata map[string]any) error {
	if paperID == "" {
		paperID = uuid.NewString()
	}

	ctx, span := observability.StartIngestSpan(ctx, paperID, path)
	defer span.End()

	meta := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["file_path"] = path
	meta["file_name"] = filepath.Base(path)

	chunks := p.processor.Process(path, paperID, meta)
	if len(chunks) == 0 {
		err := fmt.Errorf("no chunks extracted from %s", path)
		observability.RecordError(span, err)
		return err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embedCtx, embedSpan := observability.StartEmbedSpan(ctx, p.embedder.Name(), len(texts))
	vectors, err := p.embedder.EmbedBatch(embedCtx, texts)
	observability.RecordError(embedSpan, err)
	embedSpan.End()
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("embed %s: %w", path, err)
	}
	if len(vectors) != len(chunks) {
		err := fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
		observability.RecordError(span, err)
		return err
	}

	records := make([]store.Record, len(chunks))
	for i, c := range chunks {
		records[i] = store.Record{
			ID:       fmt.Sprintf("%s_chunk_%d", paperID, c.Index),
			Vector:   vectors[i],
			Metadata: c.Metadata,
		}
	}

	if err := p.store.Upsert(ctx, records); err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("store %s: %w", path, err)
	}

	observability.RecordIngestResult(span, len(chunks), p.embedder.Dimension())
	p.logger.Info("ingested paper", "paper_id", paperID, "path", path, "chunks", len(chunks))
	return nil
}

// IngestDirectory ingests every supported file directly inside dir, in
// lexical order. One file's failure does not stop the others; the Report
// records the outcome per file.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string, extract MetadataFunc) (*Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if allowedExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	report := &Report{Total: len(paths), Errors: make(map[string]error, len(paths))}
	for _, path := range paths {
		var paperID string
		var metadata map[string]any
		if extract != nil {
			paperID, metadata = extract(path)
		}

		if err := p.IngestPaper(ctx, path, paperID, metadata); err != nil {
			p.logger.Error("ingestion failed", "path", path, "error", err)
			report.Errors[path] = err
			continue
		}
		report.Errors[path] = nil
		report.Succeeded++
	}

	p.logger.Info("directory ingested",
		"dir", dir, "total", report.Total,
		"succeeded", report.Succeeded, "failed", report.Failed())
	return report, nil
}
