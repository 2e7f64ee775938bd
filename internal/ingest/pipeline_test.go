package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paperscope/paperscope/internal/document"
	"github.com/paperscope/paperscope/internal/embedding/hashing"
	"github.com/paperscope/paperscope/internal/store"
	"github.com/paperscope/paperscope/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(t *testing.T) (*Pipeline, *memory.Store) {
	t.Helper()
	emb, err := hashing.New(64)
	if err != nil {
		t.Fatalf("embedder: %v", err)
	}
	mem := memory.New()
	proc := document.NewProcessor(
		document.WithChunkSize(120),
		document.WithMinParagraphLen(10),
		document.WithLogger(testLogger()),
	)
	return New(mem, emb, proc, testLogger()), mem
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const paperText = `Neural ranking models improve retrieval quality over lexical baselines.

Sparse methods remain competitive when queries contain rare domain terms.

Hybrid pipelines combine the two for robust behavior in both settings.`

func TestIngestPaper(t *testing.T) {
	p, mem := newTestPipeline(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "paper.txt", paperText)

	err := p.IngestPaper(context.Background(), path, "paper-1", map[string]any{"title": "Ranking"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mem.Len() == 0 {
		t.Fatal("expected records in store")
	}

	rec, err := mem.Fetch(context.Background(), "paper-1_chunk_0")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rec == nil {
		t.Fatal("expected first chunk record")
	}
	if rec.Metadata["paper_id"] != "paper-1" {
		t.Errorf("unexpected paper_id: %v", rec.Metadata["paper_id"])
	}
	if rec.Metadata["title"] != "Ranking" {
		t.Errorf("caller metadata lost: %v", rec.Metadata["title"])
	}
	if rec.Metadata["file_name"] != "paper.txt" {
		t.Errorf("unexpected file_name: %v", rec.Metadata["file_name"])
	}
	if len(rec.Vector) != 64 {
		t.Errorf("unexpected vector length %d", len(rec.Vector))
	}
}

func TestIngestPaper_AssignsIDWhenEmpty(t *testing.T) {
	p, mem := newTestPipeline(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "paper.txt", paperText)

	if err := p.IngestPaper(context.Background(), path, "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mem.Len() == 0 {
		t.Fatal("expected records in store")
	}
}

func TestIngestPaper_EmptyDocumentLeavesStoreUntouched(t *testing.T) {
	p, mem := newTestPipeline(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.txt", "   \n\n  ")

	err := p.IngestPaper(context.Background(), path, "paper-1", nil)
	if err == nil {
		t.Fatal("expected error for empty document")
	}
	if mem.Len() != 0 {
		t.Fatalf("store should be untouched, has %d records", mem.Len())
	}
}

func TestIngestPaper_StoreFailure(t *testing.T) {
	emb, _ := hashing.New(64)
	proc := document.NewProcessor(document.WithMinParagraphLen(10), document.WithLogger(testLogger()))
	failing := &failingStore{upsertErr: errors.New("store down")}
	p := New(failing, emb, proc, testLogger())

	dir := t.TempDir()
	path := writeFile(t, dir, "paper.txt", paperText)

	err := p.IngestPaper(context.Background(), path, "paper-1", nil)
	if err == nil || !strings.Contains(err.Error(), "store down") {
		t.Fatalf("expected wrapped store error, got: %v", err)
	}
}

func TestIngestDirectory(t *testing.T) {
	p, mem := newTestPipeline(t)
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", paperText)
	writeFile(t, dir, "a.md", paperText)
	writeFile(t, dir, "ignore.csv", "x,y\n1,2")
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	var seen []string
	report, err := p.IngestDirectory(context.Background(), dir, func(path string) (string, map[string]any) {
		seen = append(seen, filepath.Base(path))
		return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Total != 2 || report.Succeeded != 2 || report.Failed() != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(seen) != 2 || seen[0] != "a.md" || seen[1] != "b.txt" {
		t.Fatalf("expected lexical order [a.md b.txt], got %v", seen)
	}
	if mem.Len() == 0 {
		t.Fatal("expected records in store")
	}
}

func TestIngestDirectory_PerFileIsolation(t *testing.T) {
	p, _ := newTestPipeline(t)
	dir := t.TempDir()
	good := writeFile(t, dir, "good.txt", paperText)
	bad := writeFile(t, dir, "bad.txt", "")

	report, err := p.IngestDirectory(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Total != 2 || report.Succeeded != 1 || report.Failed() != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Errors[good] != nil {
		t.Errorf("good file should succeed: %v", report.Errors[good])
	}
	if report.Errors[bad] == nil {
		t.Error("bad file should carry its error")
	}
}

func TestIngestDirectory_MissingDir(t *testing.T) {
	p, _ := newTestPipeline(t)
	if _, err := p.IngestDirectory(context.Background(), "/nonexistent/papers", nil); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestEnsureReady(t *testing.T) {
	p, _ := newTestPipeline(t)
	if err := p.EnsureReady(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// failingStore fails every write.
type failingStore struct {
	upsertErr error
}

func (f *failingStore) EnsureCollection(context.Context, int, string) error { return nil }
func (f *failingStore) Upsert(context.Context, []store.Record) error        { return f.upsertErr }
func (f *failingStore) Search(context.Context, []float32, int, store.Filter) ([]store.Hit, error) {
	return nil, nil
}
func (f *failingStore) Fetch(context.Context, string) (*store.Record, error) { return nil, nil }
func (f *failingStore) DeleteCollection(context.Context) error               { return nil }
func (f *failingStore) HealthCheck(context.Context) bool                     { return false }
