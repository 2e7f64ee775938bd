package endee

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/paperscope/paperscope/internal/store"
)

func newClient(t *testing.T, url string, batchSize int) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: url, Collection: "papers", BatchSize: batchSize})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Collection: "papers"}); err == nil {
		t.Error("expected error for missing base URL")
	}
	if _, err := New(Config{BaseURL: "http://localhost:3000"}); err == nil {
		t.Error("expected error for missing collection")
	}
}

func TestUpsert_Batching(t *testing.T) {
	var batches [][]map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/v1/points" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var payload struct {
			Index  string           `json:"index"`
			Points []map[string]any `json:"points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatal(err)
		}
		if payload.Index != "papers" {
			t.Errorf("unexpected index %q", payload.Index)
		}
		batches = append(batches, payload.Points)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, 2)
	records := make([]store.Record, 5)
	for i := range records {
		records[i] = store.Record{ID: fmt.Sprintf("p_chunk_%d", i), Vector: []float32{1, 0}}
	}
	if err := c.Upsert(context.Background(), records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(batches) != 3 {
		t.Fatalf("expected 3 batches for 5 records at size 2, got %d", len(batches))
	}
	sizes := []int{2, 2, 1}
	for i, b := range batches {
		if len(b) != sizes[i] {
			t.Errorf("batch %d has %d points, want %d", i, len(b), sizes[i])
		}
	}
}

func TestUpsert_FailingBatchAborts(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		}
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, 1)
	records := []store.Record{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	if err := c.Upsert(context.Background(), records); err == nil {
		t.Fatal("expected error from failing batch")
	}
	// First batch written, second failed, third never sent.
	if calls != 2 {
		t.Errorf("expected 2 requests, got %d", calls)
	}
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/search" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatal(err)
		}
		if payload["k"].(float64) != 3 {
			t.Errorf("expected k=3, got %v", payload["k"])
		}
		if _, ok := payload["filter"]; !ok {
			t.Error("expected filter in payload")
		}
		fmt.Fprint(w, `{"results":[
			{"id":"p1_chunk_0","score":0.91,"metadata":{"paper_id":"p1"}},
			{"id":"p2_chunk_4","score":0.72,"metadata":{"paper_id":"p2"}}
		]}`)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, 0)
	hits, err := c.Search(context.Background(), []float32{1, 0}, 3, store.Filter{"year": 2020})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "p1_chunk_0" || hits[0].Score != 0.91 {
		t.Errorf("unexpected first hit %+v", hits[0])
	}
	if hits[1].Metadata["paper_id"] != "p2" {
		t.Errorf("unexpected metadata %+v", hits[1].Metadata)
	}
}

func TestSearch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, 0)
	if _, err := c.Search(context.Background(), []float32{1}, 5, nil); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/index/papers/points/p1_chunk_0":
			fmt.Fprint(w, `{"id":"p1_chunk_0","vector":[0.1,0.2],"metadata":{"paper_id":"p1"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, 0)
	ctx := context.Background()

	rec, err := c.Fetch(ctx, "p1_chunk_0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil || rec.ID != "p1_chunk_0" || len(rec.Vector) != 2 {
		t.Fatalf("unexpected record %+v", rec)
	}

	// Absent id is not an error.
	rec, err = c.Fetch(ctx, "missing_chunk_0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record for absent id, got %+v", rec)
	}
}

func TestDeleteCollection_Idempotent(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusNoContent, http.StatusNotFound} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodDelete || r.URL.Path != "/api/v1/index/papers" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				w.WriteHeader(status)
			}))
			defer srv.Close()

			c := newClient(t, srv.URL, 0)
			if err := c.DeleteCollection(context.Background()); err != nil {
				t.Errorf("status %d should be success, got %v", status, err)
			}
		})
	}
}

func TestDeleteCollection_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, 0)
	if err := c.DeleteCollection(context.Background()); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestHealthCheck(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if !healthy {
			http.Error(w, "down", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, 0)
	ctx := context.Background()
	if !c.HealthCheck(ctx) {
		t.Error("expected healthy")
	}
	healthy = false
	if c.HealthCheck(ctx) {
		t.Error("expected unhealthy")
	}
}

func TestEnsureCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := newClient(t, srv.URL, 0)
	ctx := context.Background()

	if err := c.EnsureCollection(ctx, 384, "cosine"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Idempotent: a second call observes nothing different.
	if err := c.EnsureCollection(ctx, 384, "cosine"); err != nil {
		t.Fatalf("second call should also succeed: %v", err)
	}
	if err := c.EnsureCollection(ctx, 0, "cosine"); err == nil {
		t.Fatal("expected error for non-positive dimension")
	}

	srv.Close()
	if err := c.EnsureCollection(ctx, 384, "cosine"); err == nil {
		t.Fatal("expected error when server unreachable")
	}
}
