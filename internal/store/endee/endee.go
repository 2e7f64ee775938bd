// Package endee is a REST client for the Endee vector database.
package endee

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/paperscope/paperscope/internal/store"
)

// Client talks to an Endee server over HTTP. Endee creates collections
// implicitly on first write, so EnsureCollection only validates configuration.
type Client struct {
	baseURL    string
	collection string
	batchSize  int
	http       *http.Client
	logger     *slog.Logger
}

// Config configures the Endee client.
type Config struct {
	BaseURL    string
	Collection string
	BatchSize  int           // default store.DefaultBatchSize
	Timeout    time.Duration // default 30s
	Logger     *slog.Logger
}

// New creates an Endee client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("endee: base URL required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("endee: collection name required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = store.DefaultBatchSize
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		collection: cfg.Collection,
		batchSize:  cfg.BatchSize,
		http:       &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger,
	}, nil
}

func (c *Client) EnsureCollection(ctx context.Context, dimension int, metric string) error {
	if dimension <= 0 {
		return fmt.Errorf("endee: invalid dimension %d", dimension)
	}
	if !c.HealthCheck(ctx) {
		return fmt.Errorf("endee: server not reachable at %s", c.baseURL)
	}
	return nil
}

type point struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata"`
}

// Upsert writes records with PUT /api/v1/points in batches. The first failing
// batch aborts the call; earlier batches stay written.
func (c *Client) Upsert(ctx context.Context, records []store.Record) error {
	for start := 0; start < len(records); start += c.batchSize {
		end := start + c.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		points := make([]point, len(batch))
		for i, rec := range batch {
			points[i] = point{ID: rec.ID, Vector: rec.Vector, Metadata: rec.Metadata}
		}
		payload := map[string]any{
			"index":  c.collection,
			"points": points,
		}

		status, body, err := c.do(ctx, http.MethodPut, "/api/v1/points", payload)
		if err != nil {
			return fmt.Errorf("endee upsert: %w", err)
		}
		if status != http.StatusOK && status != http.StatusCreated {
			return fmt.Errorf("endee upsert: %d: %s", status, body)
		}
	}
	c.logger.Info("upserted vectors", "count", len(records), "collection", c.collection)
	return nil
}

func (c *Client) Search(ctx context.Context, vector []float32, topK int, filter store.Filter) ([]store.Hit, error) {
	payload := map[string]any{
		"index":  c.collection,
		"vector": vector,
		"k":      topK,
	}
	if len(filter) > 0 {
		payload["filter"] = filter
	}

	status, body, err := c.do(ctx, http.MethodPost, "/api/v1/search", payload)
	if err != nil {
		return nil, fmt.Errorf("endee search: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("endee search: %d: %s", status, body)
	}

	var parsed struct {
		Results []struct {
			ID       string         `json:"id"`
			Score    float32        `json:"score"`
			Metadata map[string]any `json:"metadata"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("endee search: decoding response: %w", err)
	}

	hits := make([]store.Hit, len(parsed.Results))
	for i, r := range parsed.Results {
		meta := r.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		hits[i] = store.Hit{ID: r.ID, Score: r.Score, Metadata: meta}
	}
	return hits, nil
}

// Fetch returns a stored point by id, or (nil, nil) when the id is absent.
func (c *Client) Fetch(ctx context.Context, id string) (*store.Record, error) {
	path := fmt.Sprintf("/api/v1/index/%s/points/%s", c.collection, id)
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("endee fetch: %w", err)
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("endee fetch: %d: %s", status, body)
	}

	var p point
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("endee fetch: decoding response: %w", err)
	}
	return &store.Record{ID: p.ID, Vector: p.Vector, Metadata: p.Metadata}, nil
}

// DeleteCollection drops the collection. 404 counts as success.
func (c *Client) DeleteCollection(ctx context.Context) error {
	path := fmt.Sprintf("/api/v1/index/%s", c.collection)
	status, body, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return fmt.Errorf("endee delete: %w", err)
	}
	switch status {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("endee delete: %d: %s", status, body)
	}
}

func (c *Client) HealthCheck(ctx context.Context) bool {
	status, _, err := c.do(ctx, http.MethodGet, "/api/v1/health", nil)
	if err != nil {
		c.logger.Warn("health check failed", "error", err)
		return false
	}
	return status == http.StatusOK
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}
