// Package search implements retrieval over the vector store: semantic
// queries, related-paper lookup and contradiction probing.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/paperscope/paperscope/internal/embedding"
	"github.com/paperscope/paperscope/internal/observability"
	"github.com/paperscope/paperscope/internal/store"
)

// Match is one retrieved chunk with its similarity score and the paper it
// belongs to.
type Match struct {
	PaperID    string
	PaperTitle string
	ChunkText  string
	ChunkIndex int
	Score      float32
	Metadata   map[string]any
}

// Options tunes a single search call. Zero values fall back to the engine's
// defaults; a nil MinSimilarity uses the default threshold while an explicit
// pointer (possibly to zero) overrides it.
type Options struct {
	TopK          int
	MinSimilarity *float32
	Filter        store.Filter
}

// Engine answers queries against a populated vector store. It is stateless
// between calls; the embedder and gateway handles are long-lived and shared.
type Engine struct {
	store           store.Gateway
	embedder        embedding.Provider
	defaultTopK     int
	defaultMinScore float32
	logger          *slog.Logger
}

// New creates an engine with the given defaults.
func New(gw store.Gateway, emb embedding.Provider, defaultTopK int, defaultMinScore float32, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultTopK <= 0 {
		defaultTopK = 10
	}
	return &Engine{
		store:           gw,
		embedder:        emb,
		defaultTopK:     defaultTopK,
		defaultMinScore: defaultMinScore,
		logger:          logger,
	}
}

// Search embeds the query and returns matches at or above the similarity
// threshold. The store's ranking order is preserved; the threshold only
// removes entries, it never re-sorts. The store has no score cutoff of its
// own, so the filter happens here.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Match, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = e.defaultTopK
	}
	minScore := e.defaultMinScore
	if opts.MinSimilarity != nil {
		minScore = *opts.MinSimilarity
	}

	ctx, span := observability.StartSearchSpan(ctx, "semantic", topK)
	defer span.End()

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := e.store.Search(ctx, vector, topK, opts.Filter)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("store search: %w", err)
	}

	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		if h.Score < minScore {
			continue
		}
		matches = append(matches, toMatch(h))
	}

	observability.RecordSearchResult(span, len(hits), len(matches))
	e.logger.Debug("semantic search", "query", query, "hits", len(hits), "kept", len(matches))
	return matches, nil
}

// Related finds papers similar to the given one, using its first chunk's
// stored vector as the query. A paper without a first chunk yields an empty
// result without hitting the store's search path. The store is over-queried
// at 3x topK so that dropping same-paper and duplicate-paper hits still
// leaves enough distinct papers.
func (e *Engine) Related(ctx context.Context, paperID string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = e.defaultTopK
	}

	ctx, span := observability.StartSearchSpan(ctx, "related", topK)
	defer span.End()

	seed, err := e.store.Fetch(ctx, fmt.Sprintf("%s_chunk_0", paperID))
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("fetch seed vector: %w", err)
	}
	if seed == nil {
		e.logger.Debug("related search seed absent", "paper_id", paperID)
		return []Match{}, nil
	}

	hits, err := e.store.Search(ctx, seed.Vector, 3*topK, nil)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("store search: %w", err)
	}

	seen := map[string]bool{paperID: true}
	matches := make([]Match, 0, topK)
	for _, h := range hits {
		m := toMatch(h)
		if seen[m.PaperID] {
			continue
		}
		seen[m.PaperID] = true
		matches = append(matches, m)
		if len(matches) == topK {
			break
		}
	}

	observability.RecordSearchResult(span, len(hits), len(matches))
	return matches, nil
}

// Contradictions looks for statements opposed to the query by searching with
// a negation-augmented form of it. This is an approximation: it leans on the
// embedding space placing opposed statements near negated queries and cannot
// guarantee logical contradiction.
func (e *Engine) Contradictions(ctx context.Context, query string, topK int) ([]Match, error) {
	augmented := fmt.Sprintf("NOT %s OR contrary OR opposite OR different from", query)
	return e.Search(ctx, augmented, Options{TopK: topK})
}

// Aggregate groups matches by paper. PaperIDs preserves the order papers
// were first encountered in.
type Aggregate struct {
	PaperIDs []string
	Groups   map[string][]Match
}

// AggregateByPaper groups matches by paper id, keeping first-encounter key
// order and sorting each group by descending score. The sort is stable, so
// equal scores keep their prior relative order.
func AggregateByPaper(matches []Match) *Aggregate {
	agg := &Aggregate{Groups: make(map[string][]Match)}
	for _, m := range matches {
		if _, ok := agg.Groups[m.PaperID]; !ok {
			agg.PaperIDs = append(agg.PaperIDs, m.PaperID)
		}
		agg.Groups[m.PaperID] = append(agg.Groups[m.PaperID], m)
	}
	for _, id := range agg.PaperIDs {
		group := agg.Groups[id]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Score > group[j].Score })
	}
	return agg
}

// FormatMatches renders matches for terminal output, truncating chunk text
// to maxTextLen runes.
func FormatMatches(matches []Match, maxTextLen int) string {
	if len(matches) == 0 {
		return "No matches found."
	}

	var b strings.Builder
	for i, m := range matches {
		title := m.PaperTitle
		if title == "" {
			title = m.PaperID
		}
		text := m.ChunkText
		if maxTextLen > 0 {
			if runes := []rune(text); len(runes) > maxTextLen {
				text = string(runes[:maxTextLen]) + "..."
			}
		}
		fmt.Fprintf(&b, "%d. %s (score %.3f, chunk %d)\n", i+1, title, m.Score, m.ChunkIndex)
		if text != "" {
			fmt.Fprintf(&b, "   %s\n", text)
		}
	}
	return b.String()
}

// toMatch lifts a raw store hit into a Match. Metadata written by the
// ingestion pipeline uses string and int values, but anything that went
// through JSON comes back as float64, so numbers are accepted either way.
func toMatch(h store.Hit) Match {
	m := Match{Score: h.Score, Metadata: h.Metadata}
	if v, ok := h.Metadata["paper_id"].(string); ok {
		m.PaperID = v
	}
	if v, ok := h.Metadata["title"].(string); ok {
		m.PaperTitle = v
	}
	if v, ok := h.Metadata["chunk_text"].(string); ok {
		m.ChunkText = v
	}
	switch v := h.Metadata["chunk_index"].(type) {
	case int:
		m.ChunkIndex = v
	case int64:
		m.ChunkIndex = int(v)
	case float64:
		m.ChunkIndex = int(v)
	}
	return m
}
