package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/paperscope/paperscope/internal/config"
	"github.com/paperscope/paperscope/internal/document"
	"github.com/paperscope/paperscope/internal/embedding"
	"github.com/paperscope/paperscope/internal/embedding/hashing"
	"github.com/paperscope/paperscope/internal/ingest"
	"github.com/paperscope/paperscope/internal/llm"
	"github.com/paperscope/paperscope/internal/llm/anthropic"
	"github.com/paperscope/paperscope/internal/llm/openai"
	"github.com/paperscope/paperscope/internal/observability"
	"github.com/paperscope/paperscope/internal/search"
	"github.com/paperscope/paperscope/internal/store"
	"github.com/paperscope/paperscope/internal/store/endee"
	"github.com/paperscope/paperscope/internal/store/qdrant"
	"github.com/paperscope/paperscope/internal/summarize"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "paperscope",
		Short: "Semantic search over a research paper collection",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (defaults + environment when empty)")

	var (
		ingestTitle   string
		ingestAuthors string
		ingestSource  string
		ingestYear    int
		ingestID      string
		ingestReset   bool
	)
	ingestCmd := &cobra.Command{
		Use:   "ingest [paths...]",
		Short: "Ingest papers from files or directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta := baseMetadata(ingestTitle, ingestAuthors, ingestSource, ingestYear)
			return runIngest(configPath, args, ingestID, meta, ingestReset)
		},
	}
	ingestCmd.Flags().StringVar(&ingestID, "paper-id", "", "Paper id for a single file (generated when empty)")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "Default title metadata")
	ingestCmd.Flags().StringVar(&ingestAuthors, "authors", "", "Default authors metadata")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "Default source metadata (venue, archive, url)")
	ingestCmd.Flags().IntVar(&ingestYear, "year", 0, "Publication year metadata")
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "Delete the collection before ingesting")

	var (
		topK          int
		minSimilarity float64
		filters       []string
		grouped       bool
		summarized    bool
	)
	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Semantic search by free text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseFilters(filters)
			if err != nil {
				return err
			}
			return runSearch(configPath, args[0], topK, minSimilarity, filter, grouped, summarized)
		},
	}
	searchCmd.Flags().IntVar(&topK, "top-k", 0, "Number of results (0 = configured default)")
	searchCmd.Flags().Float64Var(&minSimilarity, "min-similarity", -1, "Minimum similarity (negative = configured default)")
	searchCmd.Flags().StringArrayVar(&filters, "filter", nil, "Metadata filter key=value (repeatable)")
	searchCmd.Flags().BoolVar(&grouped, "group", false, "Group results by paper")
	searchCmd.Flags().BoolVar(&summarized, "summarize", false, "Summarize results with the configured LLM")

	var relatedTopK int
	relatedCmd := &cobra.Command{
		Use:   "related [paper-id]",
		Short: "Find papers related to an ingested one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelated(configPath, args[0], relatedTopK)
		},
	}
	relatedCmd.Flags().IntVar(&relatedTopK, "top-k", 0, "Number of related papers (0 = configured default)")

	var (
		contraTopK    int
		contraAnalyze bool
	)
	contradictionsCmd := &cobra.Command{
		Use:   "contradictions [finding]",
		Short: "Search for findings that oppose a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContradictions(configPath, args[0], contraTopK, contraAnalyze)
		},
	}
	contradictionsCmd.Flags().IntVar(&contraTopK, "top-k", 0, "Number of results (0 = configured default)")
	contradictionsCmd.Flags().BoolVar(&contraAnalyze, "analyze", false, "Ask the configured LLM to analyze the conflicts")

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the vector collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(configPath)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show store health and effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(configPath)
		},
	}

	rootCmd.AddCommand(ingestCmd, searchCmd, relatedCmd, contradictionsCmd, resetCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the long-lived handles every command shares: one config, one
// logger, one embedder, one store client.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	tracing    *observability.TracerProvider
	gateway    store.Gateway
	embedder   embedding.Provider
	pipeline   *ingest.Pipeline
	engine     *search.Engine
	summarizer *summarize.Summarizer
}

func buildApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	tracing, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:  "paperscope",
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	gateway, err := newGateway(cfg, logger)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	provider, err := newLLMProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}

	processor := document.NewProcessor(
		document.WithChunkSize(cfg.Chunking.ChunkSize),
		document.WithChunkOverlap(cfg.Chunking.ChunkOverlap),
		document.WithMinParagraphLen(cfg.Chunking.MinParagraphLen),
		document.WithLogger(logger),
	)

	return &app{
		cfg:        cfg,
		logger:     logger,
		tracing:    tracing,
		gateway:    gateway,
		embedder:   embedder,
		pipeline:   ingest.New(gateway, embedder, processor, logger),
		engine:     search.New(gateway, embedder, cfg.Search.TopK, float32(cfg.Search.SimilarityThreshold), logger),
		summarizer: summarize.New(provider, cfg.LLM.MaxTokens, logger),
	}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracing.Shutdown(ctx); err != nil {
		a.logger.Warn("tracing shutdown failed", "error", err)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newGateway(cfg *config.Config, logger *slog.Logger) (store.Gateway, error) {
	switch cfg.Store.Driver {
	case "endee":
		return endee.New(endee.Config{
			BaseURL:    cfg.Store.BaseURL(),
			Collection: cfg.Store.Collection,
			BatchSize:  cfg.Store.BatchSize,
			Timeout:    time.Duration(cfg.Store.TimeoutSec) * time.Second,
			Logger:     logger,
		})
	case "qdrant":
		return qdrant.New(cfg.Store.Host, cfg.Store.Port, cfg.Store.Collection, cfg.Store.BatchSize)
	default:
		return nil, fmt.Errorf("unknown store driver %q (expected endee or qdrant)", cfg.Store.Driver)
	}
}

func newEmbedder(cfg *config.Config) (embedding.Provider, error) {
	switch cfg.Embedding.Provider {
	case "hashing", "":
		return hashing.New(cfg.Embedding.Dimension)
	case "openai":
		client := openai.New(cfg.Embedding.APIKey, "", cfg.Embedding.BaseURL, cfg.Embedding.Model)
		backend := llm.WrapWithRetry(client, llm.DefaultProviderConfig())
		return embedding.NewLLMEmbedder(backend, cfg.Embedding.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (expected hashing or openai)", cfg.Embedding.Provider)
	}
}

func newLLMProvider(cfg *config.Config) (llm.Provider, error) {
	factory := llm.NewFactory()
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})

	return factory.Create(llm.ProviderConfig{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	})
}

func runIngest(configPath string, paths []string, paperID string, metadata map[string]any, reset bool) error {
	ctx := context.Background()
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if reset {
		fmt.Println("Resetting collection...")
		if err := a.gateway.DeleteCollection(ctx); err != nil {
			return fmt.Errorf("reset collection: %w", err)
		}
	}
	if err := a.pipeline.EnsureReady(ctx); err != nil {
		return err
	}

	if paperID != "" && (len(paths) > 1 || isDir(paths[0])) {
		return fmt.Errorf("--paper-id only applies to a single file")
	}

	total, failed := 0, 0
	for _, path := range paths {
		if isDir(path) {
			report, err := a.pipeline.IngestDirectory(ctx, path, func(string) (string, map[string]any) {
				return "", metadata
			})
			if err != nil {
				return err
			}
			for p, perr := range report.Errors {
				if perr != nil {
					fmt.Printf("  FAIL %s: %v\n", p, perr)
				}
			}
			total += report.Total
			failed += report.Failed()
			continue
		}

		total++
		if err := a.pipeline.IngestPaper(ctx, path, paperID, metadata); err != nil {
			fmt.Printf("  FAIL %s: %v\n", path, err)
			failed++
		}
	}

	fmt.Printf("Ingested %d/%d documents\n", total-failed, total)
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, total)
	}
	return nil
}

func runSearch(configPath, query string, topK int, minSimilarity float64, filter store.Filter, grouped, summarized bool) error {
	ctx := context.Background()
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	opts := search.Options{TopK: topK, Filter: filter}
	if minSimilarity >= 0 {
		minScore := float32(minSimilarity)
		opts.MinSimilarity = &minScore
	}

	matches, err := a.engine.Search(ctx, query, opts)
	if err != nil {
		return err
	}

	if grouped {
		printGrouped(matches)
	} else {
		fmt.Print(search.FormatMatches(matches, 200))
	}

	if summarized {
		if !a.summarizer.Enabled() {
			fmt.Println("\nSummarization is disabled (llm.provider is \"none\").")
			return nil
		}
		summary, err := a.summarizer.SummarizeResults(ctx, query, matches)
		if err != nil {
			a.logger.Warn("summarization failed", "error", err)
		} else {
			fmt.Printf("\nSummary:\n%s\n", summary)
		}
	}
	return nil
}

func runRelated(configPath, paperID string, topK int) error {
	ctx := context.Background()
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	matches, err := a.engine.Related(ctx, paperID, topK)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Printf("No related papers found for %s (is it ingested?)\n", paperID)
		return nil
	}
	fmt.Print(search.FormatMatches(matches, 200))
	return nil
}

func runContradictions(configPath, finding string, topK int, analyze bool) error {
	ctx := context.Background()
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	matches, err := a.engine.Contradictions(ctx, finding, topK)
	if err != nil {
		return err
	}
	fmt.Print(search.FormatMatches(matches, 200))

	if analyze && len(matches) >= 2 {
		if !a.summarizer.Enabled() {
			fmt.Println("\nAnalysis is disabled (llm.provider is \"none\").")
			return nil
		}
		analysis, err := a.summarizer.AnalyzeContradictions(ctx, matches)
		if err != nil {
			a.logger.Warn("contradiction analysis failed", "error", err)
		} else {
			fmt.Printf("\nAnalysis:\n%s\n", analysis)
		}
	}
	return nil
}

func runReset(configPath string) error {
	ctx := context.Background()
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.gateway.DeleteCollection(ctx); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	fmt.Printf("Collection %q deleted.\n", a.cfg.Store.Collection)
	return nil
}

func runStatus(configPath string) error {
	ctx := context.Background()
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	healthy := a.gateway.HealthCheck(ctx)
	fmt.Printf("Store:      %s (%s, collection %q) healthy=%t\n",
		a.cfg.Store.Driver, a.cfg.Store.BaseURL(), a.cfg.Store.Collection, healthy)
	fmt.Printf("Embedder:   %s (dimension %d)\n", a.embedder.Name(), a.embedder.Dimension())
	fmt.Printf("Chunking:   size %d, overlap %d\n", a.cfg.Chunking.ChunkSize, a.cfg.Chunking.ChunkOverlap)
	fmt.Printf("Search:     top_k %d, threshold %.2f\n", a.cfg.Search.TopK, a.cfg.Search.SimilarityThreshold)
	if a.summarizer.Enabled() {
		fmt.Printf("LLM:        %s (%s)\n", a.cfg.LLM.Provider, a.cfg.LLM.Model)
	} else {
		fmt.Println("LLM:        disabled")
	}
	if !healthy {
		return fmt.Errorf("store at %s is not healthy", a.cfg.Store.BaseURL())
	}
	return nil
}

func printGrouped(matches []search.Match) {
	agg := search.AggregateByPaper(matches)
	if len(agg.PaperIDs) == 0 {
		fmt.Println("No matches found.")
		return
	}
	for _, id := range agg.PaperIDs {
		group := agg.Groups[id]
		title := group[0].PaperTitle
		if title == "" {
			title = id
		}
		fmt.Printf("%s (%d matches)\n", title, len(group))
		fmt.Print(search.FormatMatches(group, 150))
		fmt.Println()
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// baseMetadata collects the default metadata flags. Empty flags stay out of
// the map entirely so they never overwrite per-document values.
func baseMetadata(title, authors, source string, year int) map[string]any {
	meta := map[string]any{}
	if title != "" {
		meta["title"] = title
	}
	if authors != "" {
		meta["authors"] = authors
	}
	if source != "" {
		meta["source"] = source
	}
	if year != 0 {
		meta["year"] = year
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// parseFilters turns repeated key=value flags into a metadata filter.
func parseFilters(pairs []string) (store.Filter, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := store.Filter{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", pair)
		}
		filter[key] = value
	}
	return filter, nil
}
