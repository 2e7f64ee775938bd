// Package summarize adds optional LLM commentary on top of search results.
// The retrieval path works without it; a nil provider means disabled.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/paperscope/paperscope/internal/llm"
	"github.com/paperscope/paperscope/internal/observability"
	"github.com/paperscope/paperscope/internal/search"
)

const (
	// maxContextChars bounds how much excerpt text goes into a prompt.
	maxContextChars = 2000
	// maxResults bounds how many matches feed a summary.
	maxResults = 5

	systemPrompt = "You are a research assistant helping to summarize findings from academic papers."
)

// Summarizer turns search matches into LLM-written prose.
type Summarizer struct {
	provider  llm.Provider
	maxTokens int
	logger    *slog.Logger
}

// New creates a summarizer. A nil provider yields a disabled summarizer
// whose methods return an error; callers check Enabled first.
func New(provider llm.Provider, maxTokens int, logger *slog.Logger) *Summarizer {
	if maxTokens <= 0 {
		maxTokens = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{provider: provider, maxTokens: maxTokens, logger: logger}
}

// Enabled reports whether a provider is configured.
func (s *Summarizer) Enabled() bool { return s != nil && s.provider != nil }

// SummarizeResults asks the LLM for a brief summary of the matches as they
// bear on the query.
func (s *Summarizer) SummarizeResults(ctx context.Context, query string, matches []search.Match) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("summarization disabled")
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no matches to summarize")
	}

	prompt := fmt.Sprintf(`Based on the following research paper excerpts, provide a brief summary addressing the query: %q

Excerpts:
%s

Summary:`, query, buildContext(matches))

	return s.complete(ctx, prompt)
}

// AnalyzeContradictions asks the LLM whether the matches conflict with each
// other. Fewer than two matches cannot contradict.
func (s *Summarizer) AnalyzeContradictions(ctx context.Context, matches []search.Match) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("summarization disabled")
	}
	if len(matches) < 2 {
		return "", fmt.Errorf("need at least 2 matches to analyze, have %d", len(matches))
	}

	prompt := fmt.Sprintf(`Analyze these research paper excerpts and identify any contradictions or conflicting findings:

%s

Analysis:`, buildContext(matches))

	return s.complete(ctx, prompt)
}

func (s *Summarizer) complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := observability.StartLLMSpan(ctx, s.provider.Name(), "")
	defer span.End()

	start := time.Now()
	resp, err := s.provider.Complete(ctx, &llm.Prompt{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	}, &llm.RequestOptions{MaxTokens: &s.maxTokens})
	if err != nil {
		observability.RecordError(span, err)
		s.logger.Error("summarization failed", "provider", s.provider.Name(), "error", err)
		return "", fmt.Errorf("llm complete: %w", err)
	}

	observability.RecordLLMMetrics(span, resp.InputTokens, resp.OutputTokens, time.Since(start))
	return strings.TrimSpace(resp.Content), nil
}

// buildContext assembles numbered excerpts, stopping at the character bound
// rather than truncating mid-excerpt.
func buildContext(matches []search.Match) string {
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}

	var parts []string
	total := 0
	for i, m := range matches {
		title := m.PaperTitle
		if title == "" {
			title = "Unknown"
		}
		excerpt := fmt.Sprintf("%d. From '%s':\n%s\n", i+1, title, m.ChunkText)
		if total+len(excerpt) > maxContextChars {
			break
		}
		parts = append(parts, excerpt)
		total += len(excerpt)
	}
	return strings.Join(parts, "\n")
}
