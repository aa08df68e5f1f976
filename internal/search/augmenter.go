// Package search decides per query whether web context should be
// fetched and folds results into an augmented prompt without touching
// stored conversation history.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/serin-ai/serin/pkg/search"
)

// defaultMaxResults caps how many snippets are embedded in the prompt.
const defaultMaxResults = 5

// Augmentation is the outcome of one augmentation attempt. When
// Augmented is false, Prompt is empty and the original query should be
// sent unchanged.
type Augmentation struct {
	Augmented bool

	// Prompt replaces the final user turn for this one request. The
	// original query stays in history.
	Prompt string

	// Sources are the result URLs, kept for the citation list appended
	// after the streamed answer completes.
	Sources []search.Result
}

// Augmenter runs web searches for text queries when enabled.
type Augmenter struct {
	backend    search.Backend
	enabled    atomic.Bool
	maxResults int
	log        *slog.Logger
}

// Config configures an [Augmenter].
type Config struct {
	Backend search.Backend

	// Enabled is the session-level web-search toggle.
	Enabled bool

	// MaxResults caps fetched results. Defaults to 5.
	MaxResults int

	Logger *slog.Logger
}

// New creates an [Augmenter].
func New(cfg Config) *Augmenter {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	a := &Augmenter{
		backend:    cfg.Backend,
		maxResults: cfg.MaxResults,
		log:        log,
	}
	a.enabled.Store(cfg.Enabled)
	return a
}

// SetEnabled flips the session toggle. Safe to call while turns run.
func (a *Augmenter) SetEnabled(enabled bool) { a.enabled.Store(enabled) }

// ShouldSearch reports whether this query triggers a search. Image
// analysis queries never do.
func (a *Augmenter) ShouldSearch(hasImage bool) bool {
	return a.enabled.Load() && !hasImage && a.backend != nil
}

// Augment fetches web context for query and builds the augmented
// prompt. Every backend failure degrades silently to no augmentation:
// a broken search must never abort the LLM turn.
func (a *Augmenter) Augment(ctx context.Context, query string, hasImage bool) Augmentation {
	if !a.ShouldSearch(hasImage) {
		return Augmentation{}
	}

	results, err := a.backend.Search(ctx, Sanitize(query), a.maxResults)
	if err != nil {
		a.log.Warn("web search failed, continuing unaugmented", "error", err)
		return Augmentation{}
	}
	if len(results) == 0 {
		return Augmentation{}
	}

	return Augmentation{
		Augmented: true,
		Prompt:    buildPrompt(query, results),
		Sources:   results,
	}
}

// CitationList formats sources as a block to append after the streamed
// answer. Returns "" when there is nothing to cite.
func CitationList(sources []search.Result) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nSources:\n")
	for i, s := range sources {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}

// buildPrompt embeds result tuples in a delimited block, instructs the
// model to synthesize rather than list, and restates the original
// question verbatim.
func buildPrompt(query string, results []search.Result) string {
	var b strings.Builder
	b.WriteString("Web search results:\n---\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\n%s\n%s\n\n", i+1, r.Title, r.URL, r.Snippet)
	}
	b.WriteString("---\n")
	b.WriteString("Using the results above, synthesize a direct answer in your own words. ")
	b.WriteString("Do not merely list the results.\n\n")
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}
