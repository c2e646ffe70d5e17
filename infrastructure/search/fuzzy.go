// Package search layers fuzzy, typo-tolerant matching on top of the
// domain package's exact substring search.
package search

import (
	"context"
	"sort"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"

	"github.com/agnivade/levenshtein"

	"github.com/hydro-project/hydroscope/internal/domain"
)

// foldCaser is a package-level Unicode case folder, reused across calls
// rather than constructed per comparison.
var foldCaser = cases.Fold()

// FuzzyMatcher ranks a VisualizationState's nodes and containers against a
// query by Levenshtein similarity, for use when the exact substring search
// in domain.PerformSearch returns too few (or no) results.
type FuzzyMatcher struct {
	// Threshold is the minimum similarity score (0.0-1.0) a candidate must
	// reach to be included in results.
	Threshold float64
	tracer    trace.Tracer
}

// NewFuzzyMatcher creates a FuzzyMatcher with the given similarity
// threshold.
func NewFuzzyMatcher(threshold float64) *FuzzyMatcher {
	return &FuzzyMatcher{Threshold: threshold, tracer: otel.Tracer("hydroscope-search")}
}

// FuzzyResult is one fuzzy match, carrying the similarity score alongside
// the domain.SearchResult it's ranked against.
type FuzzyResult struct {
	domain.SearchResult
	Score float64
}

// Search scores every visible node and container label against query and
// returns matches at or above the configured threshold, best match first.
func (m *FuzzyMatcher) Search(ctx context.Context, state *domain.VisualizationState, query string) []FuzzyResult {
	_, span := m.tracer.Start(ctx, "FuzzyMatcher.Search",
		trace.WithAttributes(
			attribute.String("search.query", query),
			attribute.Float64("search.threshold", m.Threshold),
		),
	)
	defer span.End()

	if query == "" {
		return nil
	}
	preparedQuery := foldCaser.String(query)

	idx := state.ComputeVisibility()
	var results []FuzzyResult

	for _, n := range idx.VisibleNodes {
		if score := similarity(foldCaser.String(n.ShortLabel), preparedQuery); score >= m.Threshold {
			results = append(results, FuzzyResult{
				SearchResult: domain.SearchResult{ID: n.ID, Label: n.ShortLabel, Type: domain.KindNode},
				Score:        score,
			})
		}
	}
	for _, c := range idx.VisibleContainers {
		if score := similarity(foldCaser.String(c.Label), preparedQuery); score >= m.Threshold {
			results = append(results, FuzzyResult{
				SearchResult: domain.SearchResult{ID: c.ID, Label: c.Label, Type: domain.KindContainer},
				Score:        score,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	span.SetAttributes(attribute.Int("search.results_count", len(results)))
	return results
}

// similarity computes a 0.0-1.0 similarity score from Levenshtein edit
// distance, normalized by the longer string's rune length.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	distance := levenshtein.ComputeDistance(a, b)
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1.0
	}
	score := 1.0 - float64(distance)/float64(maxLen)
	if score < 0 {
		score = 0
	}
	return score
}
