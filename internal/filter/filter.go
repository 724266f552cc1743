// Package filter narrows a cached article set down to what a consumer
// renders. Filtering is pure: it never mutates or reorders its input.
package filter

import (
	"strings"

	"github.com/Hori98/Audion-sub008/internal/domain"
	"github.com/Hori98/Audion-sub008/internal/genre"
)

// Criteria composes as logical AND. Empty fields apply no filtering.
type Criteria struct {
	// SourceNames are compared against Article.SourceName case-insensitively
	// and trimmed; the UI filters by display name, never by source ID.
	SourceNames []string
	// SourceIDs are compared against Article.SourceID exactly; schedule
	// preferences reference sources by ID. IDs naming sources absent from
	// the article set narrow the result, they never widen it.
	SourceIDs []string
	// Genres are compared against Article.NormalizedGenre. A single element
	// is the common UI case; the orchestrator passes a preference set.
	Genres []genre.Genre
}

// ByGenre builds the single-genre criteria used by the feed UI. The catch-all
// "all"/"すべて" sentinel yields criteria with no genre filtering.
func ByGenre(label string) Criteria {
	if genre.IsAll(label) {
		return Criteria{}
	}
	return Criteria{Genres: []genre.Genre{genre.Normalize(label)}}
}

// Apply returns the articles matching the criteria, preserving input order
// (the cache already sorts by recency).
func Apply(articles []domain.Article, c Criteria) []domain.Article {
	names := make(map[string]bool, len(c.SourceNames))
	for _, n := range c.SourceNames {
		if key := canonicalName(n); key != "" {
			names[key] = true
		}
	}

	ids := make(map[string]bool, len(c.SourceIDs))
	for _, id := range c.SourceIDs {
		if id != "" {
			ids[id] = true
		}
	}

	genres := make(map[genre.Genre]bool, len(c.Genres))
	for _, g := range c.Genres {
		if !genre.IsAll(string(g)) {
			genres[g] = true
		}
	}

	if len(names) == 0 && len(ids) == 0 && len(genres) == 0 {
		return articles
	}

	out := make([]domain.Article, 0, len(articles))
	for _, a := range articles {
		if len(names) > 0 && !names[canonicalName(a.SourceName)] {
			continue
		}
		if len(ids) > 0 && !ids[a.SourceID] {
			continue
		}
		if len(genres) > 0 && !genres[a.NormalizedGenre] {
			continue
		}
		out = append(out, a)
	}
	return out
}

func canonicalName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
