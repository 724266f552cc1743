// Package search scores a query against the cached article set, genre labels
// and source names. Best-effort heuristic ranking; determinism is the only
// hard guarantee, enforced by stable tie-breaking on ID and name.
package search

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Hori98/Audion-sub008/internal/domain"
	"github.com/Hori98/Audion-sub008/internal/genre"
)

// ResultKind tags what a ranked result refers to.
type ResultKind string

const (
	KindArticle ResultKind = "article"
	KindGenre   ResultKind = "genre"
	KindSource  ResultKind = "source"
)

// Result is one ranked match.
type Result struct {
	Kind  ResultKind
	ID    string
	Title string
	Score float64
}

const (
	weightTitleExact   = 10.0
	weightSummaryMatch = 5.0
	weightTokenOverlap = 2.0
	maxRecencyBonus    = 1.5
	minScore           = 2.0
	minQueryRunes      = 2
	maxSuggestions     = 5
)

// Search ranks candidates for the query and returns the capped result list
// plus query-completion suggestions. Queries shorter than two runes
// short-circuit to empty output with no ranking work.
func Search(query string, articles []domain.Article, sources []domain.Source, genres []genre.Genre, limit int) ([]Result, []string) {
	query = strings.ToLower(strings.TrimSpace(query))
	if utf8.RuneCountInString(query) < minQueryRunes {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	queryTokens := tokenize(query)

	// Recency is measured against the newest article rather than the wall
	// clock, keeping the ranking a pure function of its inputs.
	var now time.Time
	for _, a := range articles {
		if a.PublishedAt.After(now) {
			now = a.PublishedAt
		}
	}

	var results []Result

	for _, a := range articles {
		score := scoreArticle(a, query, queryTokens, now)
		if score < minScore {
			continue
		}
		results = append(results, Result{Kind: KindArticle, ID: a.ID, Title: a.Title, Score: score})
	}

	for _, g := range genres {
		if strings.Contains(strings.ToLower(string(g)), query) {
			results = append(results, Result{Kind: KindGenre, ID: string(g), Title: string(g), Score: weightTitleExact})
		}
	}

	for _, s := range sources {
		if strings.Contains(strings.ToLower(s.Name), query) {
			results = append(results, Result{Kind: KindSource, ID: s.ID, Title: s.Name, Score: weightTitleExact})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Kind != results[j].Kind {
			return results[i].Kind < results[j].Kind
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results, suggestions(query, articles)
}

func scoreArticle(a domain.Article, query string, queryTokens []string, now time.Time) float64 {
	var score float64

	title := strings.ToLower(a.Title)
	summary := strings.ToLower(a.Summary)

	if strings.Contains(title, query) {
		score += weightTitleExact
	}
	if strings.Contains(summary, query) {
		score += weightSummaryMatch
	}

	titleTokens := tokenize(title)
	for _, qt := range queryTokens {
		for _, tt := range titleTokens {
			if tt == qt || strings.HasPrefix(tt, qt) {
				score += weightTokenOverlap
				break
			}
		}
	}

	if score > 0 {
		score += recencyBonus(a.PublishedAt, now)
	}

	return score
}

// recencyBonus decays exponentially: full bonus at publish, roughly half
// after a day.
func recencyBonus(published, now time.Time) float64 {
	if published.IsZero() {
		return 0
	}
	hours := now.Sub(published).Hours()
	if hours < 0 {
		hours = 0
	}
	return maxRecencyBonus * math.Exp(-0.0289*hours)
}

// suggestions collects the most frequent significant title tokens that start
// with the query, deduplicated and capped.
func suggestions(query string, articles []domain.Article) []string {
	counts := make(map[string]int)
	for _, a := range articles {
		for _, tok := range tokenize(strings.ToLower(a.Title)) {
			if utf8.RuneCountInString(tok) < 3 || !strings.HasPrefix(tok, query) {
				continue
			}
			counts[tok]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	tokens := make([]string, 0, len(counts))
	for tok := range counts {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})

	if len(tokens) > maxSuggestions {
		tokens = tokens[:maxSuggestions]
	}
	return tokens
}

func tokenize(s string) []string {
	var tokens []string
	for _, word := range strings.Fields(s) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if word != "" {
			tokens = append(tokens, word)
		}
	}
	return tokens
}
