package search

import (
	"reflect"
	"testing"
	"time"

	"github.com/Hori98/Audion-sub008/internal/domain"
	"github.com/Hori98/Audion-sub008/internal/genre"
)

func rankerFixture() ([]domain.Article, []domain.Source, []genre.Genre) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	articles := []domain.Article{
		{ID: "a1", Title: "Quantum computing breakthrough", Summary: "Researchers announce a quantum milestone", PublishedAt: base.Add(4 * time.Hour)},
		{ID: "a2", Title: "Markets rally on rate cut", Summary: "Quantum funds also gained", PublishedAt: base.Add(2 * time.Hour)},
		{ID: "a3", Title: "Quantum startups raise funding", Summary: "Venture money flows", PublishedAt: base},
		{ID: "a4", Title: "Local weather update", Summary: "Rain expected", PublishedAt: base},
	}
	sources := []domain.Source{
		{ID: "s1", Name: "Quantum Weekly"},
		{ID: "s2", Name: "NHK News"},
	}
	return articles, sources, genre.All()
}

func TestSearchShortQueryShortCircuits(t *testing.T) {
	t.Parallel()

	articles, sources, genres := rankerFixture()
	results, suggestions := Search("q", articles, sources, genres, 10)
	if results != nil || suggestions != nil {
		t.Fatalf("expected empty output for short query, got %v / %v", results, suggestions)
	}
}

func TestSearchRanksTitleMatchesAboveSummaryMatches(t *testing.T) {
	t.Parallel()

	articles, sources, genres := rankerFixture()
	results, _ := Search("quantum", articles, sources, genres, 10)

	if len(results) == 0 {
		t.Fatal("expected results")
	}

	var a1Score, a2Score float64
	for _, r := range results {
		switch r.ID {
		case "a1":
			a1Score = r.Score
		case "a2":
			a2Score = r.Score
		}
	}
	if a1Score <= a2Score {
		t.Fatalf("title match (%f) should outrank summary match (%f)", a1Score, a2Score)
	}
}

func TestSearchExcludesBelowThreshold(t *testing.T) {
	t.Parallel()

	articles, sources, genres := rankerFixture()
	results, _ := Search("quantum", articles, sources, genres, 10)

	for _, r := range results {
		if r.ID == "a4" {
			t.Fatal("unrelated article leaked into results")
		}
		if r.Score < minScore {
			t.Fatalf("result %s below threshold: %f", r.ID, r.Score)
		}
	}
}

func TestSearchIncludesSourceAndGenreMatches(t *testing.T) {
	t.Parallel()

	articles, sources, genres := rankerFixture()

	results, _ := Search("quantum", articles, sources, genres, 10)
	foundSource := false
	for _, r := range results {
		if r.Kind == KindSource && r.ID == "s1" {
			foundSource = true
		}
	}
	if !foundSource {
		t.Fatal("expected Quantum Weekly source match")
	}

	results, _ = Search("spo", articles, sources, genres, 10)
	foundGenre := false
	for _, r := range results {
		if r.Kind == KindGenre && r.ID == string(genre.Sports) {
			foundGenre = true
		}
	}
	if !foundGenre {
		t.Fatal("expected sports genre match")
	}
}

func TestSearchRespectsLimit(t *testing.T) {
	t.Parallel()

	articles, sources, genres := rankerFixture()
	results, _ := Search("quantum", articles, sources, genres, 2)
	if len(results) > 2 {
		t.Fatalf("limit ignored: %d results", len(results))
	}
}

func TestSearchIsDeterministic(t *testing.T) {
	t.Parallel()

	articles, sources, genres := rankerFixture()

	first, firstSugg := Search("quantum", articles, sources, genres, 10)
	for i := 0; i < 5; i++ {
		again, againSugg := Search("quantum", articles, sources, genres, 10)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d produced different results", i)
		}
		if !reflect.DeepEqual(firstSugg, againSugg) {
			t.Fatalf("run %d produced different suggestions", i)
		}
	}
}

func TestSuggestionsPrefixMatchDeduplicatedCapped(t *testing.T) {
	t.Parallel()

	articles, sources, genres := rankerFixture()
	_, suggestions := Search("qu", articles, sources, genres, 10)

	if len(suggestions) == 0 {
		t.Fatal("expected suggestions for prefix qu")
	}
	if len(suggestions) > maxSuggestions {
		t.Fatalf("suggestions exceed cap: %d", len(suggestions))
	}

	seen := make(map[string]bool)
	for _, s := range suggestions {
		if seen[s] {
			t.Fatalf("duplicate suggestion %q", s)
		}
		seen[s] = true
		if s[:2] != "qu" {
			t.Fatalf("suggestion %q does not match prefix", s)
		}
	}

	// "quantum" is the most frequent matching title token; it must come first.
	if suggestions[0] != "quantum" {
		t.Fatalf("expected quantum first, got %q", suggestions[0])
	}
}

func TestSuggestionsTokenFloorCountsRunes(t *testing.T) {
	t.Parallel()

	articles := []domain.Article{
		{ID: "j1", Title: "量子 コンピュータ 研究"},
		{ID: "j2", Title: "コンピュータ 市場"},
	}

	// "量子" is two runes (six bytes) and stays below the floor.
	if _, suggestions := Search("量子", articles, nil, nil, 10); len(suggestions) != 0 {
		t.Fatalf("two-rune token suggested: %v", suggestions)
	}

	_, suggestions := Search("コン", articles, nil, nil, 10)
	if len(suggestions) != 1 || suggestions[0] != "コンピュータ" {
		t.Fatalf("expected コンピュータ suggestion, got %v", suggestions)
	}
}
