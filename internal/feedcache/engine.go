// Package feedcache keeps one merged, genre-normalized article set per scope
// and refreshes it with stale-while-revalidate semantics: stale data is
// served while at most one background refresh per scope is in flight.
package feedcache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Hori98/Audion-sub008/internal/domain"
	"github.com/Hori98/Audion-sub008/internal/genre"
	"github.com/Hori98/Audion-sub008/internal/ports"
)

// SourceProvider lists the active sources belonging to a scope.
type SourceProvider interface {
	ActiveSources(ctx context.Context, scope domain.Scope) ([]domain.Source, error)
}

// Entry is one scope's published article set. Replaced whole on refresh;
// readers holding the previous slice keep a consistent view.
type Entry struct {
	Scope        domain.Scope
	FetchedAt    time.Time
	Articles     []domain.Article
	SourceErrors map[string]error
}

type flight struct {
	done chan struct{}
}

// Engine implements the fetch-and-cache contract for all scopes.
type Engine struct {
	fetcher ports.FeedFetcher
	sources SourceProvider
	logger  *slog.Logger

	ttl           time.Duration
	sourceTimeout time.Duration

	mu      sync.Mutex
	entries map[domain.Scope]*Entry
	flights map[domain.Scope]*flight

	now func() time.Time
}

var _ ports.CacheInvalidator = (*Engine)(nil)

// NewEngine builds the engine; ttl and sourceTimeout fall back to sane
// defaults when unset.
func NewEngine(fetcher ports.FeedFetcher, sources SourceProvider, ttl, sourceTimeout time.Duration, logger *slog.Logger) *Engine {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if sourceTimeout <= 0 {
		sourceTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		fetcher:       fetcher,
		sources:       sources,
		logger:        logger,
		ttl:           ttl,
		sourceTimeout: sourceTimeout,
		entries:       make(map[domain.Scope]*Entry),
		flights:       make(map[domain.Scope]*flight),
		now:           time.Now,
	}
}

// Articles returns the scope's merged article set, fresh within ttl or
// currently refreshing, together with the per-source error map of the entry.
// Never returns a fatal error for fetch failures: total failure surfaces only
// through the error map while any stale data keeps being served.
func (e *Engine) Articles(ctx context.Context, scope domain.Scope) ([]domain.Article, map[string]error, error) {
	e.mu.Lock()
	cur := e.entries[scope]
	fl := e.flights[scope]

	if cur != nil {
		if e.now().Sub(cur.FetchedAt) <= e.ttl {
			articles, errs := cur.Articles, cur.SourceErrors
			e.mu.Unlock()
			return articles, errs, nil
		}

		// Stale: kick off a background refresh unless one is already in
		// flight, then serve the stale entry immediately.
		if fl == nil {
			fl = &flight{done: make(chan struct{})}
			e.flights[scope] = fl
			go e.runRefresh(scope, fl)
		}
		articles, errs := cur.Articles, cur.SourceErrors
		e.mu.Unlock()
		return articles, errs, nil
	}

	// Cache miss: either join the in-flight refresh or own a new one.
	if fl != nil {
		e.mu.Unlock()
		select {
		case <-fl.done:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
		e.mu.Lock()
		cur = e.entries[scope]
		e.mu.Unlock()
		if cur == nil {
			return nil, nil, nil
		}
		return cur.Articles, cur.SourceErrors, nil
	}

	fl = &flight{done: make(chan struct{})}
	e.flights[scope] = fl
	e.mu.Unlock()

	entry := e.refresh(ctx, scope)
	e.finishFlight(scope, fl, entry)

	if entry == nil {
		return nil, nil, nil
	}
	return entry.Articles, entry.SourceErrors, nil
}

// Invalidate marks the scope stale by resetting FetchedAt to the epoch; the
// next read triggers a refresh. This is the sole staleness correction for
// source-list changes.
func (e *Engine) Invalidate(scope domain.Scope) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.entries[scope]; ok {
		entry.FetchedAt = time.Time{}
	}
}

// Clear drops every cached entry; used after bulk source edits.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = make(map[domain.Scope]*Entry)
}

// runRefresh executes a background refresh detached from the reader's
// context but bounded by the per-source timeout budget.
func (e *Engine) runRefresh(scope domain.Scope, fl *flight) {
	ctx, cancel := context.WithTimeout(context.Background(), e.sourceTimeout+5*time.Second)
	defer cancel()
	entry := e.refresh(ctx, scope)
	e.finishFlight(scope, fl, entry)
}

// finishFlight publishes the refreshed entry (nil keeps the previous one)
// and releases the per-scope flight flag.
func (e *Engine) finishFlight(scope domain.Scope, fl *flight, entry *Entry) {
	e.mu.Lock()
	if entry != nil {
		e.entries[scope] = entry
	}
	delete(e.flights, scope)
	e.mu.Unlock()
	close(fl.done)
}

// refresh fetches all active sources concurrently and merges the results.
// Per-source failures are soft: recorded in SourceErrors and excluded from
// the merge. Returns nil when every source failed and a previous entry
// exists, so the stale set survives.
func (e *Engine) refresh(ctx context.Context, scope domain.Scope) *Entry {
	sources, err := e.sources.ActiveSources(ctx, scope)
	if err != nil {
		e.logger.Warn("list sources failed", "scope", scope, "error", err)
		e.mu.Lock()
		hadEntry := e.entries[scope] != nil
		e.mu.Unlock()
		if hadEntry {
			return nil
		}
		return &Entry{
			Scope:        scope,
			FetchedAt:    e.now(),
			Articles:     []domain.Article{},
			SourceErrors: map[string]error{"registry": err},
		}
	}

	type result struct {
		src      domain.Source
		articles []domain.Article
		err      error
	}

	results := make([]result, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src domain.Source) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, e.sourceTimeout)
			defer cancel()
			articles, err := e.fetcher.Fetch(fetchCtx, src)
			results[i] = result{src: src, articles: articles, err: err}
		}(i, src)
	}
	wg.Wait()

	sourceErrors := make(map[string]error)
	var merged []domain.Article
	seen := make(map[string]bool)

	// Results merge in declared source order so identical inputs produce an
	// identical set regardless of goroutine completion order.
	for _, res := range results {
		if res.err != nil {
			e.logger.Warn("source fetch failed", "scope", scope, "source", res.src.Name, "error", res.err)
			sourceErrors[res.src.ID] = res.err
			continue
		}
		for _, a := range res.articles {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			a.NormalizedGenre = genre.Normalize(a.RawGenre)
			merged = append(merged, a)
		}
	}

	if len(sources) > 0 && len(sourceErrors) == len(sources) {
		for id, srcErr := range sourceErrors {
			sourceErrors[id] = fmt.Errorf("%w: %v", domain.ErrAllSourcesUnavailable, srcErr)
		}
		e.mu.Lock()
		hadEntry := e.entries[scope] != nil
		e.mu.Unlock()
		if hadEntry {
			return nil
		}
		return &Entry{Scope: scope, FetchedAt: e.now(), Articles: []domain.Article{}, SourceErrors: sourceErrors}
	}

	sortArticles(merged)

	return &Entry{
		Scope:        scope,
		FetchedAt:    e.now(),
		Articles:     merged,
		SourceErrors: sourceErrors,
	}
}

// sortArticles orders by recency with deterministic tie-breaks.
func sortArticles(articles []domain.Article) {
	sort.Slice(articles, func(i, j int) bool {
		if !articles[i].PublishedAt.Equal(articles[j].PublishedAt) {
			return articles[i].PublishedAt.After(articles[j].PublishedAt)
		}
		if articles[i].SourceName != articles[j].SourceName {
			return articles[i].SourceName < articles[j].SourceName
		}
		return articles[i].ID < articles[j].ID
	})
}
