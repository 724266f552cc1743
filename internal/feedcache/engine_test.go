package feedcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Hori98/Audion-sub008/internal/domain"
	"github.com/Hori98/Audion-sub008/internal/genre"
)

type stubSources struct {
	sources []domain.Source
	err     error
}

func (s *stubSources) ActiveSources(context.Context, domain.Scope) ([]domain.Source, error) {
	return s.sources, s.err
}

type stubFetcher struct {
	mu      sync.Mutex
	calls   int32
	results map[string][]domain.Article
	errs    map[string]error
	block   chan struct{} // when set, Fetch waits until closed
}

func (f *stubFetcher) Fetch(ctx context.Context, src domain.Source) ([]domain.Article, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[src.ID]; ok {
		return nil, err
	}
	return f.results[src.ID], nil
}

func (f *stubFetcher) callCount() int32 {
	return atomic.LoadInt32(&f.calls)
}

func article(id, sourceName string, published time.Time) domain.Article {
	return domain.Article{
		ID:          id,
		SourceName:  sourceName,
		Title:       "title " + id,
		Link:        "https://example.org/" + id,
		PublishedAt: published,
		RawGenre:    "tech",
	}
}

func newTestEngine(fetcher *stubFetcher, sources *stubSources) *Engine {
	return NewEngine(fetcher, sources, 15*time.Minute, time.Second, nil)
}

func TestArticlesFetchesOnlyActiveSources(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	fetcher := &stubFetcher{
		results: map[string][]domain.Article{
			"A": {
				article("a1", "Alpha", base.Add(time.Hour)),
				article("a2", "Alpha", base.Add(2*time.Hour)),
				article("a3", "Alpha", base),
			},
		},
	}
	// Source B is inactive and never handed to the engine by the provider.
	sources := &stubSources{sources: []domain.Source{
		{ID: "A", Name: "Alpha", Active: true},
	}}

	engine := newTestEngine(fetcher, sources)
	articles, srcErrs, err := engine.Articles(context.Background(), domain.ScopeCurated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(srcErrs) != 0 {
		t.Fatalf("unexpected source errors: %v", srcErrs)
	}
	if len(articles) != 3 {
		t.Fatalf("expected 3 articles, got %d", len(articles))
	}
	for i := 1; i < len(articles); i++ {
		if articles[i].PublishedAt.After(articles[i-1].PublishedAt) {
			t.Fatal("articles not sorted by publishedAt descending")
		}
	}
	if fetcher.callCount() != 1 {
		t.Fatalf("expected a single fetch, got %d", fetcher.callCount())
	}
}

func TestArticlesNormalizesGenres(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{
		results: map[string][]domain.Article{
			"A": {article("a1", "Alpha", time.Now())},
		},
	}
	sources := &stubSources{sources: []domain.Source{{ID: "A", Name: "Alpha", Active: true}}}

	engine := newTestEngine(fetcher, sources)
	articles, _, _ := engine.Articles(context.Background(), domain.ScopeCurated)
	if len(articles) != 1 || articles[0].NormalizedGenre != genre.Technology {
		t.Fatalf("expected normalized technology genre, got %+v", articles)
	}
}

func TestArticlesDeduplicatesByID(t *testing.T) {
	t.Parallel()

	now := time.Now()
	dup := article("same", "Alpha", now)
	fetcher := &stubFetcher{
		results: map[string][]domain.Article{
			"A": {dup, dup},
			"B": {dup},
		},
	}
	sources := &stubSources{sources: []domain.Source{
		{ID: "A", Name: "Alpha", Active: true},
		{ID: "B", Name: "Beta", Active: true},
	}}

	engine := newTestEngine(fetcher, sources)
	articles, _, _ := engine.Articles(context.Background(), domain.ScopeCurated)
	if len(articles) != 1 {
		t.Fatalf("dedup failed: got %d articles", len(articles))
	}
}

func TestArticlesServesFreshEntryWithoutRefetch(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{
		results: map[string][]domain.Article{"A": {article("a1", "Alpha", time.Now())}},
	}
	sources := &stubSources{sources: []domain.Source{{ID: "A", Name: "Alpha", Active: true}}}

	engine := newTestEngine(fetcher, sources)
	ctx := context.Background()

	if _, _, err := engine.Articles(ctx, domain.ScopeCurated); err != nil {
		t.Fatalf("first read: %v", err)
	}
	if _, _, err := engine.Articles(ctx, domain.ScopeCurated); err != nil {
		t.Fatalf("second read: %v", err)
	}
	if fetcher.callCount() != 1 {
		t.Fatalf("fresh entry refetched: %d calls", fetcher.callCount())
	}
}

func TestConcurrentMissReadersShareOneRefresh(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	fetcher := &stubFetcher{
		results: map[string][]domain.Article{"A": {article("a1", "Alpha", time.Now())}},
		block:   block,
	}
	sources := &stubSources{sources: []domain.Source{{ID: "A", Name: "Alpha", Active: true}}}

	engine := newTestEngine(fetcher, sources)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.Articles(ctx, domain.ScopeCurated)
		}()
	}

	// Give readers time to pile onto the single flight, then release it.
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	if fetcher.callCount() != 1 {
		t.Fatalf("expected one fetch across concurrent readers, got %d", fetcher.callCount())
	}
}

func TestStaleEntryServedWhileRefreshInFlight(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	fetcher := &stubFetcher{
		results: map[string][]domain.Article{"A": {article("a1", "Alpha", time.Now())}},
	}
	sources := &stubSources{sources: []domain.Source{{ID: "A", Name: "Alpha", Active: true}}}

	engine := newTestEngine(fetcher, sources)
	ctx := context.Background()

	if _, _, err := engine.Articles(ctx, domain.ScopeCurated); err != nil {
		t.Fatalf("warmup: %v", err)
	}

	// Force staleness, then block the next fetch so the refresh stays in
	// flight while readers keep arriving.
	engine.Invalidate(domain.ScopeCurated)
	fetcher.block = block

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			articles, _, err := engine.Articles(ctx, domain.ScopeCurated)
			if err != nil {
				t.Errorf("stale read %d: %v", i, err)
				return
			}
			if len(articles) != 1 {
				t.Errorf("stale read %d returned %d articles", i, len(articles))
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stale reads blocked on the in-flight refresh")
	}

	close(block)

	// Only the single background refresh may have started.
	deadline := time.After(time.Second)
	for fetcher.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("background refresh never ran: %d calls", fetcher.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if got := fetcher.callCount(); got != 2 {
		t.Fatalf("expected exactly one background refresh, got %d total calls", got)
	}
}

func TestAllSourcesFailedKeepsStaleEntry(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{
		results: map[string][]domain.Article{"A": {article("a1", "Alpha", time.Now())}},
		errs:    map[string]error{},
	}
	sources := &stubSources{sources: []domain.Source{{ID: "A", Name: "Alpha", Active: true}}}

	engine := newTestEngine(fetcher, sources)
	ctx := context.Background()

	if _, _, err := engine.Articles(ctx, domain.ScopeCurated); err != nil {
		t.Fatalf("warmup: %v", err)
	}

	fetcher.mu.Lock()
	fetcher.errs["A"] = errors.New("connection refused")
	fetcher.mu.Unlock()
	engine.Invalidate(domain.ScopeCurated)

	articles, _, err := engine.Articles(ctx, domain.ScopeCurated)
	if err != nil {
		t.Fatalf("stale read: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("stale entry lost after total failure: %d articles", len(articles))
	}
}

func TestAllSourcesFailedWithNoPriorEntryReturnsErrorMap(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{
		errs: map[string]error{"A": errors.New("boom"), "B": errors.New("bust")},
	}
	sources := &stubSources{sources: []domain.Source{
		{ID: "A", Name: "Alpha", Active: true},
		{ID: "B", Name: "Beta", Active: true},
	}}

	engine := newTestEngine(fetcher, sources)
	articles, srcErrs, err := engine.Articles(context.Background(), domain.ScopeCurated)
	if err != nil {
		t.Fatalf("total failure must not be fatal: %v", err)
	}
	if len(articles) != 0 {
		t.Fatalf("expected empty set, got %d", len(articles))
	}
	if len(srcErrs) != 2 {
		t.Fatalf("expected 2 source errors, got %d", len(srcErrs))
	}
	for id, srcErr := range srcErrs {
		if !errors.Is(srcErr, domain.ErrAllSourcesUnavailable) {
			t.Fatalf("source %s error not marked unavailable: %v", id, srcErr)
		}
	}
}

func TestPartialFailureExcludesFailedSourceOnly(t *testing.T) {
	t.Parallel()

	now := time.Now()
	fetcher := &stubFetcher{
		results: map[string][]domain.Article{"A": {article("a1", "Alpha", now)}},
		errs:    map[string]error{"B": errors.New("timeout")},
	}
	sources := &stubSources{sources: []domain.Source{
		{ID: "A", Name: "Alpha", Active: true},
		{ID: "B", Name: "Beta", Active: true},
	}}

	engine := newTestEngine(fetcher, sources)
	articles, srcErrs, err := engine.Articles(context.Background(), domain.ScopeCurated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("expected healthy source's article, got %d", len(articles))
	}
	if len(srcErrs) != 1 || srcErrs["B"] == nil {
		t.Fatalf("expected soft error for B only, got %v", srcErrs)
	}
}

func TestMergeIdempotence(t *testing.T) {
	t.Parallel()

	now := time.Now()
	fetcher := &stubFetcher{
		results: map[string][]domain.Article{
			"A": {article("a1", "Alpha", now), article("a2", "Alpha", now)},
		},
	}
	sources := &stubSources{sources: []domain.Source{{ID: "A", Name: "Alpha", Active: true}}}

	engine := newTestEngine(fetcher, sources)
	ctx := context.Background()

	first, _, _ := engine.Articles(ctx, domain.ScopeCurated)
	engine.Invalidate(domain.ScopeCurated)

	// The invalidated entry is served stale; wait for the background
	// refresh to publish, then compare sizes.
	engine.Articles(ctx, domain.ScopeCurated)
	deadline := time.After(time.Second)
	for fetcher.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("refresh never completed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	second, _, _ := engine.Articles(ctx, domain.ScopeCurated)
	if len(first) != len(second) {
		t.Fatalf("merge not idempotent: %d then %d", len(first), len(second))
	}
}

func TestClearDropsAllEntries(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{
		results: map[string][]domain.Article{"A": {article("a1", "Alpha", time.Now())}},
	}
	sources := &stubSources{sources: []domain.Source{{ID: "A", Name: "Alpha", Active: true}}}

	engine := newTestEngine(fetcher, sources)
	ctx := context.Background()

	engine.Articles(ctx, domain.ScopeCurated)
	engine.Clear()
	engine.Articles(ctx, domain.ScopeCurated)

	if fetcher.callCount() != 2 {
		t.Fatalf("expected refetch after clear, got %d calls", fetcher.callCount())
	}
}
