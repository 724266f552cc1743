// Package rss fetches and normalizes entries from RSS/Atom sources.
package rss

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/Hori98/Audion-sub008/internal/domain"
	"github.com/Hori98/Audion-sub008/internal/ports"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "Audion/1.0 RSS Reader"
	maxSummaryLen  = 300
	maxItems       = 50
)

// Fetcher pulls one source's current entries over HTTP.
type Fetcher struct {
	parser *gofeed.Parser
	client *http.Client
}

var _ ports.FeedFetcher = (*Fetcher)(nil)

// NewFetcher wires an HTTP client; a nil client gets a bounded default.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Fetcher{
		parser: gofeed.NewParser(),
		client: client,
	}
}

// Fetch downloads and parses the source feed, returning normalized articles.
// Genre normalization is left to the cache engine; RawGenre carries the
// upstream category verbatim.
func (f *Fetcher) Fetch(ctx context.Context, src domain.Source) ([]domain.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request for %s: %w", src.Name, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", src.Name, resp.Status)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src.Name, err)
	}

	return convertItems(feed, src), nil
}

func convertItems(feed *gofeed.Feed, src domain.Source) []domain.Article {
	count := len(feed.Items)
	if count > maxItems {
		count = maxItems
	}

	articles := make([]domain.Article, 0, count)
	for i := 0; i < count; i++ {
		item := feed.Items[i]
		if item.Link == "" && item.Title == "" {
			continue
		}

		summary := item.Description
		if summary == "" {
			summary = item.Content
		}
		summary = truncate(stripHTML(summary), maxSummaryLen)

		published := time.Now().UTC()
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			published = item.UpdatedParsed.UTC()
		}

		rawGenre := ""
		if len(item.Categories) > 0 {
			rawGenre = item.Categories[0]
		}

		articles = append(articles, domain.Article{
			ID:          domain.ArticleID(item.Link, item.Title),
			SourceID:    src.ID,
			SourceName:  src.Name,
			Title:       strings.TrimSpace(item.Title),
			Summary:     summary,
			Link:        item.Link,
			PublishedAt: published,
			RawGenre:    rawGenre,
		})
	}
	return articles
}

var whitespace = regexp.MustCompile(`\s+`)

// stripHTML reduces a feed summary to plain text. Feeds routinely embed
// markup in descriptions; goquery handles entities and malformed fragments.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(doc.Text(), " "))
}

func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
