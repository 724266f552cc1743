// Package audio talks to the downstream audio-generation service.
package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Hori98/Audion-sub008/internal/domain"
	"github.com/Hori98/Audion-sub008/internal/ports"
)

// TokenProvider resolves the owner-scoped bearer token for a request.
type TokenProvider interface {
	Token(ctx context.Context, ownerID string) (string, error)
}

// StaticToken satisfies TokenProvider with a single service-level token.
type StaticToken string

// Token returns the static token regardless of owner.
func (t StaticToken) Token(context.Context, string) (string, error) {
	return string(t), nil
}

// Client posts audio-creation requests over HTTP.
type Client struct {
	endpoint string
	tokens   TokenProvider
	http     *http.Client
}

var _ ports.AudioCreator = (*Client)(nil)

// NewClient creates a reusable HTTP client. The per-call deadline comes from
// the caller's context; the transport timeout is only a safety net.
func NewClient(endpoint string, tokens TokenProvider) *Client {
	return &Client{
		endpoint: endpoint,
		tokens:   tokens,
		http:     &http.Client{Timeout: 5 * time.Minute},
	}
}

type createRequest struct {
	ArticleIDs    []string           `json:"article_ids"`
	ArticleTitles []string           `json:"article_titles"`
	ArticleURLs   []string           `json:"article_urls"`
	Preferences   createRequestPrefs `json:"preferences"`
}

type createRequestPrefs struct {
	MaxArticles     int      `json:"max_articles"`
	PreferredGenres []string `json:"preferred_genres,omitempty"`
	ActiveSourceIDs []string `json:"active_source_ids,omitempty"`
}

type createResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Create posts the personalized content request and returns the generated
// program. Timeouts map to domain.ErrDownstreamTimeout; other failures to
// domain.ErrDownstream with the most specific message the error body offers.
func (c *Client) Create(ctx context.Context, req domain.AudioRequest) (domain.AudioProgram, error) {
	if c.endpoint == "" {
		return domain.AudioProgram{}, fmt.Errorf("%w: audio client misconfigured", domain.ErrDownstream)
	}

	genres := make([]string, 0, len(req.Preferences.PreferredGenres))
	for _, g := range req.Preferences.PreferredGenres {
		genres = append(genres, string(g))
	}

	body, err := json.Marshal(createRequest{
		ArticleIDs:    req.ArticleIDs,
		ArticleTitles: req.ArticleTitles,
		ArticleURLs:   req.ArticleURLs,
		Preferences: createRequestPrefs{
			MaxArticles:     req.Preferences.MaxArticles,
			PreferredGenres: genres,
			ActiveSourceIDs: req.Preferences.ActiveSourceIDs,
		},
	})
	if err != nil {
		return domain.AudioProgram{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.AudioProgram{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		token, tErr := c.tokens.Token(ctx, req.OwnerID)
		if tErr != nil {
			return domain.AudioProgram{}, fmt.Errorf("resolve token: %w", tErr)
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.AudioProgram{}, fmt.Errorf("%w: %v", domain.ErrDownstreamTimeout, err)
		}
		return domain.AudioProgram{}, fmt.Errorf("%w: %v", domain.ErrDownstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.AudioProgram{}, fmt.Errorf("%w: %s", domain.ErrDownstream, errorMessage(resp))
	}

	var out createResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// The deadline can expire mid-body; that is still a timeout, not an
		// upstream failure.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.AudioProgram{}, fmt.Errorf("%w: %v", domain.ErrDownstreamTimeout, err)
		}
		return domain.AudioProgram{}, fmt.Errorf("%w: decode response: %v", domain.ErrDownstream, err)
	}

	return domain.AudioProgram{ID: out.ID, Title: out.Title}, nil
}

// errorMessage probes the arbitrary JSON error shapes upstream produces and
// falls back to the HTTP status when none fit.
func errorMessage(resp *http.Response) string {
	fallback := fmt.Sprintf("audio creation failed with status %s", resp.Status)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if err != nil || len(raw) == 0 {
		return fallback
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return fallback
	}

	for _, key := range []string{"message", "error", "detail"} {
		if msg, ok := body[key].(string); ok && msg != "" {
			return msg
		}
		if nested, ok := body[key].(map[string]any); ok {
			if msg, ok := nested["message"].(string); ok && msg != "" {
				return msg
			}
		}
	}

	return fallback
}
