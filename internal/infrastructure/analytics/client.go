// Package analytics reports best-effort delivery metrics.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Hori98/Audion-sub008/internal/domain"
	"github.com/Hori98/Audion-sub008/internal/ports"
)

// Client posts delivery stats to the analytics collector.
type Client struct {
	endpoint string
	http     *http.Client
}

var _ ports.Analytics = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 5 * time.Second},
	}
}

// Track posts one delivery's stats. Callers swallow the returned error; it
// exists only for logging.
func (c *Client) Track(ctx context.Context, stats domain.DeliveryStats) error {
	if c.endpoint == "" {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"success":       stats.Success,
		"article_count": stats.ArticleCount,
		"audio_id":      stats.AudioID,
		"timestamp":     stats.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analytics collector error: %s", resp.Status)
	}

	return nil
}
