// Package notify dispatches fire-and-forget delivery notifications.
package notify

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

// Notifier posts notification events to the push gateway.
type Notifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers the gateway endpoint and credential.
func NewNotifier(endpoint, apiKey string) *Notifier {
	return &Notifier{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify posts one event. Callers treat failures as non-fatal; the delivery
// attempt has already been recorded by the time this runs.
func (n *Notifier) Notify(ctx context.Context, evt domain.Notification) error {
	if n.endpoint == "" {
		return fmt.Errorf("notifier misconfigured")
	}

	body, err := json.Marshal(map[string]string{
		"owner_id": evt.OwnerID,
		"title":    evt.Title,
		"body":     evt.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notification gateway error: %s", resp.Status)
	}

	return nil
}
