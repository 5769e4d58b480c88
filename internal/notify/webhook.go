package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Webhook posts transmission events to the tripwire URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a Webhook with the given request timeout.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}}
}

// Post sends event as JSON. Any non-2xx response is an error.
func (w *Webhook) Post(ctx context.Context, event Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build tripwire request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "repeater")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("tripwire request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("tripwire request: unexpected status %s", resp.Status)
	}
	return nil
}
