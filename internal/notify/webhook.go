package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const webhookTimeout = 10 * time.Second

// Webhook posts events as Discord-style JSON to a configured URL.
type Webhook struct {
	url    string
	client *retryablehttp.Client
}

// NewWebhook creates a webhook notifier. Transient HTTP failures are
// retried a couple of times with backoff; anything beyond that is the
// caller's problem to log.
func NewWebhook(url string) *Webhook {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = webhookTimeout
	client.Logger = nil

	return &Webhook{url: url, client: client}
}

// webhookPayload is the wire format (Discord "content" style, also accepted
// by most generic webhook receivers).
type webhookPayload struct {
	Content string `json:"content"`
}

// Notify posts the event.
func (w *Webhook) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(webhookPayload{
		Content: fmt.Sprintf("**ferry** [%s] %s (job %s)", ev.Status, ev.Summary, ev.JobID),
	})
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ferry")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook post: unexpected status %s", resp.Status)
	}
	return nil
}
