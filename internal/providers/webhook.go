package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/models"
)

// WebhookTimeout bounds each outbound POST.
const WebhookTimeout = 10 * time.Second

// WebhookChannel POSTs alerts to a list of URLs. The body shape follows the
// receiving service: Slack and Discord incoming webhooks get their native
// formats, anything else a generic JSON document.
type WebhookChannel struct {
	name   string
	urls   []string
	client *http.Client
	logger *logging.Logger
}

func NewWebhookChannel(name string, urls []string, logger *logging.Logger) *WebhookChannel {
	if name == "" {
		name = models.ChannelWebhook
	}
	return &WebhookChannel{
		name:   name,
		urls:   urls,
		client: &http.Client{Timeout: WebhookTimeout},
		logger: logger,
	}
}

func (c *WebhookChannel) Name() string { return c.name }

// Send posts to every URL. A failed URL does not stop the remaining ones but
// makes the overall result false.
func (c *WebhookChannel) Send(ctx context.Context, alert models.ActiveAlert, event models.Event) bool {
	ok := true
	for _, url := range c.urls {
		if err := postJSON(ctx, c.client, url, payloadFor(url, alert, event)); err != nil {
			c.logger.Errorf("Webhook delivery of alert %s to %s failed: %v", alert.ID, url, err)
			ok = false
		}
	}
	return ok
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
