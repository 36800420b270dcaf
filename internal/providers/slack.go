package providers

import (
	"context"
	"net/http"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/models"
)

// SlackChannel posts Block Kit messages to one Slack incoming webhook.
type SlackChannel struct {
	name       string
	webhookURL string
	client     *http.Client
	logger     *logging.Logger
}

func NewSlackChannel(name, webhookURL string, logger *logging.Logger) *SlackChannel {
	if name == "" {
		name = models.ChannelSlack
	}
	return &SlackChannel{
		name:       name,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: WebhookTimeout},
		logger:     logger,
	}
}

func (c *SlackChannel) Name() string { return c.name }

func (c *SlackChannel) Send(ctx context.Context, alert models.ActiveAlert, event models.Event) bool {
	if err := postJSON(ctx, c.client, c.webhookURL, newSlackPayload(alert, event)); err != nil {
		c.logger.Errorf("Slack delivery of alert %s failed: %v", alert.ID, err)
		return false
	}
	return true
}
