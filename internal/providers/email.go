package providers

import (
	"context"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/models"
	"fleetwatch/pkg/email"
)

// EmailChannel mails alerts to a fixed recipient list.
type EmailChannel struct {
	name       string
	recipients []string
	client     *email.Client
	logger     *logging.Logger
}

func NewEmailChannel(name string, recipients []string, client *email.Client, logger *logging.Logger) *EmailChannel {
	if name == "" {
		name = models.ChannelEmail
	}
	return &EmailChannel{name: name, recipients: recipients, client: client, logger: logger}
}

func (c *EmailChannel) Name() string { return c.name }

// Send is a successful no-op when no recipients are configured.
func (c *EmailChannel) Send(_ context.Context, alert models.ActiveAlert, event models.Event) bool {
	if len(c.recipients) == 0 {
		return true
	}
	if err := c.client.Send(c.recipients, "Fleetwatch alert: "+alertTitle(alert), emailBody(alert, event)); err != nil {
		c.logger.Errorf("Email delivery of alert %s failed: %v", alert.ID, err)
		return false
	}
	return true
}
