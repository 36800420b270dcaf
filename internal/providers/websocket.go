package providers

import (
	"context"
	"encoding/json"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/models"
)

// Broadcaster fans a message out to every client of a tenant.
type Broadcaster interface {
	Broadcast(ctx context.Context, message []byte, tenantID string) error
}

// WebSocketChannel pushes alerts to connected browser clients.
type WebSocketChannel struct {
	manager Broadcaster
	logger  *logging.Logger
}

func NewWebSocketChannel(manager Broadcaster, logger *logging.Logger) *WebSocketChannel {
	return &WebSocketChannel{manager: manager, logger: logger}
}

func (c *WebSocketChannel) Name() string { return models.ChannelWebSocket }

func (c *WebSocketChannel) Send(ctx context.Context, alert models.ActiveAlert, event models.Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("WebSocket broadcast of alert %s panicked: %v", alert.ID, r)
			ok = false
		}
	}()

	msg, err := json.Marshal(newAlertMessage(alert, event))
	if err != nil {
		c.logger.Errorf("Failed to encode alert %s: %v", alert.ID, err)
		return false
	}
	if err := c.manager.Broadcast(ctx, msg, alert.TenantID); err != nil {
		c.logger.Errorf("Failed to broadcast alert %s: %v", alert.ID, err)
		return false
	}
	return true
}
