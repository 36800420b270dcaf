package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/metrics"
)

// BroadcastChannelPrefix namespaces the per-tenant broadcast channels.
const BroadcastChannelPrefix = "fleetwatch:ws:broadcast:"

// BroadcastChannel returns the relay channel for tenantID.
func BroadcastChannel(tenantID string) string {
	return BroadcastChannelPrefix + normalizeTenant(tenantID)
}

type broadcastMessage struct {
	TenantID string `json:"tenant_id"`
	Message  string `json:"message"`
}

// DistributedManager scopes broadcasts by tenant across every instance.
// Broadcast only publishes to Redis; local clients receive the message back
// through the listener like clients on any other instance.
type DistributedManager struct {
	local  *Manager
	client redis.UniversalClient
	logger *logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDistributedManager(local *Manager, client redis.UniversalClient, logger *logging.Logger) *DistributedManager {
	return &DistributedManager{local: local, client: client, logger: logger}
}

// Local returns the wrapped single-instance manager.
func (d *DistributedManager) Local() *Manager { return d.local }

func (d *DistributedManager) Connect(conn *websocket.Conn, tenantID, userID string) *Client {
	return d.local.Connect(conn, tenantID, userID)
}

func (d *DistributedManager) Disconnect(c *Client) { d.local.Disconnect(c) }

func (d *DistributedManager) Send(c *Client, message []byte) bool { return d.local.Send(c, message) }

func (d *DistributedManager) ServeWS(w http.ResponseWriter, r *http.Request, tenantID, userID string) {
	d.local.ServeWS(w, r, tenantID, userID)
}

// Broadcast publishes message to the tenant's relay channel.
func (d *DistributedManager) Broadcast(ctx context.Context, message []byte, tenantID string) error {
	tenantID = normalizeTenant(tenantID)
	payload, err := json.Marshal(broadcastMessage{TenantID: tenantID, Message: string(message)})
	if err != nil {
		return fmt.Errorf("failed to encode broadcast: %w", err)
	}
	if err := d.client.Publish(ctx, BroadcastChannel(tenantID), payload).Err(); err != nil {
		metrics.RelayErrors.WithLabelValues("ws").Inc()
		return fmt.Errorf("failed to publish broadcast for tenant %s: %w", tenantID, err)
	}
	metrics.RelayMessages.WithLabelValues("ws", "out").Inc()
	return nil
}

// Start pattern-subscribes to every tenant channel. Calling Start on a
// running manager is a no-op.
func (d *DistributedManager) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return nil
	}

	pattern := BroadcastChannelPrefix + "*"
	pubsub := d.client.PSubscribe(ctx, pattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.listen(listenCtx, pubsub, d.done)

	d.logger.Infof("distributed connection manager listening on %s", pattern)
	return nil
}

// Stop cancels the listener and waits for it to exit.
func (d *DistributedManager) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	d.logger.Info("distributed connection manager stopped")
}

func (d *DistributedManager) listen(ctx context.Context, pubsub *redis.PubSub, done chan struct{}) {
	defer close(done)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			d.deliver(ctx, msg.Channel, msg.Payload)
		}
	}
}

var (
	errMissingTenant  = errors.New("broadcast has no tenant")
	errTenantMismatch = errors.New("broadcast tenant does not match its channel")
)

// decodeBroadcast takes the tenant from the channel name. A payload naming a
// different tenant is rejected.
func decodeBroadcast(channel, payload string) (broadcastMessage, error) {
	var msg broadcastMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return broadcastMessage{}, err
	}
	tenant := strings.TrimPrefix(channel, BroadcastChannelPrefix)
	if tenant == "" || tenant == channel {
		return broadcastMessage{}, errMissingTenant
	}
	if msg.TenantID != "" && msg.TenantID != tenant {
		return broadcastMessage{}, fmt.Errorf("%w: %q on %s", errTenantMismatch, msg.TenantID, channel)
	}
	msg.TenantID = tenant
	return msg, nil
}

func (d *DistributedManager) deliver(ctx context.Context, channel, payload string) {
	msg, err := decodeBroadcast(channel, payload)
	if err != nil {
		metrics.RelayErrors.WithLabelValues("ws").Inc()
		d.logger.Warnf("dropping malformed broadcast on %s: %v", channel, err)
		return
	}
	metrics.RelayMessages.WithLabelValues("ws", "in").Inc()
	_ = d.local.Broadcast(ctx, []byte(msg.Message), msg.TenantID)
}
