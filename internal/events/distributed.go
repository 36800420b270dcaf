package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/models"
)

// EventsChannel is the Redis pub/sub channel shared by every instance.
const EventsChannel = "fleetwatch:events"

// relayMessage is the wire form of a relayed event: every Event field plus the
// publishing instance id.
type relayMessage struct {
	models.Event
	Origin string `json:"origin"`
}

// DistributedBus relays events published on one instance to the local Bus of
// every other instance through Redis pub/sub.
type DistributedBus struct {
	local      *Bus
	client     redis.UniversalClient
	channel    string
	instanceID string
	logger     *logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDistributedBus wraps local with a Redis relay identified by instanceID.
func NewDistributedBus(local *Bus, client redis.UniversalClient, instanceID string, logger *logging.Logger) *DistributedBus {
	return &DistributedBus{
		local:      local,
		client:     client,
		channel:    EventsChannel,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Local returns the wrapped in-process bus.
func (d *DistributedBus) Local() *Bus {
	return d.local
}

// Subscribe registers a handler on the local bus.
func (d *DistributedBus) Subscribe(name string, h Handler, filter Filter) {
	d.local.Subscribe(name, h, filter)
}

// Recent reads the local recent-event buffer.
func (d *DistributedBus) Recent(q RecentQuery) []models.Event {
	return d.local.Recent(q)
}

// Publish delivers e to local handlers, then relays it to the other
// instances. Events received from the relay are re-delivered by the listener
// without going through Publish, so they are never sent out again.
func (d *DistributedBus) Publish(ctx context.Context, e models.Event) {
	d.local.Publish(ctx, e)

	payload, err := json.Marshal(relayMessage{Event: e, Origin: d.instanceID})
	if err != nil {
		d.logger.Errorf("failed to encode event for relay: %v", err)
		return
	}
	if err := d.client.Publish(ctx, d.channel, payload).Err(); err != nil {
		metrics.RelayErrors.WithLabelValues("events").Inc()
		d.logger.WithField("type", e.Type).Errorf("failed to relay event: %v", err)
		return
	}
	metrics.RelayMessages.WithLabelValues("events", "out").Inc()
}

// PublishNowait schedules Publish without blocking the caller.
func (d *DistributedBus) PublishNowait(ctx context.Context, e models.Event) {
	d.local.schedule(ctx, e, d.Publish)
}

// Start subscribes to the relay channel and begins delivering relayed events.
// A failed subscription is returned to the caller. Calling Start on a running
// bus is a no-op.
func (d *DistributedBus) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return nil
	}

	pubsub := d.client.Subscribe(ctx, d.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", d.channel, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.listen(listenCtx, pubsub, d.done)

	d.logger.WithFields(logrus.Fields{
		"channel":  d.channel,
		"instance": d.instanceID,
	}).Info("distributed event bus started")
	return nil
}

// Stop cancels the listener and waits for it to exit. Safe to call more than
// once.
func (d *DistributedBus) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	d.logger.Info("distributed event bus stopped")
}

func (d *DistributedBus) listen(ctx context.Context, pubsub *redis.PubSub, done chan struct{}) {
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
			d.deliver(ctx, msg.Payload)
		}
	}
}

var errMalformedEvent = errors.New("relayed event missing source or type")

func decodeRelayMessage(payload string) (relayMessage, error) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return relayMessage{}, err
	}
	if msg.Source == "" || msg.Type == "" {
		return relayMessage{}, errMalformedEvent
	}
	if msg.Severity == "" {
		msg.Severity = models.SeverityNormal
	}
	return msg, nil
}

func (d *DistributedBus) deliver(ctx context.Context, payload string) {
	msg, err := decodeRelayMessage(payload)
	if err != nil {
		metrics.RelayErrors.WithLabelValues("events").Inc()
		d.logger.Warnf("dropping malformed relay message: %v", err)
		return
	}
	// This instance already delivered its own events locally.
	if msg.Origin == d.instanceID {
		return
	}
	metrics.RelayMessages.WithLabelValues("events", "in").Inc()
	d.local.publish(ctx, msg.Event, true)
}
