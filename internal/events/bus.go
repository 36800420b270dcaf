// Package events implements the in-process event bus and its Redis-relayed
// distributed variant.
package events

import (
	"context"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/models"
)

// DefaultRecentCapacity bounds the recent-event buffer.
const DefaultRecentCapacity = 500

// Handler reacts to a published event. A returned error is logged by the bus.
type Handler func(ctx context.Context, event models.Event) error

// Filter restricts which events reach a handler. Empty slices match everything.
type Filter struct {
	Sources    []models.Source
	Severities []models.Severity
	// LocalOnly skips events that arrived from the cross-instance relay, so
	// the handler only sees events published on this instance.
	LocalOnly bool
}

func (f Filter) matches(e models.Event, relayed bool) bool {
	if f.LocalOnly && relayed {
		return false
	}
	if len(f.Sources) > 0 && !slices.Contains(f.Sources, e.Source) {
		return false
	}
	if len(f.Severities) > 0 && !slices.Contains(f.Severities, e.Severity) {
		return false
	}
	return true
}

type subscription struct {
	name    string
	handler Handler
	filter  Filter
}

// RecentQuery selects events from the recent-event buffer.
type RecentQuery struct {
	Severity models.Severity
	Source   models.Source
	Limit    int
}

// Bus is an in-process publish/subscribe hub. Handlers run synchronously in
// subscription order inside Publish.
type Bus struct {
	logger *logging.Logger

	mu     sync.RWMutex
	subs   []subscription
	recent *ring
	closed bool

	inflight sync.WaitGroup
}

// NewBus creates an empty Bus.
func NewBus(logger *logging.Logger) *Bus {
	return &Bus{
		logger: logger,
		recent: newRing(DefaultRecentCapacity),
	}
}

// Subscribe registers h for every future event that passes filter.
func (b *Bus) Subscribe(name string, h Handler, filter Filter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, handler: h, filter: filter})
}

// Publish records e in the recent buffer and delivers it to every matching
// handler before returning. A failing handler never stops delivery to the
// handlers after it.
func (b *Bus) Publish(ctx context.Context, e models.Event) {
	b.publish(ctx, e, false)
}

// publish delivers e. relayed is set only when e itself came from another
// instance; it gates LocalOnly handlers and is never passed on to them.
func (b *Bus) publish(ctx context.Context, e models.Event, relayed bool) {
	b.mu.Lock()
	b.recent.push(e)
	subs := slices.Clone(b.subs)
	b.mu.Unlock()

	metrics.EventsPublished.WithLabelValues(string(e.Severity)).Inc()
	b.logEvent(e)

	for _, s := range subs {
		if !s.filter.matches(e, relayed) {
			continue
		}
		b.invoke(ctx, s, e)
	}
}

// PublishNowait schedules Publish on its own goroutine. Once the bus is closed
// the event is dropped with a warning.
func (b *Bus) PublishNowait(ctx context.Context, e models.Event) {
	b.schedule(ctx, e, b.Publish)
}

func (b *Bus) schedule(ctx context.Context, e models.Event, publish func(context.Context, models.Event)) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		metrics.EventsDropped.Inc()
		b.logger.WithFields(logrus.Fields{
			"source": e.Source,
			"type":   e.Type,
		}).Warn("event bus closed, dropping event")
		return
	}
	b.inflight.Add(1)
	b.mu.RUnlock()

	go func() {
		defer b.inflight.Done()
		publish(context.WithoutCancel(ctx), e)
	}()
}

// Recent returns the newest matching events, oldest first, at most q.Limit of
// them. A zero limit returns every match.
func (b *Bus) Recent(q RecentQuery) []models.Event {
	b.mu.RLock()
	all := b.recent.items()
	b.mu.RUnlock()

	out := make([]models.Event, 0, len(all))
	for _, e := range all {
		if q.Severity != "" && e.Severity != q.Severity {
			continue
		}
		if q.Source != "" && e.Source != q.Source {
			continue
		}
		out = append(out, e)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

// Len returns the number of buffered events.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.recent.len()
}

// Close stops accepting PublishNowait calls and waits for scheduled publishes
// to finish.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.inflight.Wait()
}

// Reset waits for scheduled publishes, then drops every handler and buffered
// event, leaving the bus as if freshly constructed.
func (b *Bus) Reset() {
	b.Close()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
	b.recent.reset()
	b.closed = false
}

func (b *Bus) invoke(ctx context.Context, s subscription, e models.Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerFailures.Inc()
			b.logger.WithFields(logrus.Fields{
				"handler": s.name,
				"type":    e.Type,
			}).Errorf("event handler panicked: %v", r)
		}
	}()

	if err := s.handler(ctx, e); err != nil {
		metrics.HandlerFailures.Inc()
		b.logger.WithFields(logrus.Fields{
			"handler": s.name,
			"type":    e.Type,
		}).Errorf("event handler failed: %v", err)
	}
}

func (b *Bus) logEvent(e models.Event) {
	entry := b.logger.WithFields(logrus.Fields{
		"source":   e.Source,
		"type":     e.Type,
		"severity": e.Severity,
	})
	switch e.Severity {
	case models.SeverityUrgent:
		entry.Warnf("urgent event: %s", e.Message)
	case models.SeverityNotable:
		entry.Infof("notable event: %s", e.Message)
	}
}
