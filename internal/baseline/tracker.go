// Package baseline keeps per-metric statistical baselines and flags live
// readings that deviate from them.
package baseline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/models"
)

const (
	// DefaultWindow is the trailing period baselines are computed over.
	DefaultWindow = 7 * 24 * time.Hour
	// MinSamples is the fewest samples a metric needs to get a baseline.
	MinSamples = 10
)

// SampleStore is the time-series store baselines are computed from.
type SampleStore interface {
	MetricNames(ctx context.Context, since time.Time) ([]string, error)
	QuerySamples(ctx context.Context, metric string, since, until time.Time) ([]models.MetricSample, error)
}

// Tracker holds the most recently computed baselines.
type Tracker struct {
	store  SampleStore
	logger *logging.Logger
	window time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	baselines map[string]models.MetricBaseline
	updatedAt time.Time
}

// NewTracker creates a Tracker over store using DefaultWindow.
func NewTracker(store SampleStore, logger *logging.Logger) *Tracker {
	return &Tracker{
		store:     store,
		logger:    logger,
		window:    DefaultWindow,
		now:       time.Now,
		baselines: make(map[string]models.MetricBaseline),
	}
}

// Update recomputes every baseline from the trailing window and replaces the
// previous set. On error the previous set is kept.
func (t *Tracker) Update(ctx context.Context) error {
	until := t.now().UTC()
	since := until.Add(-t.window)

	names, err := t.store.MetricNames(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to list metrics: %w", err)
	}

	next := make(map[string]models.MetricBaseline, len(names))
	for _, name := range names {
		samples, err := t.store.QuerySamples(ctx, name, since, until)
		if err != nil {
			return fmt.Errorf("failed to query samples for %s: %w", name, err)
		}
		if len(samples) < MinSamples {
			t.logger.Debugf("Skipping baseline for %s: %d samples", name, len(samples))
			continue
		}
		values := make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.Value
		}
		next[name] = summarize(name, values)
	}

	t.mu.Lock()
	t.baselines = next
	t.updatedAt = until
	t.mu.Unlock()

	t.logger.Infof("Updated baselines for %d of %d metrics", len(next), len(names))
	return nil
}

// Baseline returns the current baseline for metric.
func (t *Tracker) Baseline(metric string) (models.MetricBaseline, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.baselines[metric]
	return b, ok
}

// Baselines returns a copy of every current baseline.
func (t *Tracker) Baselines() map[string]models.MetricBaseline {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]models.MetricBaseline, len(t.baselines))
	for k, v := range t.baselines {
		out[k] = v
	}
	return out
}

// UpdatedAt is the time of the last successful Update.
func (t *Tracker) UpdatedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updatedAt
}

// Set installs a baseline directly. Used when seeding from another source.
func (t *Tracker) Set(b models.MetricBaseline) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baselines[b.MetricName] = b
}
