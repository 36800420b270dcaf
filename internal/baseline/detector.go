package baseline

import (
	"fmt"
	"math"
	"sync"
	"time"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/models"
)

const (
	NotableZScore = 2.0
	UrgentZScore  = 3.0

	// DefaultCooldown is the minimum gap between anomalies for one metric.
	DefaultCooldown = 900 * time.Second
)

// Baselines is the read side of a Tracker.
type Baselines interface {
	Baseline(metric string) (models.MetricBaseline, bool)
}

// Detector flags readings whose z-score against the baseline exceeds the
// notable or urgent thresholds.
type Detector struct {
	baselines Baselines
	logger    *logging.Logger
	cooldown  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	lastFired map[string]time.Time
}

// NewDetector creates a Detector. A non-positive cooldown selects
// DefaultCooldown.
func NewDetector(baselines Baselines, cooldown time.Duration, logger *logging.Logger) *Detector {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Detector{
		baselines: baselines,
		logger:    logger,
		cooldown:  cooldown,
		now:       time.Now,
		lastFired: make(map[string]time.Time),
	}
}

// Check compares value against the baseline for metric. It returns nil when
// there is no usable baseline, the reading is within range, or the metric is
// still cooling down from a previous anomaly.
func (d *Detector) Check(metric string, value float64) *models.Anomaly {
	b, ok := d.baselines.Baseline(metric)
	if !ok || b.Stddev == 0 {
		return nil
	}

	z := math.Abs(value-b.Mean) / b.Stddev
	var sev models.Severity
	switch {
	case z > UrgentZScore:
		sev = models.SeverityUrgent
	case z > NotableZScore:
		sev = models.SeverityNotable
	default:
		return nil
	}

	now := d.now()
	d.mu.Lock()
	if last, ok := d.lastFired[metric]; ok && now.Sub(last) < d.cooldown {
		d.mu.Unlock()
		d.logger.Debugf("Anomaly for %s suppressed by cooldown", metric)
		return nil
	}
	d.lastFired[metric] = now
	d.mu.Unlock()

	metrics.Anomalies.WithLabelValues(string(sev)).Inc()
	return &models.Anomaly{
		MetricName:   metric,
		Value:        value,
		ZScore:       z,
		Severity:     sev,
		BaselineMean: b.Mean,
		Message:      fmt.Sprintf("%s=%.1f (z=%.1f, baseline mean=%.1f, stddev=%.1f)", metric, value, z, b.Mean, b.Stddev),
	}
}

// CheckAll runs Check over values and returns the anomalies in input order.
func (d *Detector) CheckAll(values []models.MetricValue) []models.Anomaly {
	var out []models.Anomaly
	for _, v := range values {
		if a := d.Check(v.Name, v.Value); a != nil {
			out = append(out, *a)
		}
	}
	return out
}

// ResetCooldowns forgets every cooldown timer.
func (d *Detector) ResetCooldowns() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastFired = make(map[string]time.Time)
}
