// Package classifier assigns severities to raw events using metric thresholds
// and a static table of event types.
package classifier

import (
	"fmt"
	"sort"
	"sync"

	"fleetwatch/internal/models"
)

// Classifier is safe for concurrent use; thresholds may be replaced while
// events are being classified.
type Classifier struct {
	mu         sync.RWMutex
	thresholds map[string]ThresholdRule
}

// New creates a Classifier loaded with DefaultThresholds.
func New() *Classifier {
	c := &Classifier{thresholds: make(map[string]ThresholdRule)}
	for _, r := range DefaultThresholds() {
		c.thresholds[r.Metric] = r
	}
	return c
}

// AddThreshold installs or replaces the rule for r.Metric.
func (c *Classifier) AddThreshold(r ThresholdRule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thresholds[r.Metric] = r
}

// Threshold returns the rule installed for metric.
func (c *Classifier) Threshold(metric string) (ThresholdRule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.thresholds[metric]
	return r, ok
}

// Classify returns e with its severity set. An event that already carries a
// non-NORMAL severity is returned unchanged.
func (c *Classifier) Classify(e models.Event) models.Event {
	if e.Severity != "" && e.Severity != models.SeverityNormal {
		return e
	}
	e.Severity = models.SeverityNormal

	if e.Type == models.EventMetricCollected {
		return c.classifyMetrics(e)
	}
	if sev, ok := typeSeverities[e.Type]; ok {
		e.Severity = sev
	}
	return e
}

func (c *Classifier) classifyMetrics(e models.Event) models.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Keys are visited in sorted order so the outcome does not depend on map
	// iteration order.
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		rule, ok := c.thresholds[key]
		if !ok {
			continue
		}
		value, ok := e.Data.Float(key)
		if !ok {
			continue
		}

		var sev models.Severity
		switch {
		case value >= rule.UrgentThreshold:
			sev = models.SeverityUrgent
		case value >= rule.NotableThreshold:
			sev = models.SeverityNotable
		default:
			continue
		}

		e.Severity = sev
		e.Type = rule.EventType
		e.Message = fmt.Sprintf(rule.MessageTemplate, value)
		return e
	}
	return e
}
