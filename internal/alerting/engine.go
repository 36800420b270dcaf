// Package alerting matches classified events against alert rules, tracks the
// resulting alerts and fans them out to notification channels.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/models"
)

// ErrAlertNotFound is returned for ids that are not active.
var ErrAlertNotFound = errors.New("alert not found")

// Engine keeps at most one active alert per rule and tenant. A rule that
// matches again while its alert is active updates that alert in place:
// timestamp, message and occurrence count always, severity only upwards.
// Channels are re-notified only when the severity escalates.
type Engine struct {
	store  HistoryStore
	logger *logging.Logger
	now    func() time.Time

	rules    atomic.Pointer[[]models.AlertRule]
	channels atomic.Pointer[[]Channel]

	mu     sync.Mutex
	active map[string]*models.ActiveAlert // keyed by alertKey
	byID   map[string]string              // alert id -> alertKey
}

// NewEngine creates an Engine with the default rule set and no channels.
// store may be nil, in which case history is not persisted.
func NewEngine(store HistoryStore, logger *logging.Logger) *Engine {
	e := &Engine{
		store:  store,
		logger: logger,
		now:    time.Now,
		active: make(map[string]*models.ActiveAlert),
		byID:   make(map[string]string),
	}
	e.SetRules(models.DefaultAlertRules())
	e.SetChannels(nil)
	return e
}

// SetRules atomically replaces the rule set.
func (e *Engine) SetRules(rules []models.AlertRule) {
	rs := slices.Clone(rules)
	e.rules.Store(&rs)
}

// Rules returns the current rule set.
func (e *Engine) Rules() []models.AlertRule {
	return slices.Clone(*e.rules.Load())
}

// SetChannels atomically replaces the channel list. Dispatches already in
// progress keep using the list they started with.
func (e *Engine) SetChannels(channels []Channel) {
	cs := slices.Clone(channels)
	e.channels.Store(&cs)
}

// Channels returns the current channel list.
func (e *Engine) Channels() []Channel {
	return slices.Clone(*e.channels.Load())
}

func alertKey(ruleID, tenant string) string {
	return tenant + "/" + ruleID
}

// HandleEvent evaluates event against every rule. It has the events.Handler
// signature so it can be subscribed to a bus directly.
func (e *Engine) HandleEvent(ctx context.Context, event models.Event) error {
	for _, rule := range *e.rules.Load() {
		if !rule.Matches(event) {
			continue
		}
		e.fire(ctx, rule, event)
	}
	return nil
}

func (e *Engine) fire(ctx context.Context, rule models.AlertRule, event models.Event) {
	tenant := event.TenantID()
	key := alertKey(rule.ID, tenant)
	now := e.now().UTC()
	message := event.Message
	if message == "" {
		message = fmt.Sprintf("%s: %s from %s", rule.Name, event.Type, event.Source)
	}

	e.mu.Lock()
	existing, ok := e.active[key]
	if ok {
		existing.Timestamp = now
		existing.Message = message
		existing.Occurrences++
		escalated := event.Severity.Rank() > existing.Severity.Rank()
		if escalated {
			existing.Severity = event.Severity
			existing.Status = models.AlertFiring
		}
		snapshot := *existing
		e.mu.Unlock()

		if escalated {
			e.logger.WithFields(logrus.Fields{
				"alert_id": snapshot.ID,
				"rule_id":  rule.ID,
				"severity": snapshot.Severity,
			}).Warn("Alert escalated")
			if e.store != nil {
				upd := models.AlertStatusUpdate{Severity: &snapshot.Severity, Message: &snapshot.Message}
				if err := e.store.UpdateAlertStatus(ctx, snapshot.ID, upd); err != nil {
					e.logger.Errorf("Failed to persist escalation of alert %s: %v", snapshot.ID, err)
				}
			}
			e.dispatch(ctx, snapshot, event)
		}
		return
	}

	alert := &models.ActiveAlert{
		ID:          uuid.NewString(),
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Severity:    event.Severity,
		Timestamp:   now,
		Status:      models.AlertFiring,
		Message:     message,
		Source:      event.Source,
		EventType:   event.Type,
		TenantID:    tenant,
		Occurrences: 1,
	}
	e.active[key] = alert
	e.byID[alert.ID] = key
	snapshot := *alert
	e.mu.Unlock()

	metrics.AlertsFired.WithLabelValues(string(snapshot.Severity)).Inc()
	e.logger.WithFields(logrus.Fields{
		"alert_id":  snapshot.ID,
		"rule_id":   rule.ID,
		"tenant_id": tenant,
		"severity":  snapshot.Severity,
	}).Infof("Alert fired: %s", snapshot.Message)

	if e.store != nil {
		id, err := e.store.InsertAlert(ctx, models.NewAlertRecord(snapshot))
		if err != nil {
			e.logger.Errorf("Failed to persist alert %s: %v", snapshot.ID, err)
		} else {
			snapshot.HistoryID = id
			e.mu.Lock()
			if a, ok := e.active[key]; ok && a.ID == snapshot.ID {
				a.HistoryID = id
			}
			e.mu.Unlock()
		}
	}

	e.dispatch(ctx, snapshot, event)
}

// dispatch sends alert to every channel concurrently and waits for all of
// them. A failing or panicking channel does not affect the others.
func (e *Engine) dispatch(ctx context.Context, alert models.ActiveAlert, event models.Event) map[string]bool {
	channels := *e.channels.Load()
	results := make(map[string]bool, len(channels))
	if len(channels) == 0 {
		return results
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, ch := range channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			ok := e.send(ctx, ch, alert, event)
			mu.Lock()
			results[ch.Name()] = ok
			mu.Unlock()
		}(ch)
	}
	wg.Wait()
	return results
}

func (e *Engine) send(ctx context.Context, ch Channel, alert models.ActiveAlert, event models.Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("Channel %s panicked sending alert %s: %v", ch.Name(), alert.ID, r)
			ok = false
		}
		result := "success"
		if !ok {
			result = "failure"
		}
		metrics.ChannelDeliveries.WithLabelValues(ch.Name(), result).Inc()
	}()

	ok = ch.Send(ctx, alert, event)
	if !ok {
		e.logger.Warnf("Channel %s failed to deliver alert %s", ch.Name(), alert.ID)
	}
	return ok
}

// Acknowledge marks an active alert as acknowledged by user.
func (e *Engine) Acknowledge(ctx context.Context, alertID, by string) (models.ActiveAlert, error) {
	now := e.now().UTC()

	e.mu.Lock()
	key, ok := e.byID[alertID]
	if !ok {
		e.mu.Unlock()
		return models.ActiveAlert{}, ErrAlertNotFound
	}
	alert := e.active[key]
	alert.Status = models.AlertAcknowledged
	snapshot := *alert
	e.mu.Unlock()

	if e.store != nil {
		upd := models.AlertStatusUpdate{AcknowledgedAt: &now, AcknowledgedBy: &by}
		if err := e.store.UpdateAlertStatus(ctx, alertID, upd); err != nil {
			return snapshot, fmt.Errorf("failed to update alert %s: %w", alertID, err)
		}
	}
	e.logger.Infof("Alert %s acknowledged by %s", alertID, by)
	return snapshot, nil
}

// Resolve closes an active alert. The rule can fire a new alert afterwards.
func (e *Engine) Resolve(ctx context.Context, alertID string) (models.ActiveAlert, error) {
	now := e.now().UTC()

	e.mu.Lock()
	key, ok := e.byID[alertID]
	if !ok {
		e.mu.Unlock()
		return models.ActiveAlert{}, ErrAlertNotFound
	}
	alert := e.active[key]
	delete(e.active, key)
	delete(e.byID, alertID)
	alert.Status = models.AlertResolved
	snapshot := *alert
	e.mu.Unlock()

	if e.store != nil {
		resolved := true
		upd := models.AlertStatusUpdate{Resolved: &resolved, ResolvedAt: &now}
		if err := e.store.UpdateAlertStatus(ctx, alertID, upd); err != nil {
			return snapshot, fmt.Errorf("failed to update alert %s: %w", alertID, err)
		}
	}
	e.logger.Infof("Alert %s resolved", alertID)
	return snapshot, nil
}

// Active returns the active alerts, newest first.
func (e *Engine) Active() []models.ActiveAlert {
	e.mu.Lock()
	out := make([]models.ActiveAlert, 0, len(e.active))
	for _, a := range e.active {
		out = append(out, *a)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Get returns the active alert with id.
func (e *Engine) Get(alertID string) (models.ActiveAlert, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key, ok := e.byID[alertID]
	if !ok {
		return models.ActiveAlert{}, false
	}
	return *e.active[key], true
}
