package models

import (
	"time"
)

// Severity is the escalation tier of an Event.
type Severity string

const (
	SeverityNormal  Severity = "normal"
	SeverityNotable Severity = "notable"
	SeverityUrgent  Severity = "urgent"
)

// Rank orders severities so they can be compared; unknown values rank as normal.
func (s Severity) Rank() int {
	switch s {
	case SeverityNotable:
		return 1
	case SeverityUrgent:
		return 2
	default:
		return 0
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	return s == SeverityNormal || s == SeverityNotable || s == SeverityUrgent
}

// Source identifies the collector or detector that produced an Event.
type Source string

const (
	SourceMetrics  Source = "metrics"
	SourceProcess  Source = "process"
	SourceLogs     Source = "logs"
	SourceSecurity Source = "security"
	SourceNetwork  Source = "network"
	SourceAnomaly  Source = "anomaly"
	SourceSystem   Source = "system"
)

// Well-known event types.
const (
	EventMetricCollected = "metric.collected"
	EventCPUHigh         = "metric.cpu_high"
	EventMemoryHigh      = "metric.memory_high"
	EventDiskHigh        = "metric.disk_high"
	EventSwapHigh        = "metric.swap_high"
	EventLoadHigh        = "metric.load_high"

	EventProcessCrashed     = "process.crashed"
	EventProcessOOMKilled   = "process.oom_killed"
	EventProcessRestartLoop = "process.restart_loop"
	EventProcessStarted     = "process.started"

	EventLogErrorSpike = "log.error_spike"
	EventLogPanic      = "log.panic"

	EventSecurityBruteForce        = "security.brute_force"
	EventSecuritySuspiciousProcess = "security.suspicious_process"
	EventSecurityNewOpenPort       = "security.new_open_port"

	EventAnomalyDetected = "anomaly.detected"
)

// Well-known Event.Data keys.
//
// metric.collected events carry one numeric entry per metric name (for
// example "cpu_percent": 93.5). anomaly.detected events carry the
// DataKeyMetricName/DataKeyValue/DataKeyZScore/DataKeyBaselineMean keys.
const (
	DataKeyHost         = "host"
	DataKeyTenantID     = "tenant_id"
	DataKeyCPUPercent   = "cpu_percent"
	DataKeyMemPercent   = "memory_percent"
	DataKeyDiskPercent  = "disk_percent"
	DataKeySwapPercent  = "swap_percent"
	DataKeyLoad1m       = "load_1m"
	DataKeyProcessName  = "process_name"
	DataKeyMetricName   = "metric_name"
	DataKeyValue        = "value"
	DataKeyZScore       = "z_score"
	DataKeyBaselineMean = "baseline_mean"
)

// DefaultTenant is used wherever a tenant id is absent.
const DefaultTenant = "default"

// EventData is the typed key/value payload of an Event.
type EventData map[string]any

// Float returns the numeric value stored under key.
func (d EventData) Float(key string) (float64, bool) {
	switch v := d[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// String returns the string stored under key, or "".
func (d EventData) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Event is a timestamped, typed occurrence flowing through the bus.
type Event struct {
	Source    Source    `json:"source"`
	Type      string    `json:"type"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data,omitempty"`
	Message   string    `json:"message"`
}

// NewEvent builds a NORMAL event stamped with the current time.
func NewEvent(source Source, eventType string, data EventData) Event {
	if data == nil {
		data = EventData{}
	}
	return Event{
		Source:    source,
		Type:      eventType,
		Severity:  SeverityNormal,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// TenantID returns the tenant carried in the event data, or DefaultTenant.
func (e Event) TenantID() string {
	if t := e.Data.String(DataKeyTenantID); t != "" {
		return t
	}
	return DefaultTenant
}
