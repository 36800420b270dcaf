package models

import "slices"

// Condition types understood by AlertRule.
const (
	ConditionEQ  = "EQ"
	ConditionNEQ = "NEQ"
	ConditionGT  = "GT"
	ConditionGTE = "GTE"
	ConditionLT  = "LT"
	ConditionLTE = "LTE"
)

// AlertRule decides which classified events raise an alert.
type AlertRule struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Severity      Severity `json:"severity" yaml:"severity"`
	ConditionType string   `json:"condition_type" yaml:"condition_type"`
	Sources       []Source `json:"sources,omitempty" yaml:"sources"`
	EventTypes    []string `json:"event_types,omitempty" yaml:"event_types"`
	Enabled       bool     `json:"enabled" yaml:"enabled"`
}

// Matches reports whether the rule fires for e.
func (r AlertRule) Matches(e Event) bool {
	if !r.Enabled {
		return false
	}
	if len(r.Sources) > 0 && !slices.Contains(r.Sources, e.Source) {
		return false
	}
	if len(r.EventTypes) > 0 && !slices.Contains(r.EventTypes, e.Type) {
		return false
	}
	return evaluateCondition(r.ConditionType, e.Severity.Rank(), r.Severity.Rank())
}

// evaluateCondition checks if eventSeverity satisfies the rule condition.
func evaluateCondition(cond string, eventSeverity, ruleSeverity int) bool {
	switch cond {
	case ConditionEQ:
		return eventSeverity == ruleSeverity
	case ConditionNEQ:
		return eventSeverity != ruleSeverity
	case ConditionGT:
		return eventSeverity > ruleSeverity
	case ConditionGTE, "":
		return eventSeverity >= ruleSeverity
	case ConditionLT:
		return eventSeverity < ruleSeverity
	case ConditionLTE:
		return eventSeverity <= ruleSeverity
	default:
		return false
	}
}

// DefaultAlertRules is the rule set used until rules are loaded from storage.
func DefaultAlertRules() []AlertRule {
	return []AlertRule{
		{ID: "cpu-high", Name: "High CPU usage", Severity: SeverityNotable, ConditionType: ConditionGTE, EventTypes: []string{EventCPUHigh}, Enabled: true},
		{ID: "memory-high", Name: "High memory usage", Severity: SeverityNotable, ConditionType: ConditionGTE, EventTypes: []string{EventMemoryHigh}, Enabled: true},
		{ID: "disk-high", Name: "Disk almost full", Severity: SeverityNotable, ConditionType: ConditionGTE, EventTypes: []string{EventDiskHigh}, Enabled: true},
		{ID: "swap-high", Name: "High swap usage", Severity: SeverityNotable, ConditionType: ConditionGTE, EventTypes: []string{EventSwapHigh}, Enabled: true},
		{ID: "load-high", Name: "High load average", Severity: SeverityNotable, ConditionType: ConditionGTE, EventTypes: []string{EventLoadHigh}, Enabled: true},
		{ID: "process-failure", Name: "Process failure", Severity: SeverityNotable, ConditionType: ConditionGTE, Sources: []Source{SourceProcess}, Enabled: true},
		{ID: "log-errors", Name: "Log errors", Severity: SeverityNotable, ConditionType: ConditionGTE, Sources: []Source{SourceLogs}, Enabled: true},
		{ID: "security-threat", Name: "Security threat", Severity: SeverityNotable, ConditionType: ConditionGTE, Sources: []Source{SourceSecurity}, Enabled: true},
		{ID: "metric-anomaly", Name: "Metric anomaly", Severity: SeverityNotable, ConditionType: ConditionGTE, Sources: []Source{SourceAnomaly}, Enabled: true},
	}
}
