package models

import "time"

// AlertStatus is the lifecycle state of an ActiveAlert.
type AlertStatus string

const (
	AlertFiring       AlertStatus = "firing"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// ActiveAlert is an alert raised by a matching rule that has not been resolved.
type ActiveAlert struct {
	ID          string      `json:"id"`
	RuleID      string      `json:"rule_id"`
	RuleName    string      `json:"rule_name"`
	Severity    Severity    `json:"severity"`
	Timestamp   time.Time   `json:"timestamp"`
	Status      AlertStatus `json:"status"`
	Message     string      `json:"message"`
	Source      Source      `json:"source"`
	EventType   string      `json:"event_type"`
	TenantID    string      `json:"tenant_id"`
	Occurrences int         `json:"occurrences"`
	HistoryID   int64       `json:"history_id,omitempty"`
}

// AlertRecord is one row of the alert_history table.
type AlertRecord struct {
	ID             int64      `json:"id"`
	AlertID        string     `json:"alert_id"`
	RuleID         string     `json:"rule_id"`
	RuleName       string     `json:"rule_name"`
	Severity       Severity   `json:"severity"`
	Message        string     `json:"message"`
	Source         Source     `json:"source"`
	EventType      string     `json:"event_type"`
	TenantID       string     `json:"tenant_id"`
	CreatedAt      time.Time  `json:"created_at"`
	Resolved       bool       `json:"resolved"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
}

// NewAlertRecord captures a freshly created alert for persistence.
func NewAlertRecord(a ActiveAlert) AlertRecord {
	return AlertRecord{
		AlertID:   a.ID,
		RuleID:    a.RuleID,
		RuleName:  a.RuleName,
		Severity:  a.Severity,
		Message:   a.Message,
		Source:    a.Source,
		EventType: a.EventType,
		TenantID:  a.TenantID,
		CreatedAt: a.Timestamp,
	}
}

// AlertStatusUpdate carries the mutable status fields of an alert_history row.
// Nil fields are left untouched.
type AlertStatusUpdate struct {
	Severity       *Severity
	Message        *string
	Resolved       *bool
	ResolvedAt     *time.Time
	AcknowledgedAt *time.Time
	AcknowledgedBy *string
}
