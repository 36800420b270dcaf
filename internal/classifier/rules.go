package classifier

import "fleetwatch/internal/models"

// ThresholdRule escalates a metric.collected event when the named metric
// crosses a threshold. MessageTemplate takes the metric value as its only
// formatting argument.
type ThresholdRule struct {
	Metric           string
	NotableThreshold float64
	UrgentThreshold  float64
	EventType        string
	MessageTemplate  string
}

// DefaultThresholds covers the host metrics reported by the collectors.
func DefaultThresholds() []ThresholdRule {
	return []ThresholdRule{
		{
			Metric:           models.DataKeyCPUPercent,
			NotableThreshold: 80,
			UrgentThreshold:  95,
			EventType:        models.EventCPUHigh,
			MessageTemplate:  "CPU usage at %.1f%%",
		},
		{
			Metric:           models.DataKeyMemPercent,
			NotableThreshold: 85,
			UrgentThreshold:  95,
			EventType:        models.EventMemoryHigh,
			MessageTemplate:  "Memory usage at %.1f%%",
		},
		{
			Metric:           models.DataKeyDiskPercent,
			NotableThreshold: 85,
			UrgentThreshold:  95,
			EventType:        models.EventDiskHigh,
			MessageTemplate:  "Disk usage at %.1f%%",
		},
		{
			Metric:           models.DataKeySwapPercent,
			NotableThreshold: 50,
			UrgentThreshold:  80,
			EventType:        models.EventSwapHigh,
			MessageTemplate:  "Swap usage at %.1f%%",
		},
		{
			Metric:           models.DataKeyLoad1m,
			NotableThreshold: 8,
			UrgentThreshold:  16,
			EventType:        models.EventLoadHigh,
			MessageTemplate:  "Load average at %.1f",
		},
	}
}

// typeSeverities maps process, log and security event types to fixed
// severities. Types not listed stay NORMAL.
var typeSeverities = map[string]models.Severity{
	models.EventProcessCrashed:            models.SeverityUrgent,
	models.EventProcessOOMKilled:          models.SeverityUrgent,
	models.EventProcessRestartLoop:        models.SeverityNotable,
	models.EventLogPanic:                  models.SeverityUrgent,
	models.EventLogErrorSpike:             models.SeverityNotable,
	models.EventSecurityBruteForce:        models.SeverityUrgent,
	models.EventSecuritySuspiciousProcess: models.SeverityUrgent,
	models.EventSecurityNewOpenPort:       models.SeverityNotable,
}
