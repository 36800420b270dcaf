package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetwatch/internal/models"
)

func metricEvent(data models.EventData) models.Event {
	return models.NewEvent(models.SourceMetrics, models.EventMetricCollected, data)
}

func TestClassify_MetricThresholds(t *testing.T) {
	c := New()

	tests := []struct {
		name     string
		data     models.EventData
		severity models.Severity
		typ      string
		message  string
	}{
		{"below thresholds", models.EventData{"cpu_percent": 42.0}, models.SeverityNormal, models.EventMetricCollected, ""},
		{"notable cpu", models.EventData{"cpu_percent": 85.0}, models.SeverityNotable, models.EventCPUHigh, "CPU usage at 85.0%"},
		{"urgent cpu", models.EventData{"cpu_percent": 97.34}, models.SeverityUrgent, models.EventCPUHigh, "CPU usage at 97.3%"},
		{"urgent at exact threshold", models.EventData{"memory_percent": 95}, models.SeverityUrgent, models.EventMemoryHigh, "Memory usage at 95.0%"},
		{"unknown metric", models.EventData{"fan_rpm": 9000.0}, models.SeverityNormal, models.EventMetricCollected, ""},
		{"non numeric value", models.EventData{"cpu_percent": "high"}, models.SeverityNormal, models.EventMetricCollected, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(metricEvent(tt.data))
			assert.Equal(t, tt.severity, got.Severity)
			assert.Equal(t, tt.typ, got.Type)
			assert.Equal(t, tt.message, got.Message)
		})
	}
}

func TestClassify_AtMostOneClassification(t *testing.T) {
	c := New()
	got := c.Classify(metricEvent(models.EventData{
		"cpu_percent":  99.0,
		"disk_percent": 90.0,
	}))

	// cpu_percent sorts first and is the only rule applied.
	assert.Equal(t, models.SeverityUrgent, got.Severity)
	assert.Equal(t, models.EventCPUHigh, got.Type)
	assert.Equal(t, "CPU usage at 99.0%", got.Message)
}

func TestClassify_TypeTable(t *testing.T) {
	c := New()

	tests := []struct {
		source models.Source
		typ    string
		want   models.Severity
	}{
		{models.SourceProcess, models.EventProcessCrashed, models.SeverityUrgent},
		{models.SourceProcess, models.EventProcessOOMKilled, models.SeverityUrgent},
		{models.SourceProcess, models.EventProcessRestartLoop, models.SeverityNotable},
		{models.SourceProcess, models.EventProcessStarted, models.SeverityNormal},
		{models.SourceSecurity, models.EventSecurityBruteForce, models.SeverityUrgent},
		{models.SourceSecurity, models.EventSecuritySuspiciousProcess, models.SeverityUrgent},
		{models.SourceSecurity, models.EventSecurityNewOpenPort, models.SeverityNotable},
		{models.SourceLogs, models.EventLogErrorSpike, models.SeverityNotable},
		{models.SourceSystem, "system.heartbeat", models.SeverityNormal},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			got := c.Classify(models.NewEvent(tt.source, tt.typ, nil))
			assert.Equal(t, tt.want, got.Severity)
			assert.Equal(t, tt.typ, got.Type)
		})
	}
}

func TestClassify_Idempotent(t *testing.T) {
	c := New()
	events := []models.Event{
		metricEvent(models.EventData{"cpu_percent": 96.0}),
		metricEvent(models.EventData{"cpu_percent": 10.0}),
		models.NewEvent(models.SourceProcess, models.EventProcessCrashed, nil),
	}
	for _, e := range events {
		once := c.Classify(e)
		assert.Equal(t, once, c.Classify(once))
	}
}

func TestClassify_NeverDowngrades(t *testing.T) {
	c := New()
	e := metricEvent(models.EventData{"cpu_percent": 5.0})
	e.Severity = models.SeverityUrgent
	e.Message = "collector says so"

	got := c.Classify(e)
	assert.Equal(t, e, got)
}

func TestAddThreshold_LastWriteWins(t *testing.T) {
	c := New()
	c.AddThreshold(ThresholdRule{
		Metric:           models.DataKeyCPUPercent,
		NotableThreshold: 30,
		UrgentThreshold:  50,
		EventType:        models.EventCPUHigh,
		MessageTemplate:  "cpu %.1f",
	})

	rule, ok := c.Threshold(models.DataKeyCPUPercent)
	require.True(t, ok)
	assert.Equal(t, 50.0, rule.UrgentThreshold)

	got := c.Classify(metricEvent(models.EventData{"cpu_percent": 40.0}))
	assert.Equal(t, models.SeverityNotable, got.Severity)
	assert.Equal(t, "cpu 40.0", got.Message)
}
