package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetwatch/internal/models"
)

func newMock(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return NewWithPool(mock), mock
}

func TestInsertAlert(t *testing.T) {
	d, mock := newMock(t)
	created := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	rec := models.AlertRecord{
		AlertID:   "a-1",
		RuleID:    "cpu-high",
		RuleName:  "High CPU usage",
		Severity:  models.SeverityUrgent,
		Message:   "CPU usage at 97.0%",
		Source:    models.SourceMetrics,
		EventType: models.EventCPUHigh,
		TenantID:  "acme",
		CreatedAt: created,
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO alert_history")).
		WithArgs("a-1", "cpu-high", "High CPU usage", "urgent", "CPU usage at 97.0%", "metrics", models.EventCPUHigh, "acme", created, false).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := d.InsertAlert(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestInsertAlert_Error(t *testing.T) {
	d, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO alert_history")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	_, err := d.InsertAlert(context.Background(), models.AlertRecord{})
	assert.Error(t, err)
}

func TestUpdateAlertStatus(t *testing.T) {
	d, mock := newMock(t)
	at := time.Date(2025, 3, 10, 12, 5, 0, 0, time.UTC)
	by := "oncall"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE alert_history SET acknowledged_at = $1, acknowledged_by = $2 WHERE alert_id = $3")).
		WithArgs(at, by, "a-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, d.UpdateAlertStatus(context.Background(), "a-1", models.AlertStatusUpdate{AcknowledgedAt: &at, AcknowledgedBy: &by}))
}

func TestUpdateAlertStatus_Escalation(t *testing.T) {
	d, mock := newMock(t)
	sev := models.SeverityUrgent
	msg := "CPU usage at 97.0%"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE alert_history SET severity = $1, message = $2 WHERE alert_id = $3")).
		WithArgs("urgent", msg, "a-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, d.UpdateAlertStatus(context.Background(), "a-1", models.AlertStatusUpdate{Severity: &sev, Message: &msg}))
}

func TestUpdateAlertStatus_NoRows(t *testing.T) {
	d, mock := newMock(t)
	resolved := true

	mock.ExpectExec(regexp.QuoteMeta("UPDATE alert_history SET resolved = $1 WHERE alert_id = $2")).
		WithArgs(true, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.Error(t, d.UpdateAlertStatus(context.Background(), "missing", models.AlertStatusUpdate{Resolved: &resolved}))
}

func TestUpdateAlertStatus_NothingToSet(t *testing.T) {
	d, _ := newMock(t)
	assert.NoError(t, d.UpdateAlertStatus(context.Background(), "a-1", models.AlertStatusUpdate{}))
}

func TestListAlertHistory(t *testing.T) {
	d, mock := newMock(t)
	created := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	resolvedAt := created.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM alert_history")).
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta("FROM alert_history")).
		WithArgs(2, 0).
		WillReturnRows(mock.NewRows([]string{
			"id", "alert_id", "rule_id", "rule_name", "severity", "message", "source", "event_type",
			"tenant_id", "created_at", "resolved", "resolved_at", "acknowledged_at", "acknowledged_by",
		}).
			AddRow(int64(2), "a-2", "disk-high", "Disk almost full", "notable", "Disk usage at 90.0%", "metrics",
				models.EventDiskHigh, "acme", created, true, &resolvedAt, (*time.Time)(nil), "").
			AddRow(int64(1), "a-1", "cpu-high", "High CPU usage", "urgent", "CPU usage at 99.0%", "metrics",
				models.EventCPUHigh, "default", created, false, (*time.Time)(nil), &created, "oncall"))

	list, total, err := d.ListAlertHistory(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, list, 2)

	assert.Equal(t, models.SeverityNotable, list[0].Severity)
	assert.True(t, list[0].Resolved)
	require.NotNil(t, list[0].ResolvedAt)
	assert.Equal(t, resolvedAt, *list[0].ResolvedAt)
	assert.Nil(t, list[0].AcknowledgedAt)

	assert.Equal(t, models.SourceMetrics, list[1].Source)
	assert.Equal(t, "oncall", list[1].AcknowledgedBy)
	require.NotNil(t, list[1].AcknowledgedAt)
}

func TestEnabledChannels(t *testing.T) {
	d, mock := newMock(t)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM notification_channels")).
		WillReturnRows(mock.NewRows([]string{"id", "name", "type", "configuration", "enabled", "created_at", "updated_at"}).
			AddRow(id, "ops-slack", "slack", []byte(`{"webhook_url":"https://hooks.slack.com/services/x"}`), true, now, now))

	list, err := d.EnabledChannels(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, models.ChannelSlack, list[0].Type)
	assert.Equal(t, "https://hooks.slack.com/services/x", list[0].StringValue("webhook_url"))
}

func TestEnabledChannels_InvalidJSON(t *testing.T) {
	d, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM notification_channels")).
		WillReturnRows(mock.NewRows([]string{"id", "name", "type", "configuration", "enabled", "created_at", "updated_at"}).
			AddRow(uuid.New(), "broken", "webhook", []byte(`{`), true, time.Now(), time.Now()))

	_, err := d.EnabledChannels(context.Background())
	assert.Error(t, err)
}

func TestAlertRules(t *testing.T) {
	d, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM alert_rules")).
		WillReturnRows(mock.NewRows([]string{"id", "name", "severity", "condition_type", "sources", "event_types", "enabled"}).
			AddRow("sec", "Security", "urgent", "EQ", []string{"security"}, []string(nil), true))

	rules, err := d.AlertRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, models.SeverityUrgent, rules[0].Severity)
	assert.Equal(t, []models.Source{models.SourceSecurity}, rules[0].Sources)
	assert.Empty(t, rules[0].EventTypes)
}

func TestRecordSamples(t *testing.T) {
	d, mock := newMock(t)
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO metric_samples")).
		WithArgs([]string{"cpu_percent", "memory_percent"}, []float64{42, 61.5}, []time.Time{at, at}).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	require.NoError(t, d.RecordSamples(context.Background(), []models.MetricSample{
		{MetricName: "cpu_percent", Value: 42, RecordedAt: at},
		{MetricName: "memory_percent", Value: 61.5, RecordedAt: at},
	}))
	require.NoError(t, d.RecordSamples(context.Background(), nil))
}

func TestMetricNamesAndQuerySamples(t *testing.T) {
	d, mock := newMock(t)
	until := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	since := until.Add(-7 * 24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT metric_name FROM metric_samples")).
		WithArgs(since).
		WillReturnRows(mock.NewRows([]string{"metric_name"}).AddRow("cpu_percent").AddRow("load_1m"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM metric_samples")).
		WithArgs("cpu_percent", since, until).
		WillReturnRows(mock.NewRows([]string{"metric_name", "value", "recorded_at"}).
			AddRow("cpu_percent", 10.0, since.Add(time.Hour)).
			AddRow("cpu_percent", 20.0, since.Add(2*time.Hour)))

	names, err := d.MetricNames(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu_percent", "load_1m"}, names)

	samples, err := d.QuerySamples(context.Background(), "cpu_percent", since, until)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 20.0, samples[1].Value)
}

func TestPruneSamples(t *testing.T) {
	d, mock := newMock(t)
	before := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM metric_samples")).
		WithArgs(before).
		WillReturnResult(pgxmock.NewResult("DELETE", 12))

	n, err := d.PruneSamples(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}
