package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fleetwatch/internal/models"
)

// InsertAlert stores a new alert_history row and returns its generated id.
func (d *DB) InsertAlert(ctx context.Context, rec models.AlertRecord) (int64, error) {
	query := `
	INSERT INTO alert_history (
		alert_id, rule_id, rule_name, severity, message, source, event_type, tenant_id, created_at, resolved
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING id`

	var id int64
	err := d.Pool.QueryRow(ctx, query,
		rec.AlertID,
		rec.RuleID,
		rec.RuleName,
		string(rec.Severity),
		rec.Message,
		string(rec.Source),
		rec.EventType,
		rec.TenantID,
		rec.CreatedAt,
		rec.Resolved,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert alert: %w", err)
	}
	return id, nil
}

// UpdateAlertStatus sets the non-nil fields of upd on the row for alertID.
// Escalations use it to record the raised severity and latest message.
func (d *DB) UpdateAlertStatus(ctx context.Context, alertID string, upd models.AlertStatusUpdate) error {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Severity != nil {
		add("severity", string(*upd.Severity))
	}
	if upd.Message != nil {
		add("message", *upd.Message)
	}
	if upd.Resolved != nil {
		add("resolved", *upd.Resolved)
	}
	if upd.ResolvedAt != nil {
		add("resolved_at", *upd.ResolvedAt)
	}
	if upd.AcknowledgedAt != nil {
		add("acknowledged_at", *upd.AcknowledgedAt)
	}
	if upd.AcknowledgedBy != nil {
		add("acknowledged_by", *upd.AcknowledgedBy)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, alertID)
	query := fmt.Sprintf("UPDATE alert_history SET %s WHERE alert_id = $%d", strings.Join(sets, ", "), len(args))
	result, err := d.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update alert %s: %w", alertID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("no alert updated for alert_id %s", alertID)
	}
	return nil
}

// ListAlertHistory returns one page of history, newest first, and the total
// row count.
func (d *DB) ListAlertHistory(ctx context.Context, limit, offset int) ([]models.AlertRecord, int, error) {
	var total int
	if err := d.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM alert_history`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	query := `
	SELECT
		id, alert_id, rule_id, rule_name, severity, message, source, event_type, tenant_id,
		created_at, resolved, resolved_at, acknowledged_at, COALESCE(acknowledged_by, '')
	FROM alert_history
	ORDER BY created_at DESC
	LIMIT $1 OFFSET $2`

	rows, err := d.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get alerts: %w", err)
	}
	defer rows.Close()

	var list []models.AlertRecord
	for rows.Next() {
		var (
			rec              models.AlertRecord
			severity, source string
			resolvedAt       *time.Time
			acknowledgedAt   *time.Time
		)
		err := rows.Scan(
			&rec.ID,
			&rec.AlertID,
			&rec.RuleID,
			&rec.RuleName,
			&severity,
			&rec.Message,
			&source,
			&rec.EventType,
			&rec.TenantID,
			&rec.CreatedAt,
			&rec.Resolved,
			&resolvedAt,
			&acknowledgedAt,
			&rec.AcknowledgedBy,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert: %w", err)
		}
		rec.Severity = models.Severity(severity)
		rec.Source = models.Source(source)
		rec.ResolvedAt = resolvedAt
		rec.AcknowledgedAt = acknowledgedAt
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read alerts: %w", err)
	}
	return list, total, nil
}
