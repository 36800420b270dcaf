package db

import (
	"context"
	"fmt"

	"fleetwatch/internal/models"
)

// AlertRules returns every alert_rules row.
func (d *DB) AlertRules(ctx context.Context) ([]models.AlertRule, error) {
	query := `
	SELECT id, name, severity, condition_type, sources, event_types, enabled
	FROM alert_rules
	ORDER BY id`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert rules: %w", err)
	}
	defer rows.Close()

	var list []models.AlertRule
	for rows.Next() {
		var (
			r        models.AlertRule
			severity string
			sources  []string
		)
		if err := rows.Scan(&r.ID, &r.Name, &severity, &r.ConditionType, &sources, &r.EventTypes, &r.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}
		r.Severity = models.Severity(severity)
		for _, s := range sources {
			r.Sources = append(r.Sources, models.Source(s))
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read alert rules: %w", err)
	}
	return list, nil
}
