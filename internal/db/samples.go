package db

import (
	"context"
	"fmt"
	"time"

	"fleetwatch/internal/models"
)

// RecordSamples inserts samples in one statement.
func (d *DB) RecordSamples(ctx context.Context, samples []models.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}
	names := make([]string, len(samples))
	values := make([]float64, len(samples))
	times := make([]time.Time, len(samples))
	for i, s := range samples {
		names[i], values[i], times[i] = s.MetricName, s.Value, s.RecordedAt
	}

	query := `
	INSERT INTO metric_samples (metric_name, value, recorded_at)
	SELECT * FROM unnest($1::text[], $2::float8[], $3::timestamptz[])`
	if _, err := d.Pool.Exec(ctx, query, names, values, times); err != nil {
		return fmt.Errorf("failed to insert %d samples: %w", len(samples), err)
	}
	return nil
}

// MetricNames lists the metrics with at least one sample since since.
func (d *DB) MetricNames(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := d.Pool.Query(ctx, `SELECT DISTINCT metric_name FROM metric_samples WHERE recorded_at >= $1 ORDER BY metric_name`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan metric name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metric names: %w", err)
	}
	return names, nil
}

// QuerySamples returns the samples of metric in [since, until], oldest first.
func (d *DB) QuerySamples(ctx context.Context, metric string, since, until time.Time) ([]models.MetricSample, error) {
	query := `
	SELECT metric_name, value, recorded_at
	FROM metric_samples
	WHERE metric_name = $1 AND recorded_at >= $2 AND recorded_at <= $3
	ORDER BY recorded_at`

	rows, err := d.Pool.Query(ctx, query, metric, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples for %s: %w", metric, err)
	}
	defer rows.Close()

	var samples []models.MetricSample
	for rows.Next() {
		var s models.MetricSample
		if err := rows.Scan(&s.MetricName, &s.Value, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read samples for %s: %w", metric, err)
	}
	return samples, nil
}

// PruneSamples deletes samples recorded before before.
func (d *DB) PruneSamples(ctx context.Context, before time.Time) (int64, error) {
	result, err := d.Pool.Exec(ctx, `DELETE FROM metric_samples WHERE recorded_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune samples: %w", err)
	}
	return result.RowsAffected(), nil
}
