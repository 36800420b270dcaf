package db

import (
	"context"
	"encoding/json"
	"fmt"

	"fleetwatch/internal/models"
)

// EnabledChannels returns every enabled notification_channels row.
func (d *DB) EnabledChannels(ctx context.Context) ([]models.ChannelConfig, error) {
	query := `
	SELECT id, name, type, configuration, enabled, created_at, updated_at
	FROM notification_channels
	WHERE enabled = true
	ORDER BY created_at`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get channels: %w", err)
	}
	defer rows.Close()

	var list []models.ChannelConfig
	for rows.Next() {
		var (
			ch  models.ChannelConfig
			raw []byte
		)
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Type, &raw, &ch.Enabled, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &ch.Configuration); err != nil {
				return nil, fmt.Errorf("invalid configuration for channel %s: %w", ch.ID, err)
			}
		}
		list = append(list, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read channels: %w", err)
	}
	return list, nil
}
