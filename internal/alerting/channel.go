package alerting

import (
	"context"

	"fleetwatch/internal/models"
)

// Channel delivers one alert to one external surface. Send reports whether
// delivery succeeded; implementations log their own failures and never panic
// on transport errors.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert models.ActiveAlert, event models.Event) bool
}

// HistoryStore persists alert history rows.
type HistoryStore interface {
	InsertAlert(ctx context.Context, rec models.AlertRecord) (int64, error)
	UpdateAlertStatus(ctx context.Context, alertID string, upd models.AlertStatusUpdate) error
}
