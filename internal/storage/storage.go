package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"fleetwatch/internal/config"
	"fleetwatch/internal/models"
)

// Store errors
var (
	ErrNotFound = errors.New("alert not found")

	// ErrStaleStatus is returned when a guarded status transition finds
	// the row already moved on, e.g. a concurrent worker closed it first.
	ErrStaleStatus = errors.New("alert status changed concurrently")
)

// AlertRef is a candidate row selected by a retention scan.
type AlertRef struct {
	AlertID string
	Status  models.Status
}

// Store is the transactional contract over the alerts and alert_events
// tables. Every mutation is a full transaction scoped to one alert.
type Store interface {
	Init(ctx context.Context) error
	Close() error

	// CreateAlert inserts the alert row and its event batch atomically,
	// events in decision order. Nothing is visible on failure.
	CreateAlert(ctx context.Context, alert *models.Alert, events []models.AlertEvent) error

	GetAlert(ctx context.Context, alertID string) (*models.Alert, error)

	// ListEvents returns the alert's history ordered by time ascending.
	ListEvents(ctx context.Context, alertID string) ([]models.AlertEvent, error)

	// CountRecent counts persisted alerts for a driver and source created
	// at or after the cutoff. The caller supplies the cutoff from the same
	// clock that writes alert timestamps.
	CountRecent(ctx context.Context, driverID string, sourceType string, since time.Time) (int, error)

	// AutoCloseCandidates selects non-terminal alerts of a source older
	// than the cutoff.
	AutoCloseCandidates(ctx context.Context, sourceType string, cutoff time.Time) ([]AlertRef, error)

	// CloseAlert transitions one alert to AUTO_CLOSED and appends the
	// matching event in a single transaction. The update is guarded on
	// oldStatus; ErrStaleStatus is returned if the row moved on.
	CloseAlert(ctx context.Context, alertID string, oldStatus models.Status, closedAt time.Time, meta models.Metadata) error

	// DeleteCandidates selects AUTO_CLOSED alerts older than the cutoff.
	DeleteCandidates(ctx context.Context, cutoff time.Time) ([]string, error)

	// DeleteAlert removes the alert's events and then the alert row in a
	// single transaction.
	DeleteAlert(ctx context.Context, alertID string) error
}

// New selects a storage driver from config.
func New(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	case "sqlite":
		return NewSQLite(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}
