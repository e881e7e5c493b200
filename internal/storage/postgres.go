package storage

import (
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS alerts (
		alert_id TEXT PRIMARY KEY,
		driver_id TEXT,
		source_type TEXT NOT NULL,
		severity TEXT,
		status TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_driver_source_ts ON alerts(driver_id, source_type, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_status_ts ON alerts(status, timestamp)`,
	`CREATE TABLE IF NOT EXISTS alert_events (
		id BIGSERIAL PRIMARY KEY,
		alert_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		old_status TEXT,
		new_status TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alert_events_alert ON alert_events(alert_id, timestamp)`,
}

// NewPostgres opens the primary alert store through the pgx stdlib driver.
func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/fleetwatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &sqlStore{db: db, rebindQ: true, initStmt: postgresSchema}, nil
}
