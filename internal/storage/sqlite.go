package storage

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS alerts (
		alert_id TEXT PRIMARY KEY,
		driver_id TEXT,
		source_type TEXT NOT NULL,
		severity TEXT,
		status TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_driver_source_ts ON alerts(driver_id, source_type, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_status_ts ON alerts(status, timestamp)`,
	`CREATE TABLE IF NOT EXISTS alert_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		alert_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		old_status TEXT,
		new_status TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alert_events_alert ON alert_events(alert_id, timestamp)`,
}

// NewSQLite opens a local alert store, used for development and tests.
func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:fleetwatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// The write path takes one connection at a time; sqlite has no row
	// locking, so serialize access at the pool level.
	db.SetMaxOpenConns(1)
	return &sqlStore{db: db, rebindQ: false, initStmt: sqliteSchema}, nil
}
