package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fleetwatch/internal/models"
)

// sqlStore implements Store over database/sql. The two drivers share all
// query logic; only DDL and placeholder syntax differ. Queries are written
// with ? placeholders and rebound to $n for postgres.
type sqlStore struct {
	db       *sql.DB
	rebindQ  bool
	initStmt []string
}

func (s *sqlStore) bind(query string) string {
	if !s.rebindQ {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (s *sqlStore) Init(ctx context.Context) error {
	for _, stmt := range s.initStmt {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const insertAlertSQL = `INSERT INTO alerts
	(alert_id, driver_id, source_type, severity, status, timestamp, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

const insertEventSQL = `INSERT INTO alert_events
	(alert_id, event_type, old_status, new_status, timestamp, metadata)
	VALUES (?, ?, ?, ?, ?, ?)`

func (s *sqlStore) CreateAlert(ctx context.Context, alert *models.Alert, events []models.AlertEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.bind(insertAlertSQL),
		alert.AlertID,
		nullString(alert.DriverID),
		alert.SourceType,
		string(alert.Severity),
		string(alert.Status),
		alert.Timestamp.UTC(),
		encodeMeta(alert.Metadata),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert alert: %w", err)
	}
	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, s.bind(insertEventSQL),
			alert.AlertID,
			string(ev.EventType),
			nullStatus(ev.OldStatus),
			string(ev.NewStatus),
			ev.Timestamp.UTC(),
			encodeMeta(ev.Metadata),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert event %s: %w", ev.EventType, err)
		}
	}
	return tx.Commit()
}

func (s *sqlStore) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	const q = `SELECT alert_id, driver_id, source_type, severity, status, timestamp, metadata
		FROM alerts WHERE alert_id = ?`
	row := s.db.QueryRowContext(ctx, s.bind(q), alertID)

	var (
		a        models.Alert
		driverID sql.NullString
		severity string
		status   string
		meta     []byte
	)
	err := row.Scan(&a.AlertID, &driverID, &a.SourceType, &severity, &status, &a.Timestamp, &meta)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.DriverID = driverID.String
	a.Severity = models.Severity(severity)
	a.Status = models.Status(status)
	a.Timestamp = a.Timestamp.UTC()
	a.Metadata = decodeMeta(meta)
	return &a, nil
}

func (s *sqlStore) ListEvents(ctx context.Context, alertID string) ([]models.AlertEvent, error) {
	// Secondary order on id keeps decision order stable when two events
	// of one submission share a timestamp.
	const q = `SELECT event_type, old_status, new_status, timestamp, metadata
		FROM alert_events WHERE alert_id = ? ORDER BY timestamp ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, s.bind(q), alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]models.AlertEvent, 0, 2)
	for rows.Next() {
		var (
			ev        models.AlertEvent
			eventType string
			oldStatus sql.NullString
			newStatus string
			meta      []byte
		)
		if err := rows.Scan(&eventType, &oldStatus, &newStatus, &ev.Timestamp, &meta); err != nil {
			return nil, err
		}
		ev.AlertID = alertID
		ev.EventType = models.EventType(eventType)
		if oldStatus.Valid {
			st := models.Status(oldStatus.String)
			ev.OldStatus = &st
		}
		ev.NewStatus = models.Status(newStatus)
		ev.Timestamp = ev.Timestamp.UTC()
		ev.Metadata = decodeMeta(meta)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *sqlStore) CountRecent(ctx context.Context, driverID string, sourceType string, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM alerts
		WHERE driver_id = ? AND source_type = ? AND timestamp >= ?`
	var count int
	err := s.db.QueryRowContext(ctx, s.bind(q), driverID, sourceType, since.UTC()).Scan(&count)
	return count, err
}

func (s *sqlStore) AutoCloseCandidates(ctx context.Context, sourceType string, cutoff time.Time) ([]AlertRef, error) {
	const q = `SELECT alert_id, status FROM alerts
		WHERE source_type = ? AND status IN (?, ?) AND timestamp <= ?`
	rows, err := s.db.QueryContext(ctx, s.bind(q),
		sourceType, string(models.StatusOpen), string(models.StatusEscalated), cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []AlertRef
	for rows.Next() {
		var ref AlertRef
		var status string
		if err := rows.Scan(&ref.AlertID, &status); err != nil {
			return nil, err
		}
		ref.Status = models.Status(status)
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (s *sqlStore) CloseAlert(ctx context.Context, alertID string, oldStatus models.Status, closedAt time.Time, meta models.Metadata) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	const upd = `UPDATE alerts SET status = ?, timestamp = ?
		WHERE alert_id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, s.bind(upd),
		string(models.StatusAutoClosed), closedAt.UTC(), alertID, string(oldStatus))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("close alert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if affected == 0 {
		_ = tx.Rollback()
		return ErrStaleStatus
	}
	old := string(oldStatus)
	if _, err := tx.ExecContext(ctx, s.bind(insertEventSQL),
		alertID,
		string(models.EventAutoClosed),
		sql.NullString{String: old, Valid: true},
		string(models.StatusAutoClosed),
		closedAt.UTC(),
		encodeMeta(meta),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert close event: %w", err)
	}
	return tx.Commit()
}

func (s *sqlStore) DeleteCandidates(ctx context.Context, cutoff time.Time) ([]string, error) {
	const q = `SELECT alert_id FROM alerts WHERE status = ? AND timestamp <= ?`
	rows, err := s.db.QueryContext(ctx, s.bind(q), string(models.StatusAutoClosed), cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqlStore) DeleteAlert(ctx context.Context, alertID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.bind(`DELETE FROM alert_events WHERE alert_id = ?`), alertID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.bind(`DELETE FROM alerts WHERE alert_id = ?`), alertID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete alert: %w", err)
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStatus(st *models.Status) sql.NullString {
	if st == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*st), Valid: true}
}

func encodeMeta(m models.Metadata) string {
	if len(m) == 0 {
		return "{}"
	}
	data, _ := json.Marshal(m)
	return string(data)
}

func decodeMeta(data []byte) models.Metadata {
	if len(data) == 0 {
		return nil
	}
	var m models.Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
