package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fleetwatch/internal/config"
	"fleetwatch/internal/logger"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/models"
	"fleetwatch/internal/rules"
	"fleetwatch/internal/storage"
)

// Publisher is the outbound notification bus contract. Fire-and-forget
// from the engine's perspective once the transaction has committed.
type Publisher interface {
	Publish(ctx context.Context, n *models.Notification) error
}

// Receipt is returned to the submitter after a successful submission.
type Receipt struct {
	AlertID string        `json:"alertId"`
	Status  models.Status `json:"status"`
}

// Engine turns inbound drafts into durably persisted alerts with a correctly
// ordered event history, then notifies downstream consumers.
type Engine struct {
	store     storage.Store
	publisher Publisher
	cfg       *config.Config

	// now is the single clock for alert timestamps and window cutoffs.
	now func() time.Time
}

func New(store storage.Store, publisher Publisher, cfg *config.Config) *Engine {
	return &Engine{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit evaluates and persists one alert draft. The alert row and every
// lifecycle event commit in a single transaction; the notification is
// published only after commit, and a publish failure never unwinds a
// committed submission.
func (e *Engine) Submit(ctx context.Context, draft *models.Draft) (Receipt, error) {
	log := logger.WithComponent("engine")

	draft.Normalize()
	if err := draft.Validate(); err != nil {
		metrics.SubmissionErrors.WithLabelValues("validation").Inc()
		return Receipt{}, err
	}

	alert := &models.Alert{
		AlertID:    uuid.New().String(),
		DriverID:   draft.DriverID,
		SourceType: draft.SourceType,
		Severity:   draft.Severity,
		Timestamp:  e.now(),
		Metadata:   draft.Metadata,
	}

	source := models.ParseSourceType(draft.SourceType)
	evaluator := rules.ForSource(source, e.store)
	events, err := evaluator.Evaluate(ctx, alert, e.cfg.RuleFor(draft.SourceType))
	if err != nil {
		metrics.SubmissionErrors.WithLabelValues("storage").Inc()
		return Receipt{}, fmt.Errorf("evaluate alert: %w", err)
	}

	if err := e.store.CreateAlert(ctx, alert, events); err != nil {
		metrics.SubmissionErrors.WithLabelValues("storage").Inc()
		return Receipt{}, fmt.Errorf("store alert: %w", err)
	}

	metrics.AlertsTotal.WithLabelValues(
		string(alert.Status), alert.SourceType, string(alert.Severity)).Inc()
	if alert.Status == models.StatusEscalated {
		metrics.EscalationsTotal.WithLabelValues(alert.SourceType).Inc()
	}

	log.Info().
		Str("alert_id", alert.AlertID).
		Str("source_type", alert.SourceType).
		Str("status", string(alert.Status)).
		Str("severity", string(alert.Severity)).
		Int("events", len(events)).
		Msg("alert persisted")

	if err := e.publisher.Publish(ctx, models.NewNotification(alert, events)); err != nil {
		// Best-effort notification: the alert is already durable.
		log.Error().Err(err).
			Str("alert_id", alert.AlertID).
			Msg("notification publish failed after commit")
	}

	return Receipt{AlertID: alert.AlertID, Status: alert.Status}, nil
}

// Get returns an alert and its full history ordered by time ascending.
// Returns storage.ErrNotFound for unknown IDs.
func (e *Engine) Get(ctx context.Context, alertID string) (*models.Alert, []models.AlertEvent, error) {
	alert, err := e.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, nil, err
	}
	events, err := e.store.ListEvents(ctx, alertID)
	if err != nil {
		return nil, nil, fmt.Errorf("list events: %w", err)
	}
	return alert, events, nil
}
