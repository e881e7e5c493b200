package rules

import (
	"context"
	"time"

	"fleetwatch/internal/config"
	"fleetwatch/internal/models"
)

// Counter answers windowed escalation queries. The store implements it;
// tests substitute a fake.
type Counter interface {
	CountRecent(ctx context.Context, driverID string, sourceType string, since time.Time) (int, error)
}

// Evaluator decides an alert's initial status. Implementations mutate the
// draft alert in place (status, severity) and return the lifecycle events
// in decision order, always starting with CREATED.
type Evaluator interface {
	Evaluate(ctx context.Context, alert *models.Alert, rule config.SourceRule) ([]models.AlertEvent, error)
}

// ForSource selects the evaluator for a source type. Dispatch is a closed
// switch over the known sources; everything else lands on the default
// evaluator, which never escalates.
func ForSource(sourceType models.SourceType, counter Counter) Evaluator {
	switch sourceType {
	case models.SourceOverspeed:
		return &countingEvaluator{
			source:   models.SourceOverspeed,
			severity: models.SeverityCritical,
			counter:  counter,
		}
	case models.SourceFeedbackNegative:
		return &countingEvaluator{
			source:   models.SourceFeedbackNegative,
			severity: models.SeverityHigh,
			counter:  counter,
		}
	case models.SourceCompliance:
		return &complianceEvaluator{}
	case models.SourceUnknown:
		return defaultEvaluator{}
	default:
		return defaultEvaluator{}
	}
}

// defaultEvaluator opens the alert and does nothing else.
type defaultEvaluator struct{}

func (defaultEvaluator) Evaluate(_ context.Context, alert *models.Alert, _ config.SourceRule) ([]models.AlertEvent, error) {
	alert.Status = models.StatusOpen
	return []models.AlertEvent{createdEvent(alert)}, nil
}

func createdEvent(alert *models.Alert) models.AlertEvent {
	return models.AlertEvent{
		AlertID:   alert.AlertID,
		EventType: models.EventCreated,
		OldStatus: nil,
		NewStatus: models.StatusOpen,
		Timestamp: alert.Timestamp,
	}
}

func transitionEvent(alert *models.Alert, eventType models.EventType, from, to models.Status, meta models.Metadata) models.AlertEvent {
	old := from
	return models.AlertEvent{
		AlertID:   alert.AlertID,
		EventType: eventType,
		OldStatus: &old,
		NewStatus: to,
		Timestamp: alert.Timestamp,
		Metadata:  meta,
	}
}
