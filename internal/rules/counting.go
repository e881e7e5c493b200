package rules

import (
	"context"
	"fmt"

	"fleetwatch/internal/config"
	"fleetwatch/internal/models"
)

// countingEvaluator escalates when a driver accumulates too many alerts of
// one source inside a trailing window. overspeed escalates to critical,
// feedback_negative to high.
type countingEvaluator struct {
	source   models.SourceType
	severity models.Severity
	counter  Counter
}

func (e *countingEvaluator) Evaluate(ctx context.Context, alert *models.Alert, rule config.SourceRule) ([]models.AlertEvent, error) {
	alert.Status = models.StatusOpen
	events := []models.AlertEvent{createdEvent(alert)}

	// No subject, no counting. An unconfigured rule set behaves the same.
	if alert.DriverID == "" || !rule.Escalates() {
		return events, nil
	}

	// The current alert is not persisted yet, so the query counts strictly
	// prior alerts and the +1 stands in for this one. The cutoff comes
	// from the alert's own creation instant: one clock for reads and
	// writes, or the window silently shifts.
	since := alert.Timestamp.Add(-rule.Window())
	count, err := e.counter.CountRecent(ctx, alert.DriverID, string(e.source), since)
	if err != nil {
		return nil, fmt.Errorf("count recent %s alerts: %w", e.source, err)
	}
	total := count + 1

	if total >= rule.EscalateIfCount {
		alert.Severity = e.severity
		alert.Status = models.StatusEscalated
		events = append(events, transitionEvent(alert, models.EventEscalated,
			models.StatusOpen, models.StatusEscalated,
			models.Metadata{"total": total}))
	}
	return events, nil
}
