package rules

import (
	"context"

	"fleetwatch/internal/config"
	"fleetwatch/internal/models"
)

// AutoCloseDocumentValid is the only auto_close_if condition currently
// understood: the alert's document was already found valid upstream.
const AutoCloseDocumentValid = "document_valid"

// complianceEvaluator opens the alert and, when configuration asks for it
// and the metadata proves the document valid, closes it terminally before
// it is ever persisted as open.
type complianceEvaluator struct{}

func (complianceEvaluator) Evaluate(_ context.Context, alert *models.Alert, rule config.SourceRule) ([]models.AlertEvent, error) {
	alert.Status = models.StatusOpen
	events := []models.AlertEvent{createdEvent(alert)}

	if rule.AutoCloseIf == AutoCloseDocumentValid && documentValid(alert.Metadata) {
		alert.Status = models.StatusAutoClosed
		events = append(events, transitionEvent(alert, models.EventAutoClosed,
			models.StatusOpen, models.StatusAutoClosed,
			models.Metadata{"reason": AutoCloseDocumentValid}))
	}
	return events, nil
}

// documentValid accepts either shape producers send.
func documentValid(meta models.Metadata) bool {
	if meta == nil {
		return false
	}
	if s, ok := meta["status"].(string); ok && s == "valid" {
		return true
	}
	if b, ok := meta["document_valid"].(bool); ok && b {
		return true
	}
	return false
}
