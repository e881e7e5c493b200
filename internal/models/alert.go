package models

import (
	"errors"
	"time"
)

// SourceType identifies the upstream producer that raised an alert.
type SourceType string

const (
	SourceOverspeed        SourceType = "overspeed"
	SourceFeedbackNegative SourceType = "feedback_negative"
	SourceCompliance       SourceType = "compliance"

	// SourceUnknown covers every source type the rule engine has no
	// dedicated evaluator for. Unknown sources are accepted, not rejected.
	SourceUnknown SourceType = ""
)

// ParseSourceType maps a raw source string onto the closed set of known
// sources. Anything unrecognized collapses to SourceUnknown so dispatch
// is exhaustive rather than a missing-key lookup.
func ParseSourceType(raw string) SourceType {
	switch SourceType(raw) {
	case SourceOverspeed, SourceFeedbackNegative, SourceCompliance:
		return SourceType(raw)
	default:
		return SourceUnknown
	}
}

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusEscalated  Status = "ESCALATED"
	StatusAutoClosed Status = "AUTO_CLOSED"
)

// EventType labels one transition in an alert's history.
type EventType string

const (
	EventCreated    EventType = "CREATED"
	EventEscalated  EventType = "ESCALATED"
	EventAutoClosed EventType = "AUTO_CLOSED"
)

// Severity levels, ordered by urgency.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Metadata is the open, source-defined payload attached to alerts and events.
type Metadata map[string]any

// Alert represents one raised safety/compliance condition.
type Alert struct {
	// Opaque unique identifier, assigned at creation, immutable.
	AlertID string `json:"alertId"`

	// Optional subject reference. Alerts without a driver skip
	// windowed escalation entirely.
	DriverID string `json:"driverId,omitempty"`

	SourceType string `json:"sourceType"`

	Severity Severity `json:"severity"`

	Status Status `json:"status"`

	// Authoritative instant of the alert's current state, always UTC.
	Timestamp time.Time `json:"timestamp"`

	Metadata Metadata `json:"metadata,omitempty"`
}

// AlertEvent is one append-only history record. OldStatus is nil for the
// initial CREATED event.
type AlertEvent struct {
	AlertID   string    `json:"alertId"`
	EventType EventType `json:"eventType"`
	OldStatus *Status   `json:"oldStatus"`
	NewStatus Status    `json:"newStatus"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  Metadata  `json:"metadata,omitempty"`
}

// Draft is an inbound, not-yet-persisted alert submission.
type Draft struct {
	SourceType string   `json:"sourceType"`
	DriverID   string   `json:"driverId,omitempty"`
	Severity   Severity `json:"severity,omitempty"`
	Metadata   Metadata `json:"metadata,omitempty"`
}

// Validation errors
var (
	ErrMissingSourceType = errors.New("sourceType is required")
)

// Validate checks required-field presence on a draft. Only sourceType is
// mandatory; every other field is optional by contract.
func (d *Draft) Validate() error {
	if d.SourceType == "" {
		return ErrMissingSourceType
	}
	return nil
}
