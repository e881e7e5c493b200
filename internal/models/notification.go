package models

// NotificationType for lifecycle change notifications. The bus currently
// carries a single type; downstream consumers switch on it regardless.
const NotificationAlertUpdated = "ALERT_UPDATED"

// Notification is the payload published to the event bus after a lifecycle
// change has been durably committed.
type Notification struct {
	Type   string       `json:"type"`
	Alert  *Alert       `json:"alert"`
	Events []AlertEvent `json:"events"`
}

// NewNotification wraps a committed alert and its event batch for publication.
func NewNotification(alert *Alert, events []AlertEvent) *Notification {
	return &Notification{
		Type:   NotificationAlertUpdated,
		Alert:  alert,
		Events: events,
	}
}
