package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleetwatch/internal/config"
	"fleetwatch/internal/models"
)

// fakeCounter returns a canned count and records the window it was asked about.
type fakeCounter struct {
	count     int
	err       error
	gotDriver string
	gotSource string
	gotSince  time.Time
	calls     int
}

func (f *fakeCounter) CountRecent(_ context.Context, driverID, sourceType string, since time.Time) (int, error) {
	f.calls++
	f.gotDriver = driverID
	f.gotSource = sourceType
	f.gotSince = since
	return f.count, f.err
}

func newAlert(source, driver string) *models.Alert {
	return &models.Alert{
		AlertID:    "a1",
		DriverID:   driver,
		SourceType: source,
		Severity:   models.SeverityInfo,
		Timestamp:  time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func TestUnknownSourceOpensWithoutCounting(t *testing.T) {
	counter := &fakeCounter{count: 99}
	ev := ForSource(models.ParseSourceType("geofence_breach"), counter)

	alert := newAlert("geofence_breach", "drv-1")
	events, err := ev.Evaluate(context.Background(), alert, config.SourceRule{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if alert.Status != models.StatusOpen {
		t.Errorf("status = %q, want OPEN", alert.Status)
	}
	if len(events) != 1 || events[0].EventType != models.EventCreated {
		t.Fatalf("events = %+v, want single CREATED", events)
	}
	if events[0].OldStatus != nil {
		t.Error("CREATED event must carry nil old status")
	}
	if counter.calls != 0 {
		t.Error("default evaluator must not touch the counter")
	}
}

func TestCountingEscalatesAtThreshold(t *testing.T) {
	// Two prior alerts plus this one reaches the threshold of three.
	counter := &fakeCounter{count: 2}
	ev := ForSource(models.SourceOverspeed, counter)

	alert := newAlert("overspeed", "drv-1")
	rule := config.SourceRule{WindowMins: 10, EscalateIfCount: 3}
	events, err := ev.Evaluate(context.Background(), alert, rule)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if alert.Status != models.StatusEscalated {
		t.Errorf("status = %q, want ESCALATED", alert.Status)
	}
	if alert.Severity != models.SeverityCritical {
		t.Errorf("severity = %q, want critical", alert.Severity)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].EventType != models.EventCreated || events[1].EventType != models.EventEscalated {
		t.Errorf("event order = %s, %s", events[0].EventType, events[1].EventType)
	}
	if events[1].OldStatus == nil || *events[1].OldStatus != models.StatusOpen {
		t.Error("ESCALATED event must transition from OPEN")
	}
	if got := events[1].Metadata["total"]; got != 3 {
		t.Errorf("total = %v, want 3", got)
	}

	wantSince := alert.Timestamp.Add(-10 * time.Minute)
	if !counter.gotSince.Equal(wantSince) {
		t.Errorf("window cutoff = %v, want %v", counter.gotSince, wantSince)
	}
	if counter.gotDriver != "drv-1" || counter.gotSource != "overspeed" {
		t.Errorf("counted (%s, %s)", counter.gotDriver, counter.gotSource)
	}
}

func TestCountingBelowThresholdStaysOpen(t *testing.T) {
	counter := &fakeCounter{count: 1}
	ev := ForSource(models.SourceOverspeed, counter)

	alert := newAlert("overspeed", "drv-1")
	rule := config.SourceRule{WindowMins: 10, EscalateIfCount: 3}
	events, err := ev.Evaluate(context.Background(), alert, rule)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if alert.Status != models.StatusOpen {
		t.Errorf("status = %q, want OPEN", alert.Status)
	}
	if alert.Severity != models.SeverityInfo {
		t.Errorf("severity = %q, want info untouched", alert.Severity)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
}

func TestFeedbackNegativeEscalatesHigh(t *testing.T) {
	counter := &fakeCounter{count: 4}
	ev := ForSource(models.SourceFeedbackNegative, counter)

	alert := newAlert("feedback_negative", "drv-1")
	rule := config.SourceRule{WindowMins: 30, EscalateIfCount: 3}
	_, err := ev.Evaluate(context.Background(), alert, rule)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if alert.Severity != models.SeverityHigh {
		t.Errorf("severity = %q, want high", alert.Severity)
	}
}

func TestCountingSkipsWithoutDriver(t *testing.T) {
	counter := &fakeCounter{count: 99}
	ev := ForSource(models.SourceOverspeed, counter)

	alert := newAlert("overspeed", "")
	rule := config.SourceRule{WindowMins: 10, EscalateIfCount: 3}
	events, err := ev.Evaluate(context.Background(), alert, rule)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if alert.Status != models.StatusOpen {
		t.Errorf("status = %q, want OPEN", alert.Status)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if counter.calls != 0 {
		t.Error("driverless alert must not be counted")
	}
}

func TestCountingSkipsWithoutRule(t *testing.T) {
	counter := &fakeCounter{count: 99}
	ev := ForSource(models.SourceOverspeed, counter)

	alert := newAlert("overspeed", "drv-1")
	events, err := ev.Evaluate(context.Background(), alert, config.SourceRule{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if alert.Status != models.StatusOpen || len(events) != 1 {
		t.Errorf("status=%q events=%d, want OPEN with 1 event", alert.Status, len(events))
	}
	if counter.calls != 0 {
		t.Error("unconfigured rule must not be counted")
	}
}

func TestCountingPropagatesCounterError(t *testing.T) {
	counter := &fakeCounter{err: errors.New("db down")}
	ev := ForSource(models.SourceOverspeed, counter)

	alert := newAlert("overspeed", "drv-1")
	rule := config.SourceRule{WindowMins: 10, EscalateIfCount: 3}
	if _, err := ev.Evaluate(context.Background(), alert, rule); err == nil {
		t.Fatal("expected error from failing counter")
	}
}

func TestComplianceAutoClosesValidDocument(t *testing.T) {
	ev := ForSource(models.SourceCompliance, nil)
	rule := config.SourceRule{AutoCloseIf: AutoCloseDocumentValid}

	tests := []struct {
		name string
		meta models.Metadata
	}{
		{"status valid", models.Metadata{"status": "valid"}},
		{"document_valid true", models.Metadata{"document_valid": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := newAlert("compliance", "drv-1")
			alert.Metadata = tt.meta

			events, err := ev.Evaluate(context.Background(), alert, rule)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if alert.Status != models.StatusAutoClosed {
				t.Errorf("status = %q, want AUTO_CLOSED", alert.Status)
			}
			if len(events) != 2 {
				t.Fatalf("got %d events, want 2", len(events))
			}
			if events[0].EventType != models.EventCreated || events[1].EventType != models.EventAutoClosed {
				t.Errorf("event order = %s, %s", events[0].EventType, events[1].EventType)
			}
			if got := events[1].Metadata["reason"]; got != AutoCloseDocumentValid {
				t.Errorf("reason = %v, want %s", got, AutoCloseDocumentValid)
			}
		})
	}
}

func TestComplianceStaysOpen(t *testing.T) {
	ev := ForSource(models.SourceCompliance, nil)
	rule := config.SourceRule{AutoCloseIf: AutoCloseDocumentValid}

	tests := []struct {
		name string
		meta models.Metadata
	}{
		{"no metadata", nil},
		{"invalid status", models.Metadata{"status": "expired"}},
		{"document_valid false", models.Metadata{"document_valid": false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := newAlert("compliance", "drv-1")
			alert.Metadata = tt.meta

			events, err := ev.Evaluate(context.Background(), alert, rule)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if alert.Status != models.StatusOpen {
				t.Errorf("status = %q, want OPEN", alert.Status)
			}
			if len(events) != 1 {
				t.Fatalf("got %d events, want 1", len(events))
			}
		})
	}
}

func TestComplianceIgnoresValidDocWithoutCondition(t *testing.T) {
	// Valid metadata does nothing when auto_close_if is not configured.
	ev := ForSource(models.SourceCompliance, nil)
	alert := newAlert("compliance", "drv-1")
	alert.Metadata = models.Metadata{"status": "valid"}

	events, err := ev.Evaluate(context.Background(), alert, config.SourceRule{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if alert.Status != models.StatusOpen || len(events) != 1 {
		t.Errorf("status=%q events=%d, want OPEN with 1 event", alert.Status, len(events))
	}
}
