package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleetwatch/internal/config"
	"fleetwatch/internal/models"
	"fleetwatch/internal/storage"
)

type closeCall struct {
	alertID   string
	oldStatus models.Status
	meta      models.Metadata
}

// fakeStore implements storage.Store for worker tests, with scripted
// candidate lists and per-alert failure injection.
type fakeStore struct {
	closeCandidates  map[string][]storage.AlertRef
	closeCandErr     error
	closeErrByID     map[string]error
	closeCalls       []closeCall
	deleteCandidates []string
	deleteCandErr    error
	deleteErrByID    map[string]error
	deleted          []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		closeCandidates: make(map[string][]storage.AlertRef),
		closeErrByID:    make(map[string]error),
		deleteErrByID:   make(map[string]error),
	}
}

func (f *fakeStore) Init(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

func (f *fakeStore) CreateAlert(context.Context, *models.Alert, []models.AlertEvent) error {
	return nil
}

func (f *fakeStore) GetAlert(context.Context, string) (*models.Alert, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeStore) ListEvents(context.Context, string) ([]models.AlertEvent, error) {
	return nil, nil
}

func (f *fakeStore) CountRecent(context.Context, string, string, time.Time) (int, error) {
	return 0, nil
}

func (f *fakeStore) AutoCloseCandidates(_ context.Context, sourceType string, _ time.Time) ([]storage.AlertRef, error) {
	if f.closeCandErr != nil {
		return nil, f.closeCandErr
	}
	return f.closeCandidates[sourceType], nil
}

func (f *fakeStore) CloseAlert(_ context.Context, alertID string, oldStatus models.Status, _ time.Time, meta models.Metadata) error {
	if err := f.closeErrByID[alertID]; err != nil {
		return err
	}
	f.closeCalls = append(f.closeCalls, closeCall{alertID, oldStatus, meta})
	return nil
}

func (f *fakeStore) DeleteCandidates(context.Context, time.Time) ([]string, error) {
	if f.deleteCandErr != nil {
		return nil, f.deleteCandErr
	}
	return f.deleteCandidates, nil
}

func (f *fakeStore) DeleteAlert(_ context.Context, alertID string) error {
	if err := f.deleteErrByID[alertID]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, alertID)
	return nil
}

func testRules() map[string]config.SourceRule {
	return map[string]config.SourceRule{
		"overspeed":  {WindowMins: 10, EscalateIfCount: 3, AutoCloseAfterMins: 30},
		"compliance": {AutoCloseIf: "document_valid"},
	}
}

func TestAutoCloseClosesCandidates(t *testing.T) {
	store := newFakeStore()
	store.closeCandidates["overspeed"] = []storage.AlertRef{
		{AlertID: "a1", Status: models.StatusOpen},
		{AlertID: "a2", Status: models.StatusEscalated},
	}

	w := NewAutoCloseWorker(store, testRules())
	w.Tick(context.Background())

	if len(store.closeCalls) != 2 {
		t.Fatalf("closed %d alerts, want 2", len(store.closeCalls))
	}
	first := store.closeCalls[0]
	if first.alertID != "a1" || first.oldStatus != models.StatusOpen {
		t.Errorf("first close = %+v", first)
	}
	if first.meta["reason"] != "timeout" || first.meta["src"] != "overspeed" {
		t.Errorf("close metadata = %v", first.meta)
	}
	if store.closeCalls[1].oldStatus != models.StatusEscalated {
		t.Errorf("second close old status = %q", store.closeCalls[1].oldStatus)
	}
}

func TestAutoCloseSkipsSourcesWithoutTimeout(t *testing.T) {
	store := newFakeStore()
	store.closeCandidates["compliance"] = []storage.AlertRef{
		{AlertID: "c1", Status: models.StatusOpen},
	}

	// compliance has no auto_close_after_mins in testRules.
	w := NewAutoCloseWorker(store, testRules())
	w.Tick(context.Background())

	if len(store.closeCalls) != 0 {
		t.Errorf("closed %d alerts, want 0", len(store.closeCalls))
	}
}

func TestAutoCloseIsolatesPerAlertFailure(t *testing.T) {
	store := newFakeStore()
	store.closeCandidates["overspeed"] = []storage.AlertRef{
		{AlertID: "a1", Status: models.StatusOpen},
		{AlertID: "a2", Status: models.StatusOpen},
		{AlertID: "a3", Status: models.StatusOpen},
	}
	store.closeErrByID["a2"] = errors.New("deadlock")

	w := NewAutoCloseWorker(store, testRules())
	w.Tick(context.Background())

	if len(store.closeCalls) != 2 {
		t.Fatalf("closed %d alerts, want 2 despite one failure", len(store.closeCalls))
	}
	for _, c := range store.closeCalls {
		if c.alertID == "a2" {
			t.Error("failing alert should not be recorded as closed")
		}
	}
}

func TestAutoCloseToleratesStaleStatus(t *testing.T) {
	store := newFakeStore()
	store.closeCandidates["overspeed"] = []storage.AlertRef{
		{AlertID: "a1", Status: models.StatusOpen},
		{AlertID: "a2", Status: models.StatusOpen},
	}
	store.closeErrByID["a1"] = storage.ErrStaleStatus

	w := NewAutoCloseWorker(store, testRules())
	w.Tick(context.Background())

	if len(store.closeCalls) != 1 || store.closeCalls[0].alertID != "a2" {
		t.Errorf("closeCalls = %+v, want only a2", store.closeCalls)
	}
}

func TestAutoCloseAbortsTickOnScanFailure(t *testing.T) {
	store := newFakeStore()
	store.closeCandErr = errors.New("connection refused")

	w := NewAutoCloseWorker(store, testRules())
	w.Tick(context.Background())

	if len(store.closeCalls) != 0 {
		t.Error("no closes may happen when candidate scan fails")
	}
}

func TestAutoDeleteRemovesCandidates(t *testing.T) {
	store := newFakeStore()
	store.deleteCandidates = []string{"a1", "a2"}

	w := NewAutoDeleteWorker(store, 5*time.Minute)
	w.Tick(context.Background())

	if len(store.deleted) != 2 {
		t.Fatalf("deleted %d alerts, want 2", len(store.deleted))
	}
}

func TestAutoDeleteIsolatesPerAlertFailure(t *testing.T) {
	store := newFakeStore()
	store.deleteCandidates = []string{"a1", "a2", "a3"}
	store.deleteErrByID["a1"] = errors.New("busy")

	w := NewAutoDeleteWorker(store, 5*time.Minute)
	w.Tick(context.Background())

	if len(store.deleted) != 2 {
		t.Fatalf("deleted %d alerts, want 2 despite one failure", len(store.deleted))
	}
}

func TestAutoDeleteAbortsTickOnScanFailure(t *testing.T) {
	store := newFakeStore()
	store.deleteCandErr = errors.New("connection refused")

	w := NewAutoDeleteWorker(store, 5*time.Minute)
	w.Tick(context.Background())

	if len(store.deleted) != 0 {
		t.Error("no deletes may happen when candidate scan fails")
	}
}

func TestRetentionStartStop(t *testing.T) {
	store := newFakeStore()
	cfg := config.Default()
	cfg.Retention.PollIntervalSecs = 1

	r := NewRetention(store, cfg)
	r.Start()

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
