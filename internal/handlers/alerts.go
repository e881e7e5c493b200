package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"fleetwatch/internal/engine"
	"fleetwatch/internal/models"
	"fleetwatch/internal/storage"
)

// AlertService is the slice of the lifecycle engine the HTTP layer needs.
type AlertService interface {
	Submit(ctx context.Context, draft *models.Draft) (engine.Receipt, error)
	Get(ctx context.Context, alertID string) (*models.Alert, []models.AlertEvent, error)
}

// AlertHandler serves the alert submission and retrieval contracts.
type AlertHandler struct {
	svc         AlertService
	maxBodySize int64
}

func NewAlertHandler(svc AlertService, maxBodySize int64) *AlertHandler {
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20
	}
	return &AlertHandler{svc: svc, maxBodySize: maxBodySize}
}

// Register wires the handler's routes onto the mux.
func (h *AlertHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /process-alert", h.ProcessAlert)
	mux.HandleFunc("GET /alerts/{id}", h.GetAlert)
}

// ProcessAlert handles POST /process-alert: decode the draft, run it
// through the lifecycle engine, answer 201 with the assigned ID and final
// status.
func (h *AlertHandler) ProcessAlert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	var draft models.Draft
	if err := json.Unmarshal(body, &draft); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	receipt, err := h.svc.Submit(r.Context(), &draft)
	if errors.Is(err, models.ErrMissingSourceType) {
		h.writeError(w, http.StatusBadRequest, "Invalid alert payload. Required: sourceType.")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to process alert")
		return
	}

	h.writeJSON(w, http.StatusCreated, receipt)
}

// GetAlert handles GET /alerts/{id}: the alert row plus its full event
// history ordered by time ascending.
func (h *AlertHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alertID := r.PathValue("id")
	if alertID == "" {
		h.writeError(w, http.StatusBadRequest, "missing alert id")
		return
	}

	alert, events, err := h.svc.Get(r.Context(), alertID)
	if errors.Is(err, storage.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "Alert not found")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Server error fetching alert details")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"alert":   alert,
		"history": events,
	})
}

func (h *AlertHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *AlertHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": message,
	})
}
