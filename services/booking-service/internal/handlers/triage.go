package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/reservation"
)

type TriageStore interface {
	CreateTriage(ctx context.Context, t model.Triage) (model.Triage, error)
	ListTriages(ctx context.Context, patientID int64, limit int) ([]model.Triage, error)
}

// TriageHandler records Manchester triage scores. Triage is not tied into
// booking decisions.
type TriageHandler struct {
	triages TriageStore
	logger  *slog.Logger
}

func NewTriageHandler(triages TriageStore, logger *slog.Logger) *TriageHandler {
	return &TriageHandler{triages: triages, logger: logger}
}

type createTriageRequest struct {
	PatientID       int64  `json:"patient_id"`
	ManchesterScore int    `json:"manchester_score"`
	AppointmentID   *int64 `json:"appointment_id"`
}

type triageItem struct {
	ID              int64  `json:"id"`
	PatientID       int64  `json:"patient_id"`
	ManchesterScore int    `json:"manchester_score"`
	AppointmentID   *int64 `json:"appointment_id"`
	RecordedAt      string `json:"recorded_at"`
}

func toTriageItem(t model.Triage) triageItem {
	return triageItem{
		ID:              t.ID,
		PatientID:       t.PatientID,
		ManchesterScore: t.ManchesterScore,
		AppointmentID:   t.AppointmentID,
		RecordedAt:      t.RecordedAt.UTC().Format(time.RFC3339),
	}
}

func (h *TriageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTriageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.PatientID <= 0 {
		writeError(w, r, h.logger, &reservation.ValidationError{Field: "patient_id", Reason: "must be a positive id"})
		return
	}
	if req.ManchesterScore < 1 || req.ManchesterScore > 5 {
		writeError(w, r, h.logger, &reservation.ValidationError{Field: "manchester_score", Reason: "must be between 1 and 5"})
		return
	}
	if req.AppointmentID != nil && *req.AppointmentID <= 0 {
		writeError(w, r, h.logger, &reservation.ValidationError{Field: "appointment_id", Reason: "must be a positive id"})
		return
	}

	created, err := h.triages.CreateTriage(r.Context(), model.Triage{
		PatientID:       req.PatientID,
		ManchesterScore: req.ManchesterScore,
		AppointmentID:   req.AppointmentID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTriageItem(created))
}

func (h *TriageHandler) List(w http.ResponseWriter, r *http.Request) {
	patientID, err := optionalID(r, "patient_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	triages, err := h.triages.ListTriages(r.Context(), patientID, 100)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]triageItem, 0, len(triages))
	for _, t := range triages {
		items = append(items, toTriageItem(t))
	}
	writeJSON(w, http.StatusOK, items)
}
