package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/md-rashed-zaman/roombook/libs/httpx"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/reservation"
)

type errorResponse struct {
	Error          string  `json:"error"`
	Field          string  `json:"field,omitempty"`
	Resource       string  `json:"resource,omitempty"`
	ID             int64   `json:"id,omitempty"`
	ConflictingIDs []int64 `json:"conflicting_ids,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError maps the reservation error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		verr     *reservation.ValidationError
		notFound *reservation.NotFoundError
		conflict *reservation.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Field: verr.Field})
	case errors.Is(err, reservation.ErrNoOp), errors.Is(err, reservation.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: notFound.Error(), Resource: notFound.Resource, ID: notFound.ID})
	case errors.As(err, &conflict):
		ids := conflict.IDs
		if ids == nil {
			ids = []int64{}
		}
		writeJSON(w, http.StatusConflict, struct {
			Error          string  `json:"error"`
			ConflictingIDs []int64 `json:"conflicting_ids"`
		}{Error: reservation.ErrSchedulingConflict.Error(), ConflictingIDs: ids})
	case errors.Is(err, reservation.ErrStoreTimeout):
		logger.WarnContext(r.Context(), "store timeout", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "store timeout, retry later"})
	case errors.Is(err, reservation.ErrStoreUnavailable):
		logger.WarnContext(r.Context(), "store unavailable", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "store unavailable, retry later"})
	default:
		logger.ErrorContext(r.Context(), "request failed", "err", err, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &reservation.ValidationError{Field: "body", Reason: "invalid json body"}
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	return parseID("id", r.PathValue("id"))
}

func parseID(field, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &reservation.ValidationError{Field: field, Reason: "must be a positive integer"}
	}
	return id, nil
}

// optionalID parses a query parameter; empty means "not filtered".
func optionalID(r *http.Request, field string) (int64, error) {
	raw := r.URL.Query().Get(field)
	if raw == "" {
		return 0, nil
	}
	return parseID(field, raw)
}
