package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/reservation"
)

// Reservations is the subset of reservation.Engine the HTTP layer drives.
type Reservations interface {
	Create(ctx context.Context, cmd reservation.CreateCommand) (reservation.Result, error)
	Reschedule(ctx context.Context, cmd reservation.RescheduleCommand) (reservation.Result, error)
	Get(ctx context.Context, id int64) (model.Appointment, error)
	List(ctx context.Context, filter model.AppointmentFilter) ([]model.Appointment, error)
	Slots(ctx context.Context, q reservation.SlotQuery) ([]availability.Interval, error)
}

type BookingHandler struct {
	engine Reservations
	logger *slog.Logger
}

func NewBookingHandler(engine Reservations, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{engine: engine, logger: logger}
}

type createBookingRequest struct {
	RoomID    int64  `json:"room_id"`
	PatientID int64  `json:"patient_id"`
	StaffID   int64  `json:"staff_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type createBookingResponse struct {
	AppointmentID int64  `json:"appointment_id"`
	Status        string `json:"status"`
}

type rescheduleRequest struct {
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Status    *string `json:"status"`
}

type appointmentItem struct {
	ID        int64  `json:"id"`
	PatientID int64  `json:"patient_id"`
	StaffID   int64  `json:"staff_id"`
	RoomID    int64  `json:"room_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func toAppointmentItem(a model.Appointment) appointmentItem {
	return appointmentItem{
		ID:        a.ID,
		PatientID: a.PatientID,
		StaffID:   a.StaffID,
		RoomID:    a.RoomID,
		StartTime: model.FormatTimestamp(a.StartTime),
		EndTime:   model.FormatTimestamp(a.EndTime),
		Status:    a.Status,
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func parseTimestamp(field, raw string) (time.Time, error) {
	t, err := model.ParseTimestamp(strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, &reservation.ValidationError{Field: field, Reason: "expected YYYY-MM-DDTHH:MM:SS"}
	}
	return t, nil
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	start, err := parseTimestamp("start_time", req.StartTime)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	end, err := parseTimestamp("end_time", req.EndTime)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.engine.Create(r.Context(), reservation.CreateCommand{
		RoomID:         req.RoomID,
		PatientID:      req.PatientID,
		StaffID:        req.StaffID,
		Start:          start,
		End:            end,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if res.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	writeJSON(w, http.StatusCreated, createBookingResponse{
		AppointmentID: res.Appointment.ID,
		Status:        res.Appointment.Status,
	})
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	cmd := reservation.RescheduleCommand{ID: id, Status: req.Status}
	if req.StartTime != nil {
		start, err := parseTimestamp("start_time", *req.StartTime)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		cmd.Start = &start
	}
	if req.EndTime != nil {
		end, err := parseTimestamp("end_time", *req.EndTime)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		cmd.End = &end
	}

	res, err := h.engine.Reschedule(r.Context(), cmd)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(res.Appointment))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	appt, err := h.engine.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

// List accepts optional date (YYYY-MM-DD), staff_id and room_id filters.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter model.AppointmentFilter
	if raw := r.URL.Query().Get("date"); raw != "" {
		day, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			writeError(w, r, h.logger, &reservation.ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"})
			return
		}
		filter.Date = day
	}
	var err error
	if filter.StaffID, err = optionalID(r, "staff_id"); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if filter.RoomID, err = optionalID(r, "room_id"); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	appts, err := h.engine.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentItem(a))
	}
	writeJSON(w, http.StatusOK, items)
}

// Slots lists free intervals on one room for a day. The workday defaults to 09:00-17:00.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()

	day, err := time.ParseInLocation("2006-01-02", q.Get("date"), time.UTC)
	if err != nil {
		writeError(w, r, h.logger, &reservation.ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"})
		return
	}
	duration, err := minutesParam(q.Get("duration_minutes"), "duration_minutes", 30)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	step, err := minutesParam(q.Get("slot_step_minutes"), "slot_step_minutes", int(duration/time.Minute))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	opens, err := clockParam(q.Get("workday_start"), "workday_start", 9*time.Hour)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	closes, err := clockParam(q.Get("workday_end"), "workday_end", 17*time.Hour)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	slots, err := h.engine.Slots(r.Context(), reservation.SlotQuery{
		RoomID:   roomID,
		Day:      day,
		Opens:    opens,
		Closes:   closes,
		Duration: duration,
		Step:     step,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{StartTime: model.FormatTimestamp(s.Start), EndTime: model.FormatTimestamp(s.End)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room_id": roomID,
		"date":    day.Format("2006-01-02"),
		"slots":   items,
	})
}

func minutesParam(raw, field string, fallback int) (time.Duration, error) {
	if raw == "" {
		return time.Duration(fallback) * time.Minute, nil
	}
	mins, err := strconv.Atoi(raw)
	if err != nil || mins <= 0 || mins > 24*60 {
		return 0, &reservation.ValidationError{Field: field, Reason: "must be between 1 and 1440"}
	}
	return time.Duration(mins) * time.Minute, nil
}

// clockParam parses "HH:MM" into an offset from midnight.
func clockParam(raw, field string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, &reservation.ValidationError{Field: field, Reason: "expected HH:MM"}
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
