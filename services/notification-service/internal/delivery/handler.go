package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/roombook/libs/kafkax"
	"github.com/md-rashed-zaman/roombook/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

// bookingEvent covers both booked and rescheduled payloads.
type bookingEvent struct {
	AppointmentID int64  `json:"appointment_id"`
	PatientID     int64  `json:"patient_id,omitempty"`
	RoomID        int64  `json:"room_id,omitempty"`
	Status        string `json:"status,omitempty"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time,omitempty"`
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type inboxRecorder interface {
	Record(ctx context.Context, tx pgx.Tx, eventID string, eventType string) (bool, error)
}

type notificationWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, n storage.Notification) error
}

// Handler records each booking event exactly once: the inbox claim and the
// notification row commit together.
type Handler struct {
	db     txBeginner
	inbox  inboxRecorder
	repo   notificationWriter
	logger *slog.Logger
}

func NewHandler(db txBeginner, inbox inboxRecorder, repo notificationWriter, logger *slog.Logger) *Handler {
	return &Handler{db: db, inbox: inbox, repo: repo, logger: logger}
}

// parse validates a message and turns it into a notification row.
// Malformed payloads are reported as errors wrapping ErrMalformed.
func parse(msg kafka.Message) (storage.Notification, bookingEvent, error) {
	meta := kafkax.ExtractEventMeta(msg)
	var evt bookingEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return storage.Notification{}, evt, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if evt.AppointmentID <= 0 {
		return storage.Notification{}, evt, fmt.Errorf("%w: missing appointment_id", ErrMalformed)
	}
	if meta.EventID == "" {
		return storage.Notification{}, evt, fmt.Errorf("%w: missing event id", ErrMalformed)
	}
	return storage.Notification{
		EventID:       meta.EventID,
		EventType:     meta.EventType,
		AppointmentID: evt.AppointmentID,
		Payload:       msg.Value,
	}, evt, nil
}

func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	n, evt, err := parse(msg)
	if err != nil {
		// Retrying cannot fix a bad payload.
		h.logger.ErrorContext(ctx, "invalid event payload", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		return nil
	}

	tx, err := h.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fresh, err := h.inbox.Record(ctx, tx, n.EventID, n.EventType)
	if err != nil {
		return err
	}
	if !fresh {
		h.logger.InfoContext(ctx, "duplicate event ignored", "event_id", n.EventID, "event_type", n.EventType)
		return nil
	}
	if err := h.repo.Insert(ctx, tx, n); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "booking notification delivered",
		"event_id", n.EventID,
		"event_type", n.EventType,
		"appointment_id", evt.AppointmentID,
		"room_id", evt.RoomID,
		"status", evt.Status,
		"start_time", evt.StartTime,
	)
	return nil
}
