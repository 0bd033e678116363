package reservation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/roombook/libs/metrics"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("roombook/reservation")

type Config struct {
	// TxTimeout bounds every unit of work, including time spent waiting for the room lock.
	TxTimeout time.Duration
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Engine runs check-then-commit for bookings. Every write happens inside
// Store.Atomically so the conflict check and the write see the same room state.
type Engine struct {
	store      Store
	dispatcher Kicker
	logger     *slog.Logger
	txTimeout  time.Duration
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewEngine(store Store, dispatcher Kicker, logger *slog.Logger, cfg Config) *Engine {
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		txTimeout:  cfg.TxTimeout,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
	}
}

type CreateCommand struct {
	RoomID         int64
	PatientID      int64
	StaffID        int64
	Start          time.Time
	End            time.Time
	IdempotencyKey string
}

// RescheduleCommand changes the interval, the status, or both. Start and End
// must be given together.
type RescheduleCommand struct {
	ID     int64
	Start  *time.Time
	End    *time.Time
	Status *string
}

type Result struct {
	Appointment model.Appointment
	// Replayed is set when an idempotency key matched an earlier booking.
	Replayed bool
}

func (c CreateCommand) validate() error {
	switch {
	case c.RoomID <= 0:
		return invalid("room_id", "must be a positive id")
	case c.PatientID <= 0:
		return invalid("patient_id", "must be a positive id")
	case c.StaffID <= 0:
		return invalid("staff_id", "must be a positive id")
	}
	if err := (availability.Interval{Start: c.Start, End: c.End}).Validate(); err != nil {
		return invalid("end_time", err.Error())
	}
	if len(c.IdempotencyKey) > 200 {
		return invalid("idempotency_key", "must be at most 200 characters")
	}
	return nil
}

func (e *Engine) Create(ctx context.Context, cmd CreateCommand) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "reservation.Create", trace.WithAttributes(
		attribute.Int64("room_id", cmd.RoomID),
	))
	defer func() { e.finish(span, "create", err) }()

	cmd.IdempotencyKey = strings.TrimSpace(cmd.IdempotencyKey)
	if err := cmd.validate(); err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.txTimeout)
	defer cancel()

	err = e.store.Atomically(ctx, cmd.RoomID, func(ctx context.Context, tx Tx) error {
		if cmd.IdempotencyKey != "" {
			rec, exists, err := tx.LockIdempotencyKey(ctx, cmd.IdempotencyKey)
			if err != nil {
				return err
			}
			if exists && rec.AppointmentID > 0 {
				appt, err := tx.GetAppointmentForUpdate(ctx, rec.AppointmentID)
				if err != nil {
					return err
				}
				res = Result{Appointment: appt, Replayed: true}
				return nil
			}
		}

		candidate := availability.Interval{Start: cmd.Start, End: cmd.End}
		if err := e.checkConflicts(ctx, tx, cmd.RoomID, candidate, 0); err != nil {
			return err
		}

		appt, err := tx.InsertAppointment(ctx, model.Appointment{
			PatientID: cmd.PatientID,
			StaffID:   cmd.StaffID,
			RoomID:    cmd.RoomID,
			StartTime: cmd.Start,
			EndTime:   cmd.End,
			Status:    string(lifecycle.Initial),
		})
		if err != nil {
			return err
		}

		evt, err := bookedEvent(appt)
		if err != nil {
			return err
		}
		if err := tx.EnqueueEvent(ctx, evt); err != nil {
			return err
		}
		if cmd.IdempotencyKey != "" {
			if err := tx.FinalizeIdempotency(ctx, cmd.IdempotencyKey, appt.ID); err != nil {
				return err
			}
		}
		res = Result{Appointment: appt}
		return nil
	})
	if err != nil {
		return Result{}, storeError(err)
	}

	if res.Replayed {
		e.logger.InfoContext(ctx, "idempotent booking replayed", "appointment_id", res.Appointment.ID, "idempotency_key", cmd.IdempotencyKey)
		return res, nil
	}
	e.kick()
	e.logger.InfoContext(ctx, "appointment booked",
		"appointment_id", res.Appointment.ID,
		"room_id", res.Appointment.RoomID,
		"start_time", model.FormatTimestamp(res.Appointment.StartTime),
		"end_time", model.FormatTimestamp(res.Appointment.EndTime),
	)
	return res, nil
}

type rescheduleRequest struct {
	interval  *availability.Interval
	status    lifecycle.Status
	hasStatus bool
}

func (c RescheduleCommand) validate() (rescheduleRequest, error) {
	var req rescheduleRequest
	if c.Start == nil && c.End == nil && c.Status == nil {
		return req, ErrNoOp
	}
	switch {
	case c.Start != nil && c.End == nil:
		return req, invalid("end_time", "start_time and end_time must be given together")
	case c.Start == nil && c.End != nil:
		return req, invalid("start_time", "start_time and end_time must be given together")
	case c.Start != nil:
		iv := availability.Interval{Start: *c.Start, End: *c.End}
		if err := iv.Validate(); err != nil {
			return req, invalid("end_time", err.Error())
		}
		req.interval = &iv
	}
	if c.Status != nil {
		s, err := lifecycle.Parse(*c.Status)
		if err != nil {
			return req, invalid("status", err.Error())
		}
		req.status = s
		req.hasStatus = true
	}
	return req, nil
}

func (e *Engine) Reschedule(ctx context.Context, cmd RescheduleCommand) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "reservation.Reschedule", trace.WithAttributes(
		attribute.Int64("appointment_id", cmd.ID),
	))
	defer func() { e.finish(span, "reschedule", err) }()

	if cmd.ID <= 0 {
		return Result{}, invalid("id", "must be a positive id")
	}

	ctx, cancel := context.WithTimeout(ctx, e.txTimeout)
	defer cancel()

	current, err := e.store.GetAppointment(ctx, cmd.ID)
	if err != nil {
		return Result{}, storeError(err)
	}
	req, err := cmd.validate()
	if err != nil {
		return Result{}, err
	}

	err = e.store.Atomically(ctx, current.RoomID, func(ctx context.Context, tx Tx) error {
		appt, err := tx.GetAppointmentForUpdate(ctx, cmd.ID)
		if err != nil {
			return err
		}
		from := lifecycle.Status(appt.Status)

		next := from
		if req.hasStatus {
			if !lifecycle.CanTransition(from, req.status) {
				return invalid("status", "cannot change status from "+from.String()+" to "+req.status.String())
			}
			next = req.status
		}

		if req.interval != nil {
			if from.Terminal() {
				return invalid("start_time", "cannot move a "+from.String()+" appointment")
			}
			if next.Blocks() {
				if err := e.checkConflicts(ctx, tx, appt.RoomID, *req.interval, appt.ID); err != nil {
					return err
				}
			}
			appt.StartTime = req.interval.Start
			appt.EndTime = req.interval.End
			if !req.hasStatus {
				next = lifecycle.AfterMove(from)
			}
		}
		appt.Status = string(next)

		updated, err := tx.UpdateAppointment(ctx, appt)
		if err != nil {
			return err
		}
		evt, err := rescheduledEvent(updated)
		if err != nil {
			return err
		}
		if err := tx.EnqueueEvent(ctx, evt); err != nil {
			return err
		}
		res = Result{Appointment: updated}
		return nil
	})
	if err != nil {
		return Result{}, storeError(err)
	}

	e.kick()
	e.logger.InfoContext(ctx, "appointment updated",
		"appointment_id", res.Appointment.ID,
		"status", res.Appointment.Status,
		"start_time", model.FormatTimestamp(res.Appointment.StartTime),
		"end_time", model.FormatTimestamp(res.Appointment.EndTime),
	)
	return res, nil
}

func (e *Engine) Get(ctx context.Context, id int64) (model.Appointment, error) {
	if id <= 0 {
		return model.Appointment{}, invalid("id", "must be a positive id")
	}
	ctx, cancel := context.WithTimeout(ctx, e.txTimeout)
	defer cancel()
	appt, err := e.store.GetAppointment(ctx, id)
	return appt, storeError(err)
}

// List returns appointments matching filter ordered by start time then id.
func (e *Engine) List(ctx context.Context, filter model.AppointmentFilter) ([]model.Appointment, error) {
	if filter.StaffID < 0 {
		return nil, invalid("staff_id", "must be a positive id")
	}
	if filter.RoomID < 0 {
		return nil, invalid("room_id", "must be a positive id")
	}
	ctx, cancel := context.WithTimeout(ctx, e.txTimeout)
	defer cancel()
	appts, err := e.store.ListAppointments(ctx, filter)
	return appts, storeError(err)
}

type SlotQuery struct {
	RoomID   int64
	Day      time.Time
	Opens    time.Duration
	Closes   time.Duration
	Duration time.Duration
	Step     time.Duration
}

// Slots lists free start times on one room for a single day.
func (e *Engine) Slots(ctx context.Context, q SlotQuery) ([]availability.Interval, error) {
	if q.RoomID <= 0 {
		return nil, invalid("room_id", "must be a positive id")
	}
	if q.Duration <= 0 {
		return nil, invalid("duration_minutes", "must be positive")
	}
	if q.Step <= 0 {
		q.Step = q.Duration
	}
	window := availability.DayWindow(q.Day, q.Opens, q.Closes)
	if err := window.Validate(); err != nil {
		return nil, invalid("workday_end", err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, e.txTimeout)
	defer cancel()

	if _, err := e.store.GetRoom(ctx, q.RoomID); err != nil {
		return nil, storeError(err)
	}
	booked, err := e.store.BookedIntervals(ctx, q.RoomID, window)
	if err != nil {
		return nil, storeError(err)
	}

	now := e.now().UTC()
	starts := availability.AvailableSlots(window.Start, window.End, q.Duration, q.Step, availability.Busy(booked), now)
	slots := make([]availability.Interval, 0, len(starts))
	for _, s := range starts {
		slots = append(slots, availability.Interval{Start: s, End: s.Add(q.Duration)})
	}
	return slots, nil
}

func (e *Engine) checkConflicts(ctx context.Context, tx Tx, roomID int64, candidate availability.Interval, excludeID int64) error {
	existing, err := tx.FindOverlapping(ctx, roomID, candidate)
	if err != nil {
		return err
	}
	if ids := availability.Conflicts(candidate, existing, excludeID); len(ids) > 0 {
		return &ConflictError{RoomID: roomID, IDs: ids}
	}
	return nil
}

func (e *Engine) kick() {
	if e.dispatcher != nil {
		e.dispatcher.Kick()
	}
}

func (e *Engine) finish(span trace.Span, operation string, err error) {
	e.metrics.Reservation(operation, outcome(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			span.SetAttributes(attribute.Int64Slice("conflicting_ids", conflict.IDs))
		}
	}
	span.End()
}
