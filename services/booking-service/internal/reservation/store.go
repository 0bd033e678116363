package reservation

import (
	"context"

	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/outbox"
)

// Store is the durable record of rooms and appointments.
type Store interface {
	// Atomically runs fn in one transaction holding an exclusive lock on the
	// room, so that check-then-write sequences on the same room serialize.
	// It returns a *NotFoundError when the room does not exist.
	Atomically(ctx context.Context, roomID int64, fn func(ctx context.Context, tx Tx) error) error

	GetRoom(ctx context.Context, id int64) (model.Room, error)
	GetAppointment(ctx context.Context, id int64) (model.Appointment, error)
	ListAppointments(ctx context.Context, filter model.AppointmentFilter) ([]model.Appointment, error)
	// BookedIntervals returns the room's non-cancelled appointments that overlap window.
	BookedIntervals(ctx context.Context, roomID int64, window availability.Interval) ([]availability.Booked, error)
}

// Tx is the unit of work handed to Store.Atomically.
type Tx interface {
	// FindOverlapping range-reads non-cancelled appointments on roomID overlapping window.
	FindOverlapping(ctx context.Context, roomID int64, window availability.Interval) ([]availability.Booked, error)
	InsertAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	GetAppointmentForUpdate(ctx context.Context, id int64) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	EnqueueEvent(ctx context.Context, evt outbox.Event) error

	// LockIdempotencyKey reserves key within the transaction's room. The bool
	// reports whether a record already existed. The same key on another room
	// is a separate record.
	LockIdempotencyKey(ctx context.Context, key string) (IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, key string, appointmentID int64) error
}

type IdempotencyRecord struct {
	Key           string
	AppointmentID int64
}

// Kicker wakes the event dispatcher after a commit.
type Kicker interface {
	Kick()
}
