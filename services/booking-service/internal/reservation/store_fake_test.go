package reservation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/outbox"
)

type idempotencyScope struct {
	roomID int64
	key    string
}

// memoryStore is an in-memory Store. Each room has a one-slot channel acting
// as the row lock, so Atomically serializes per room and honours deadlines.
type memoryStore struct {
	mu           sync.Mutex
	roomLocks    map[int64]chan struct{}
	rooms        map[int64]model.Room
	appointments map[int64]model.Appointment
	idempotency  map[idempotencyScope]int64
	events       []outbox.Event
	nextID       int64
	// beforeWrite runs inside the unit of work after the conflict read.
	beforeWrite func()
}

func newMemoryStore(roomIDs ...int64) *memoryStore {
	s := &memoryStore{
		roomLocks:    map[int64]chan struct{}{},
		rooms:        map[int64]model.Room{},
		appointments: map[int64]model.Appointment{},
		idempotency:  map[idempotencyScope]int64{},
	}
	for _, id := range roomIDs {
		s.rooms[id] = model.Room{ID: id, Name: "Room", Type: "consult"}
		s.roomLocks[id] = make(chan struct{}, 1)
	}
	return s
}

func (s *memoryStore) lockRoom(ctx context.Context, roomID int64) (func(), error) {
	s.mu.Lock()
	lock, ok := s.roomLocks[roomID]
	s.mu.Unlock()
	if !ok {
		return nil, &NotFoundError{Resource: "room", ID: roomID}
	}
	select {
	case lock <- struct{}{}:
		return func() { <-lock }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *memoryStore) Atomically(ctx context.Context, roomID int64, fn func(ctx context.Context, tx Tx) error) error {
	unlock, err := s.lockRoom(ctx, roomID)
	if err != nil {
		return err
	}
	defer unlock()

	tx := &memoryTx{store: s, roomID: roomID, pending: map[int64]model.Appointment{}, keys: map[string]int64{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, appt := range tx.pending {
		s.appointments[id] = appt
	}
	for k, v := range tx.keys {
		s.idempotency[idempotencyScope{roomID: roomID, key: k}] = v
	}
	s.events = append(s.events, tx.events...)
	return nil
}

func (s *memoryStore) GetRoom(_ context.Context, id int64) (model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return model.Room{}, &NotFoundError{Resource: "room", ID: id}
	}
	return room, nil
}

func (s *memoryStore) GetAppointment(_ context.Context, id int64) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[id]
	if !ok {
		return model.Appointment{}, &NotFoundError{Resource: "appointment", ID: id}
	}
	return appt, nil
}

func (s *memoryStore) ListAppointments(_ context.Context, filter model.AppointmentFilter) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appointments {
		if filter.RoomID > 0 && a.RoomID != filter.RoomID {
			continue
		}
		if filter.StaffID > 0 && a.StaffID != filter.StaffID {
			continue
		}
		if !filter.Date.IsZero() {
			day := availability.DayWindow(filter.Date, 0, 24*time.Hour)
			if a.StartTime.Before(day.Start) || !a.StartTime.Before(day.End) {
				continue
			}
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func (s *memoryStore) BookedIntervals(_ context.Context, roomID int64, window availability.Interval) ([]availability.Booked, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return overlapping(s.appointments, nil, roomID, window), nil
}

func (s *memoryStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func overlapping(committed, pending map[int64]model.Appointment, roomID int64, window availability.Interval) []availability.Booked {
	merged := map[int64]model.Appointment{}
	for id, a := range committed {
		merged[id] = a
	}
	for id, a := range pending {
		merged[id] = a
	}
	var out []availability.Booked
	for _, a := range merged {
		if a.RoomID != roomID || !lifecycle.Status(a.Status).Blocks() {
			continue
		}
		if a.StartTime.Before(window.End) && window.Start.Before(a.EndTime) {
			out = append(out, availability.Booked{ID: a.ID, Interval: availability.Interval{Start: a.StartTime, End: a.EndTime}})
		}
	}
	return out
}

type memoryTx struct {
	store   *memoryStore
	roomID  int64
	pending map[int64]model.Appointment
	keys    map[string]int64
	events  []outbox.Event
}

func (t *memoryTx) FindOverlapping(_ context.Context, roomID int64, window availability.Interval) ([]availability.Booked, error) {
	t.store.mu.Lock()
	booked := overlapping(t.store.appointments, t.pending, roomID, window)
	hook := t.store.beforeWrite
	t.store.mu.Unlock()
	if hook != nil {
		hook()
	}
	return booked, nil
}

func (t *memoryTx) InsertAppointment(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	t.store.mu.Lock()
	t.store.nextID++
	appt.ID = t.store.nextID
	t.store.mu.Unlock()
	appt.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	appt.UpdatedAt = appt.CreatedAt
	t.pending[appt.ID] = appt
	return appt, nil
}

func (t *memoryTx) GetAppointmentForUpdate(ctx context.Context, id int64) (model.Appointment, error) {
	appt, ok := t.pending[id]
	if !ok {
		var err error
		if appt, err = t.store.GetAppointment(ctx, id); err != nil {
			return model.Appointment{}, err
		}
	}
	if appt.RoomID != t.roomID {
		return model.Appointment{}, &ValidationError{Field: "room_id", Reason: "appointment belongs to another room"}
	}
	return appt, nil
}

func (t *memoryTx) UpdateAppointment(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	t.pending[appt.ID] = appt
	return appt, nil
}

func (t *memoryTx) EnqueueEvent(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}

func (t *memoryTx) LockIdempotencyKey(_ context.Context, key string) (IdempotencyRecord, bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	id, ok := t.store.idempotency[idempotencyScope{roomID: t.roomID, key: key}]
	return IdempotencyRecord{Key: key, AppointmentID: id}, ok, nil
}

func (t *memoryTx) FinalizeIdempotency(_ context.Context, key string, appointmentID int64) error {
	t.keys[key] = appointmentID
	return nil
}

type countingKicker struct {
	mu    sync.Mutex
	kicks int
}

func (k *countingKicker) Kick() {
	k.mu.Lock()
	k.kicks++
	k.mu.Unlock()
}

func (k *countingKicker) count() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.kicks
}
