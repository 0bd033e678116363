package reservation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/roombook/libs/notify"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(t *testing.T, raw string) time.Time {
	t.Helper()
	v, err := model.ParseTimestamp(raw)
	require.NoError(t, err)
	return v
}

func ptr[T any](v T) *T { return &v }

func newTestEngine(store Store, kicker Kicker) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(store, kicker, logger, Config{
		TxTimeout: time.Second,
		Now:       func() time.Time { return time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC) },
	})
}

func create(t *testing.T, e *Engine, room int64, start, end string) (Result, error) {
	t.Helper()
	return e.Create(context.Background(), CreateCommand{
		RoomID:    room,
		PatientID: 7,
		StaffID:   3,
		Start:     ts(t, start),
		End:       ts(t, end),
	})
}

func TestBookingScenario(t *testing.T) {
	store := newMemoryStore(1)
	kicker := &countingKicker{}
	e := newTestEngine(store, kicker)

	first, err := create(t, e, 1, "2024-01-01T09:00:00", "2024-01-01T10:00:00")
	require.NoError(t, err)
	assert.Equal(t, "scheduled", first.Appointment.Status)
	assert.False(t, first.Replayed)

	_, err = create(t, e, 1, "2024-01-01T09:30:00", "2024-01-01T10:30:00")
	require.ErrorIs(t, err, ErrSchedulingConflict)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []int64{first.Appointment.ID}, conflict.IDs)

	res, err := e.Reschedule(context.Background(), RescheduleCommand{ID: first.Appointment.ID, Status: ptr("completed")})
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Appointment.Status)
	assert.True(t, res.Appointment.StartTime.Equal(first.Appointment.StartTime))
	assert.True(t, res.Appointment.EndTime.Equal(first.Appointment.EndTime))

	assert.Equal(t, []string{TopicAppointmentBooked, TopicAppointmentRescheduled}, store.eventTypes())
	assert.Equal(t, 2, kicker.count())
}

func TestTouchingIntervalsDoNotConflict(t *testing.T) {
	e := newTestEngine(newMemoryStore(1), nil)

	_, err := create(t, e, 1, "2024-01-01T09:00:00", "2024-01-01T10:00:00")
	require.NoError(t, err)
	_, err = create(t, e, 1, "2024-01-01T10:00:00", "2024-01-01T11:00:00")
	require.NoError(t, err)
	_, err = create(t, e, 1, "2024-01-01T08:00:00", "2024-01-01T09:00:00")
	require.NoError(t, err)
}

func TestConcurrentOverlappingCreatesAdmitExactlyOne(t *testing.T) {
	store := newMemoryStore(1)
	// Widen the window between the conflict read and the write.
	store.beforeWrite = func() { time.Sleep(5 * time.Millisecond) }
	e := newTestEngine(store, nil)

	const workers = 8
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := e.Create(context.Background(), CreateCommand{
				RoomID:    1,
				PatientID: int64(i + 1),
				StaffID:   1,
				Start:     time.Date(2024, 1, 1, 9, i, 0, 0, time.UTC),
				End:       time.Date(2024, 1, 1, 10, i, 0, 0, time.UTC),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrSchedulingConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)

	appts, err := e.List(context.Background(), model.AppointmentFilter{RoomID: 1})
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

func TestRoomsAreIndependent(t *testing.T) {
	store := newMemoryStore(1, 2)
	e := newTestEngine(store, nil)

	unlock, err := store.lockRoom(context.Background(), 1)
	require.NoError(t, err)
	defer unlock()

	_, err = create(t, e, 2, "2024-01-01T09:00:00", "2024-01-01T10:00:00")
	require.NoError(t, err, "a lock on room 1 must not block room 2")
}

func TestCreateTimesOutWaitingForRoom(t *testing.T) {
	store := newMemoryStore(1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEngine(store, nil, logger, Config{TxTimeout: 30 * time.Millisecond})

	unlock, err := store.lockRoom(context.Background(), 1)
	require.NoError(t, err)
	defer unlock()

	_, err = create(t, e, 1, "2024-01-01T09:00:00", "2024-01-01T10:00:00")
	require.ErrorIs(t, err, ErrStoreTimeout)
	assert.Empty(t, store.eventTypes())
}

func TestCreateValidation(t *testing.T) {
	e := newTestEngine(newMemoryStore(1), nil)
	start := ts(t, "2024-01-01T09:00:00")

	cases := []struct {
		name  string
		cmd   CreateCommand
		field string
	}{
		{"missing room", CreateCommand{PatientID: 1, StaffID: 1, Start: start, End: start.Add(time.Hour)}, "room_id"},
		{"missing patient", CreateCommand{RoomID: 1, StaffID: 1, Start: start, End: start.Add(time.Hour)}, "patient_id"},
		{"missing staff", CreateCommand{RoomID: 1, PatientID: 1, Start: start, End: start.Add(time.Hour)}, "staff_id"},
		{"empty interval", CreateCommand{RoomID: 1, PatientID: 1, StaffID: 1, Start: start, End: start}, "end_time"},
		{"reversed interval", CreateCommand{RoomID: 1, PatientID: 1, StaffID: 1, Start: start, End: start.Add(-time.Hour)}, "end_time"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Create(context.Background(), tc.cmd)
			require.ErrorIs(t, err, ErrInvalidInput)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestCreateUnknownRoom(t *testing.T) {
	e := newTestEngine(newMemoryStore(1), nil)
	_, err := create(t, e, 42, "2024-01-01T09:00:00", "2024-01-01T10:00:00")
	require.ErrorIs(t, err, ErrNotFound)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "room", nf.Resource)
	assert.EqualValues(t, 42, nf.ID)
}

func TestIdempotentCreateReplays(t *testing.T) {
	store := newMemoryStore(1)
	kicker := &countingKicker{}
	e := newTestEngine(store, kicker)

	cmd := CreateCommand{
		RoomID:         1,
		PatientID:      5,
		StaffID:        2,
		Start:          ts(t, "2024-01-01T09:00:00"),
		End:            ts(t, "2024-01-01T10:00:00"),
		IdempotencyKey: "req-abc",
	}
	first, err := e.Create(context.Background(), cmd)
	require.NoError(t, err)

	second, err := e.Create(context.Background(), cmd)
	require.NoError(t, err, "a replay must not be reported as a conflict with itself")
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Appointment.ID, second.Appointment.ID)
	assert.Len(t, store.eventTypes(), 1)
	assert.Equal(t, 1, kicker.count())
}

func TestIdempotencyKeyIsScopedToRoom(t *testing.T) {
	store := newMemoryStore(1, 2)
	e := newTestEngine(store, nil)

	cmd := CreateCommand{
		RoomID:         1,
		PatientID:      5,
		StaffID:        2,
		Start:          ts(t, "2024-01-01T09:00:00"),
		End:            ts(t, "2024-01-01T10:00:00"),
		IdempotencyKey: "req-shared",
	}
	inRoom1, err := e.Create(context.Background(), cmd)
	require.NoError(t, err)

	cmd.RoomID = 2
	inRoom2, err := e.Create(context.Background(), cmd)
	require.NoError(t, err, "reusing a key on another room is a new booking")
	assert.False(t, inRoom2.Replayed)
	assert.NotEqual(t, inRoom1.Appointment.ID, inRoom2.Appointment.ID)
	assert.Equal(t, int64(2), inRoom2.Appointment.RoomID)

	cmd.RoomID = 1
	again, err := e.Create(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, inRoom1.Appointment.ID, again.Appointment.ID)
	assert.Len(t, store.eventTypes(), 2)
}

func TestRescheduleToOwnIntervalExcludesSelf(t *testing.T) {
	e := newTestEngine(newMemoryStore(1), nil)
	first, err := create(t, e, 1, "2024-01-01T09:00:00", "2024-01-01T10:00:00")
	require.NoError(t, err)

	res, err := e.Reschedule(context.Background(), RescheduleCommand{
		ID:    first.Appointment.ID,
		Start: ptr(first.Appointment.StartTime),
		End:   ptr(first.Appointment.EndTime),
	})
	require.NoError(t, err)
	assert.Equal(t, "rescheduled", res.Appointment.Status)

	res, err = e.Reschedule(context.Background(), RescheduleCommand{
		ID:    first.Appointment.ID,
		Start: ptr(ts(t, "2024-01-01T09:30:00")),
		End:   ptr(ts(t, "2024-01-01T10:30:00")),
	})
	require.NoError(t, err, "overlapping only its own previous interval is allowed")
	assert.Equal(t, "2024-01-01T09:30:00", model.FormatTimestamp(res.Appointment.StartTime))
}

func TestRescheduleConflictLeavesAppointmentUntouched(t *testing.T) {
	store := newMemoryStore(1)
	e := newTestEngine(store, nil)
	a, err := create(t, e, 1, "2024-01-01T09:00:00", "2024-01-01T10:00:00")
	require.NoError(t, err)
	b, err := create(t, e, 1, "2024-01-01T11:00:00", "2024-01-01T12:00:00")
	require.NoError(t, err)

	_, err = e.Reschedule(context.Background(), RescheduleCommand{
		ID:     b.Appointment.ID,
		Start:  ptr(ts(t, "2024-01-01T09:30:00")),
		End:    ptr(ts(t, "2024-01-01T11:30:00")),
		Status: ptr("scheduled"),
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []int64{a.Appointment.ID}, conflict.IDs)

	got, err := e.Get(context.Background(), b.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Appointment, got)
	assert.Equal(t, []string{TopicAppointmentBooked, TopicAppointmentBooked}, store.eventTypes())
}

func TestRescheduleValidation(t *testing.T) {
	e := newTestEngine(newMemoryStore(1), nil)
	a, err := create(t, e, 1, "2024-01-01T09:00:00", "2024-01-01T10:00:00")
	require.NoError(t, err)
	id := a.Appointment.ID

	_, err = e.Reschedule(context.Background(), RescheduleCommand{ID: id})
	assert.ErrorIs(t, err, ErrNoOp)

	_, err = e.Reschedule(context.Background(), RescheduleCommand{ID: 999, Status: ptr("completed")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.Reschedule(context.Background(), RescheduleCommand{ID: id, Start: ptr(ts(t, "2024-01-01T11:00:00"))})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "end_time", verr.Field)

	_, err = e.Reschedule(context.Background(), RescheduleCommand{
		ID:    id,
		Start: ptr(ts(t, "2024-01-01T12:00:00")),
		End:   ptr(ts(t, "2024-01-01T11:00:00")),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.Reschedule(context.Background(), RescheduleCommand{ID: id, Status: ptr("no-show")})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.Field)

	_, err = e.Reschedule(context.Background(), RescheduleCommand{ID: id, Status: ptr("cancelled")})
	require.NoError(t, err)
	_, err = e.Reschedule(context.Background(), RescheduleCommand{ID: id, Status: ptr("scheduled")})
	assert.ErrorIs(t, err, ErrInvalidInput, "cancelled is terminal")
}

func TestCancelledAppointmentFreesRoom(t *testing.T) {
	e := newTestEngine(newMemoryStore(1), nil)
	a, err := create(t, e, 1, "2024-01-01T09:00:00", "2024-01-01T10:00:00")
	require.NoError(t, err)

	_, err = e.Reschedule(context.Background(), RescheduleCommand{ID: a.Appointment.ID, Status: ptr("cancelled")})
	require.NoError(t, err)

	_, err = create(t, e, 1, "2024-01-01T09:30:00", "2024-01-01T10:30:00")
	require.NoError(t, err)
}

func TestStatusOnlyChangeSkipsConflictCheck(t *testing.T) {
	store := newMemoryStore(1)
	at := func(h int) time.Time { return time.Date(2024, 1, 1, h, 0, 0, 0, time.UTC) }
	// Overlapping rows that predate the constraint.
	store.appointments[1] = model.Appointment{ID: 1, RoomID: 1, PatientID: 1, StaffID: 1, StartTime: at(9), EndTime: at(10), Status: "scheduled"}
	store.appointments[2] = model.Appointment{ID: 2, RoomID: 1, PatientID: 2, StaffID: 1, StartTime: at(9), EndTime: at(11), Status: "scheduled"}
	store.nextID = 2
	e := newTestEngine(store, nil)

	res, err := e.Reschedule(context.Background(), RescheduleCommand{ID: 2, Status: ptr("completed")})
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Appointment.Status)
}

func TestListIsStableAndFiltered(t *testing.T) {
	e := newTestEngine(newMemoryStore(1, 2), nil)
	_, err := create(t, e, 2, "2024-01-01T11:00:00", "2024-01-01T12:00:00")
	require.NoError(t, err)
	_, err = create(t, e, 1, "2024-01-01T09:00:00", "2024-01-01T10:00:00")
	require.NoError(t, err)
	_, err = create(t, e, 1, "2024-01-02T09:00:00", "2024-01-02T10:00:00")
	require.NoError(t, err)

	filter := model.AppointmentFilter{Date: ts(t, "2024-01-01T00:00:00")}
	first, err := e.List(context.Background(), filter)
	require.NoError(t, err)
	second, err := e.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	require.Len(t, first, 2)
	assert.EqualValues(t, 1, first[0].RoomID)

	byRoom, err := e.List(context.Background(), model.AppointmentFilter{RoomID: 1})
	require.NoError(t, err)
	assert.Len(t, byRoom, 2)
}

func TestSlots(t *testing.T) {
	e := newTestEngine(newMemoryStore(1), nil)
	_, err := create(t, e, 1, "2024-01-01T09:00:00", "2024-01-01T10:00:00")
	require.NoError(t, err)

	slots, err := e.Slots(context.Background(), SlotQuery{
		RoomID:   1,
		Day:      ts(t, "2024-01-01T00:00:00"),
		Opens:    8 * time.Hour,
		Closes:   12 * time.Hour,
		Duration: time.Hour,
	})
	require.NoError(t, err)
	var starts []string
	for _, s := range slots {
		starts = append(starts, model.FormatTimestamp(s.Start))
	}
	assert.Equal(t, []string{"2024-01-01T08:00:00", "2024-01-01T10:00:00", "2024-01-01T11:00:00"}, starts)

	_, err = e.Slots(context.Background(), SlotQuery{RoomID: 9, Day: ts(t, "2024-01-01T00:00:00"), Opens: 8 * time.Hour, Closes: 12 * time.Hour, Duration: time.Hour})
	assert.ErrorIs(t, err, ErrNotFound)
}

// ProcessBatch lets the in-memory store feed a real outbox.Dispatcher.
func (s *memoryStore) ProcessBatch(ctx context.Context, limit, _ int, publish func(context.Context, outbox.Record) error) (outbox.BatchResult, error) {
	s.mu.Lock()
	events := append([]outbox.Event(nil), s.events...)
	s.mu.Unlock()

	var res outbox.BatchResult
	for i, evt := range events {
		if i == limit {
			break
		}
		rec := outbox.Record{ID: int64(i + 1), EventType: evt.EventType, AggregateID: evt.AggregateID, Payload: evt.Payload}
		res.Outcomes = append(res.Outcomes, outbox.Outcome{Record: rec, Err: publish(ctx, rec)})
	}
	return res, nil
}

type unreachableChannel struct{}

func (unreachableChannel) Publish(context.Context, notify.Message) error {
	return errors.New("dial tcp: connection refused")
}

func TestNotificationFailureDoesNotFailBooking(t *testing.T) {
	store := newMemoryStore(1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := outbox.NewDispatcher(store, unreachableChannel{}, logger, nil, outbox.DispatcherConfig{})
	e := newTestEngine(store, dispatcher)

	res, err := create(t, e, 1, "2024-01-01T09:00:00", "2024-01-01T10:00:00")
	require.NoError(t, err)

	batch, err := dispatcher.DispatchOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Outcomes, 1)
	assert.Error(t, batch.Outcomes[0].Err)

	got, err := e.Get(context.Background(), res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, "scheduled", got.Status)
}
