package storage

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/reservation"
)

const appointmentColumns = `id, patient_id, staff_id, room_id, start_time, end_time, status, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.PatientID,
		&appt.StaffID,
		&appt.RoomID,
		&appt.StartTime,
		&appt.EndTime,
		&appt.Status,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	return appt, err
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	appts := []model.Appointment{}
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (s *Store) GetAppointment(ctx context.Context, id int64) (model.Appointment, error) {
	appt, err := scanAppointment(s.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if err != nil {
		return model.Appointment{}, notFound(err, "appointment", id)
	}
	return appt, nil
}

// ListAppointments builds its WHERE clause from the non-zero filter fields.
// Date matches appointments starting on that calendar day.
func (s *Store) ListAppointments(ctx context.Context, filter model.AppointmentFilter) ([]model.Appointment, error) {
	q := psql.Select(appointmentColumns).From("appointments").OrderBy("start_time ASC", "id ASC")
	if !filter.Date.IsZero() {
		day := availability.DayWindow(filter.Date, 0, 24*time.Hour)
		q = q.Where(sq.GtOrEq{"start_time": day.Start}).Where(sq.Lt{"start_time": day.End})
	}
	if filter.StaffID > 0 {
		q = q.Where(sq.Eq{"staff_id": filter.StaffID})
	}
	if filter.RoomID > 0 {
		q = q.Where(sq.Eq{"room_id": filter.RoomID})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	appts, err := collectAppointments(rows)
	return appts, classify(err)
}

func (s *Store) BookedIntervals(ctx context.Context, roomID int64, window availability.Interval) ([]availability.Booked, error) {
	rows, err := s.pool.Query(ctx, overlappingQuery, roomID, window.Start, window.End, string(lifecycle.Cancelled))
	if err != nil {
		return nil, classify(err)
	}
	booked, err := collectBooked(rows)
	return booked, classify(err)
}

const overlappingQuery = `
	SELECT id, start_time, end_time
	FROM appointments
	WHERE room_id = $1
		AND start_time < $3
		AND end_time > $2
		AND status <> $4
	ORDER BY start_time ASC, id ASC
`

func collectBooked(rows pgx.Rows) ([]availability.Booked, error) {
	defer rows.Close()
	var booked []availability.Booked
	for rows.Next() {
		var b availability.Booked
		if err := rows.Scan(&b.ID, &b.Start, &b.End); err != nil {
			return nil, err
		}
		booked = append(booked, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return booked, nil
}

func (t *bookingTx) FindOverlapping(ctx context.Context, roomID int64, window availability.Interval) ([]availability.Booked, error) {
	rows, err := t.tx.Query(ctx, overlappingQuery, roomID, window.Start, window.End, string(lifecycle.Cancelled))
	if err != nil {
		return nil, err
	}
	return collectBooked(rows)
}

func (t *bookingTx) InsertAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	created, err := scanAppointment(t.tx.QueryRow(ctx, `
		INSERT INTO appointments (patient_id, staff_id, room_id, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+appointmentColumns,
		appt.PatientID, appt.StaffID, appt.RoomID, appt.StartTime, appt.EndTime, appt.Status))
	if err != nil {
		return model.Appointment{}, t.writeError(err, appt.RoomID)
	}
	return created, nil
}

func (t *bookingTx) GetAppointmentForUpdate(ctx context.Context, id int64) (model.Appointment, error) {
	appt, err := scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return model.Appointment{}, notFound(err, "appointment", id)
	}
	if appt.RoomID != t.roomID {
		return model.Appointment{}, &reservation.ValidationError{Field: "room_id", Reason: "appointment belongs to another room"}
	}
	return appt, nil
}

func (t *bookingTx) UpdateAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	updated, err := scanAppointment(t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $2,
			end_time = $3,
			status = $4,
			updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		appt.ID, appt.StartTime, appt.EndTime, appt.Status))
	if err != nil {
		if IsNotFound(err) {
			return model.Appointment{}, &reservation.NotFoundError{Resource: "appointment", ID: appt.ID}
		}
		return model.Appointment{}, t.writeError(err, appt.RoomID)
	}
	return updated, nil
}

// writeError turns the exclusion constraint backstop into a ConflictError.
func (t *bookingTx) writeError(err error, roomID int64) error {
	if IsConflict(err) {
		return &reservation.ConflictError{RoomID: roomID}
	}
	return err
}

func (t *bookingTx) LockIdempotencyKey(ctx context.Context, key string) (reservation.IdempotencyRecord, bool, error) {
	rec, err := t.selectIdempotencyForUpdate(ctx, key)
	if err == nil {
		return rec, true, nil
	}
	if !IsNotFound(err) {
		return reservation.IdempotencyRecord{}, false, err
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (room_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (room_id, idempotency_key) DO NOTHING
	`, t.roomID, key)
	if err != nil {
		return reservation.IdempotencyRecord{}, false, err
	}

	rec, err = t.selectIdempotencyForUpdate(ctx, key)
	if err != nil {
		return reservation.IdempotencyRecord{}, false, err
	}
	// A concurrent request may have committed between our two selects.
	return rec, rec.AppointmentID > 0, nil
}

func (t *bookingTx) FinalizeIdempotency(ctx context.Context, key string, appointmentID int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $2,
			updated_at = now()
		WHERE room_id = $3 AND idempotency_key = $1
	`, key, appointmentID, t.roomID)
	return err
}

func (t *bookingTx) selectIdempotencyForUpdate(ctx context.Context, key string) (reservation.IdempotencyRecord, error) {
	var rec reservation.IdempotencyRecord
	err := t.tx.QueryRow(ctx, `
		SELECT idempotency_key, COALESCE(appointment_id, 0)
		FROM booking_idempotency_keys
		WHERE room_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, t.roomID, key).Scan(&rec.Key, &rec.AppointmentID)
	return rec, err
}
