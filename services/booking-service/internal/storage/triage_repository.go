package storage

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/reservation"
)

func (s *Store) CreateTriage(ctx context.Context, t model.Triage) (model.Triage, error) {
	var created model.Triage
	err := s.pool.QueryRow(ctx, `
		INSERT INTO triages (patient_id, manchester_score, appointment_id)
		VALUES ($1, $2, $3)
		RETURNING id, patient_id, manchester_score, appointment_id, recorded_at
	`, t.PatientID, t.ManchesterScore, t.AppointmentID).Scan(
		&created.ID,
		&created.PatientID,
		&created.ManchesterScore,
		&created.AppointmentID,
		&created.RecordedAt,
	)
	if err != nil {
		if IsForeignKey(err) && t.AppointmentID != nil {
			return model.Triage{}, &reservation.NotFoundError{Resource: "appointment", ID: *t.AppointmentID}
		}
		return model.Triage{}, classify(err)
	}
	return created, nil
}

// ListTriages returns the most recent triages first, optionally for one patient.
func (s *Store) ListTriages(ctx context.Context, patientID int64, limit int) ([]model.Triage, error) {
	if limit <= 0 {
		limit = 100
	}
	q := psql.Select("id", "patient_id", "manchester_score", "appointment_id", "recorded_at").
		From("triages").
		OrderBy("recorded_at DESC", "id DESC").
		Limit(uint64(limit))
	if patientID > 0 {
		q = q.Where(sq.Eq{"patient_id": patientID})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	triages := []model.Triage{}
	for rows.Next() {
		var t model.Triage
		if err := rows.Scan(&t.ID, &t.PatientID, &t.ManchesterScore, &t.AppointmentID, &t.RecordedAt); err != nil {
			return nil, err
		}
		triages = append(triages, t)
	}
	if rows.Err() != nil {
		return nil, classify(rows.Err())
	}
	return triages, nil
}
