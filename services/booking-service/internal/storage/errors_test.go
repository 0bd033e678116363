package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/reservation"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, reservation.ErrStoreTimeout},
		{"statement timeout", &pgconn.PgError{Code: "57014"}, reservation.ErrStoreTimeout},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), reservation.ErrStoreTimeout},
		{"connection failure", &pgconn.PgError{Code: "08006"}, reservation.ErrStoreUnavailable},
		{"shutdown", &pgconn.PgError{Code: "57P01"}, reservation.ErrStoreUnavailable},
		{"domain error kept", &reservation.NotFoundError{Resource: "room", ID: 1}, reservation.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.err); !errors.Is(got, tc.want) {
				t.Fatalf("classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}

	other := errors.New("syntax error")
	if got := classify(other); got != other {
		t.Fatalf("expected unrelated error unchanged, got %v", got)
	}
}

func TestNotFoundAndConflict(t *testing.T) {
	err := notFound(pgx.ErrNoRows, "appointment", 9)
	var nf *reservation.NotFoundError
	if !errors.As(err, &nf) || nf.ID != 9 || nf.Resource != "appointment" {
		t.Fatalf("expected NotFoundError for appointment 9, got %v", err)
	}

	if !IsConflict(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23P01"})) {
		t.Fatal("expected exclusion violation to be a conflict")
	}
	if IsConflict(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("unique violation is not a scheduling conflict")
	}

	tx := &bookingTx{roomID: 3}
	if !errors.Is(tx.writeError(&pgconn.PgError{Code: "23P01"}, 3), reservation.ErrSchedulingConflict) {
		t.Fatal("expected constraint violation to map to ErrSchedulingConflict")
	}
}
