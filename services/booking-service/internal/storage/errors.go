package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/reservation"
)

const (
	codeExclusionViolation  = "23P01"
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeQueryCanceled       = "57014"
	codeLockNotAvailable    = "55P03"
	codeDeadlockDetected    = "40P01"
	codeAdminShutdown       = "57P01"
	codeCannotConnectNow    = "57P03"
	codeTooManyConnections  = "53300"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsConflict reports a violation of the appointments no-overlap constraint.
func IsConflict(err error) bool {
	return pgCode(err) == codeExclusionViolation
}

func IsDuplicate(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

func IsForeignKey(err error) bool {
	return pgCode(err) == codeForeignKeyViolation
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsTimeout covers context deadlines, statement/lock timeouts and deadlock aborts.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch pgCode(err) {
	case codeQueryCanceled, codeLockNotAvailable, codeDeadlockDetected:
		return true
	}
	return false
}

func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	code := pgCode(err)
	if len(code) == 5 && code[:2] == "08" {
		return true
	}
	switch code {
	case codeAdminShutdown, codeCannotConnectNow, codeTooManyConnections:
		return true
	}
	return false
}

// classify maps transient infrastructure failures onto the reservation
// sentinels and leaves everything else untouched.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, reservation.ErrNotFound),
		errors.Is(err, reservation.ErrSchedulingConflict),
		errors.Is(err, reservation.ErrInvalidInput),
		errors.Is(err, reservation.ErrNoOp),
		errors.Is(err, reservation.ErrStoreTimeout),
		errors.Is(err, reservation.ErrStoreUnavailable):
		return err
	case IsTimeout(err):
		return fmt.Errorf("%w: %v", reservation.ErrStoreTimeout, err)
	case IsUnavailable(err):
		return fmt.Errorf("%w: %v", reservation.ErrStoreUnavailable, err)
	default:
		return err
	}
}

func notFound(err error, resource string, id int64) error {
	if IsNotFound(err) {
		return &reservation.NotFoundError{Resource: resource, ID: id}
	}
	return classify(err)
}
