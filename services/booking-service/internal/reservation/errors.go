package reservation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrSchedulingConflict = errors.New("scheduling conflict")
	ErrNoOp               = errors.New("nothing to update")
	ErrStoreTimeout       = errors.New("store timeout")
	ErrStoreUnavailable   = errors.New("store unavailable")
)

// ValidationError names the offending request field. It matches ErrInvalidInput.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError identifies the missing resource. It matches ErrNotFound.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError carries the ids of the appointments that overlap the request.
// IDs may be empty when the conflict was reported by the store constraint.
type ConflictError struct {
	RoomID int64
	IDs    []int64
}

func (e *ConflictError) Error() string {
	if len(e.IDs) == 0 {
		return fmt.Sprintf("room %d: interval overlaps an existing appointment", e.RoomID)
	}
	ids := make([]string, 0, len(e.IDs))
	for _, id := range e.IDs {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return fmt.Sprintf("room %d: interval overlaps appointments %s", e.RoomID, strings.Join(ids, ","))
}

func (e *ConflictError) Is(target error) bool { return target == ErrSchedulingConflict }

// storeError maps context expiry onto ErrStoreTimeout. Errors already
// classified by the store pass through unchanged.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStoreTimeout), errors.Is(err, ErrStoreUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrStoreTimeout, err)
	default:
		return err
	}
}

// outcome is the metrics label for an operation result.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSchedulingConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNoOp):
		return "noop"
	case errors.Is(err, ErrStoreTimeout):
		return "timeout"
	case errors.Is(err, ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
