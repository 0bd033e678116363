package lifecycle

import (
	"fmt"
	"strings"
)

type Status string

const (
	Scheduled   Status = "scheduled"
	Rescheduled Status = "rescheduled"
	Completed   Status = "completed"
	Cancelled   Status = "cancelled"
)

// Initial is the status of every new appointment.
const Initial = Scheduled

var transitions = map[Status][]Status{
	Scheduled:   {Scheduled, Rescheduled, Completed, Cancelled},
	Rescheduled: {Scheduled, Rescheduled, Completed, Cancelled},
	Completed:   {Completed},
	Cancelled:   {Cancelled},
}

// Parse accepts only the known statuses, case-insensitively.
func Parse(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := transitions[s]; !ok {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether an appointment in from may move to to.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Blocks reports whether an appointment in this status occupies its room.
func (s Status) Blocks() bool {
	return s != Cancelled
}

// Terminal statuses accept no further changes other than a repeat of themselves.
func (s Status) Terminal() bool {
	return s == Completed || s == Cancelled
}

// AfterMove is the status an appointment takes when its interval changes
// without an explicit status in the request.
func AfterMove(current Status) Status {
	if current == Scheduled {
		return Rescheduled
	}
	return current
}

func (s Status) String() string { return string(s) }
