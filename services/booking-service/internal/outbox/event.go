package outbox

import (
	"errors"
	"time"

	"github.com/md-rashed-zaman/roombook/libs/notify"
	otelx "github.com/md-rashed-zaman/roombook/libs/otel"
)

// Event is the domain event envelope written to the outbox table.
// The topic name equals EventType (one topic per event type).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Record is an outbox row awaiting delivery.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Trace         otelx.TraceContext
	Attempts      int
	CreatedAt     time.Time
}

// Outcome reports what happened to one record in a batch. A deferred record
// was refused before reaching the channel and keeps its attempt count.
type Outcome struct {
	Record       Record
	Err          error
	DeadLettered bool
	Deferred     bool
}

// settle decides the fate of rec after one publish.
func settle(rec Record, err error, maxAttempts int) Outcome {
	switch {
	case err == nil:
		return Outcome{Record: rec}
	case errors.Is(err, notify.ErrChannelUnavailable):
		return Outcome{Record: rec, Err: err, Deferred: true}
	default:
		return Outcome{Record: rec, Err: err, DeadLettered: rec.Attempts+1 >= maxAttempts}
	}
}

type BatchResult struct {
	Outcomes []Outcome
}

func (b BatchResult) Published() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}
