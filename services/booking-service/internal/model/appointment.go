package model

import "time"

// TimestampLayout is the wire format for appointment times. Values carry no
// zone and are handled as UTC wall clock.
const TimestampLayout = "2006-01-02T15:04:05"

type Room struct {
	ID        int64
	Name      string
	Type      string
	CreatedAt time.Time
}

type Appointment struct {
	ID        int64
	PatientID int64
	StaffID   int64
	RoomID    int64
	StartTime time.Time
	EndTime   time.Time
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Triage struct {
	ID              int64
	PatientID       int64
	ManchesterScore int
	AppointmentID   *int64
	RecordedAt      time.Time
}

// AppointmentFilter narrows ListAppointments. Zero values mean "any".
type AppointmentFilter struct {
	Date    time.Time
	StaffID int64
	RoomID  int64
}

// ParseTimestamp parses the wire format into a UTC time.
func ParseTimestamp(raw string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, raw, time.UTC)
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
