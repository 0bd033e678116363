package reservation

import (
	"encoding/json"
	"strconv"

	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/outbox"
)

const (
	TopicAppointmentBooked      = "booking.appointment.booked.v1"
	TopicAppointmentRescheduled = "booking.appointment.rescheduled.v1"
)

type AppointmentBooked struct {
	AppointmentID int64  `json:"appointment_id"`
	PatientID     int64  `json:"patient_id"`
	RoomID        int64  `json:"room_id"`
	StartTime     string `json:"start_time"`
}

type AppointmentRescheduled struct {
	AppointmentID int64  `json:"appointment_id"`
	Status        string `json:"status"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
}

func bookedEvent(appt model.Appointment) (outbox.Event, error) {
	return appointmentEvent(appt.ID, TopicAppointmentBooked, AppointmentBooked{
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		RoomID:        appt.RoomID,
		StartTime:     model.FormatTimestamp(appt.StartTime),
	})
}

func rescheduledEvent(appt model.Appointment) (outbox.Event, error) {
	return appointmentEvent(appt.ID, TopicAppointmentRescheduled, AppointmentRescheduled{
		AppointmentID: appt.ID,
		Status:        appt.Status,
		StartTime:     model.FormatTimestamp(appt.StartTime),
		EndTime:       model.FormatTimestamp(appt.EndTime),
	})
}

func appointmentEvent(id int64, eventType string, payload any) (outbox.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		AggregateType: "appointment",
		AggregateID:   strconv.FormatInt(id, 10),
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
