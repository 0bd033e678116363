package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/roombook/libs/metrics"
)

// Register mounts the booking API on mux. Each route is instrumented under its pattern.
func Register(mux *http.ServeMux, m *metrics.Metrics, bookings *BookingHandler, rooms *RoomHandler, triages *TriageHandler) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, m.InstrumentHandler(pattern, h))
	}

	handle("POST /api/v1/rooms", rooms.Create)
	handle("GET /api/v1/rooms", rooms.List)
	handle("GET /api/v1/rooms/{id}", rooms.Get)
	handle("GET /api/v1/rooms/{id}/slots", bookings.Slots)

	handle("POST /api/v1/appointments", bookings.Create)
	handle("GET /api/v1/appointments", bookings.List)
	handle("GET /api/v1/appointments/{id}", bookings.Get)
	handle("PATCH /api/v1/appointments/{id}", bookings.Reschedule)

	handle("POST /api/v1/triages", triages.Create)
	handle("GET /api/v1/triages", triages.List)
}
