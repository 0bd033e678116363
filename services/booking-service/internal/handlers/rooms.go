package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/reservation"
)

type RoomStore interface {
	CreateRoom(ctx context.Context, name, roomType string) (model.Room, error)
	GetRoom(ctx context.Context, id int64) (model.Room, error)
	ListRooms(ctx context.Context) ([]model.Room, error)
}

type RoomHandler struct {
	rooms  RoomStore
	logger *slog.Logger
}

func NewRoomHandler(rooms RoomStore, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, logger: logger}
}

type createRoomRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type roomItem struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
}

func toRoomItem(r model.Room) roomItem {
	return roomItem{ID: r.ID, Name: r.Name, Type: r.Type, CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339)}
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Type = strings.TrimSpace(req.Type)
	if req.Name == "" {
		writeError(w, r, h.logger, &reservation.ValidationError{Field: "name", Reason: "required"})
		return
	}
	if req.Type == "" {
		writeError(w, r, h.logger, &reservation.ValidationError{Field: "type", Reason: "required"})
		return
	}

	room, err := h.rooms.CreateRoom(r.Context(), req.Name, req.Type)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoomItem(room))
}

func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	room, err := h.rooms.GetRoom(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomItem(room))
}

func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.rooms.ListRooms(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]roomItem, 0, len(rooms))
	for _, room := range rooms {
		items = append(items, toRoomItem(room))
	}
	writeJSON(w, http.StatusOK, items)
}
