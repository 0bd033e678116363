package storage

import (
	"context"

	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/model"
)

func (s *Store) CreateRoom(ctx context.Context, name, roomType string) (model.Room, error) {
	var room model.Room
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rooms (name, type)
		VALUES ($1, $2)
		RETURNING id, name, type, created_at
	`, name, roomType).Scan(&room.ID, &room.Name, &room.Type, &room.CreatedAt)
	if err != nil {
		return model.Room{}, classify(err)
	}
	return room, nil
}

func (s *Store) GetRoom(ctx context.Context, id int64) (model.Room, error) {
	var room model.Room
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, type, created_at
		FROM rooms
		WHERE id = $1
	`, id).Scan(&room.ID, &room.Name, &room.Type, &room.CreatedAt)
	if err != nil {
		return model.Room{}, notFound(err, "room", id)
	}
	return room, nil
}

func (s *Store) ListRooms(ctx context.Context) ([]model.Room, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, type, created_at
		FROM rooms
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	rooms := []model.Room{}
	for rows.Next() {
		var room model.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.Type, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if rows.Err() != nil {
		return nil, classify(rows.Err())
	}
	return rooms, nil
}
