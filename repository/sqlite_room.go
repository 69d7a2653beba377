package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/akinalp/mqvi-gateway/database"
	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pkg"
)

type sqliteRoomRepo struct {
	db database.TxQuerier
}

// NewSQLiteRoomRepo, RoomRepository'nin SQLite implementasyonunu döner.
func NewSQLiteRoomRepo(db database.TxQuerier) RoomRepository {
	return &sqliteRoomRepo{db: db}
}

func (r *sqliteRoomRepo) Create(ctx context.Context, room *models.Room) error {
	query := `
		INSERT INTO rooms (id, name)
		VALUES (lower(hex(randomblob(8))), ?)
		RETURNING id, created_at`

	if err := r.db.QueryRowContext(ctx, query, room.Name).Scan(&room.ID, &room.CreatedAt); err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

func (r *sqliteRoomRepo) GetByID(ctx context.Context, id string) (*models.Room, error) {
	room := &models.Room{}
	var last sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, last_message_at FROM rooms WHERE id = ?`, id,
	).Scan(&room.ID, &room.Name, &room.CreatedAt, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	if last.Valid {
		room.LastMessageAt = &last.Time
	}
	return room, nil
}

func (r *sqliteRoomRepo) AddMember(ctx context.Context, roomID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO room_members (room_id, user_id) VALUES (?, ?)`, roomID, userID)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("%w: user is already a member", pkg.ErrAlreadyExists)
		case isForeignKeyViolation(err):
			return fmt.Errorf("%w: room or user", pkg.ErrNotFound)
		}
		return fmt.Errorf("failed to add room member: %w", err)
	}
	return nil
}

func (r *sqliteRoomRepo) RemoveMember(ctx context.Context, roomID, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id = ? AND user_id = ?`, roomID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove room member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkg.ErrNotFound
	}
	return nil
}

func (r *sqliteRoomRepo) IsMember(ctx context.Context, userID, roomID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ?)`,
		roomID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check room membership: %w", err)
	}
	return exists, nil
}

func (r *sqliteRoomRepo) ListMembers(ctx context.Context, roomID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM room_members WHERE room_id = ? ORDER BY joined_at, user_id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list room members: %w", err)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan room member: %w", err)
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

func (r *sqliteRoomRepo) TouchLastMessage(ctx context.Context, roomID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET last_message_at = ? WHERE id = ?`, at.UTC(), roomID)
	if err != nil {
		return fmt.Errorf("failed to update room last_message_at: %w", err)
	}
	return nil
}
