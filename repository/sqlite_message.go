package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/akinalp/mqvi-gateway/database"
	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pkg"
)

type sqliteMessageRepo struct {
	db database.TxQuerier
}

// NewSQLiteMessageRepo, MessageRepository'nin SQLite implementasyonunu döner.
// Transaction içinde *sql.Tx ile de oluşturulabilir.
func NewSQLiteMessageRepo(db database.TxQuerier) MessageRepository {
	return &sqliteMessageRepo{db: db}
}

func (r *sqliteMessageRepo) Create(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (id, room_id, user_id, content, type, reply_to_id)
		VALUES (lower(hex(randomblob(8))), ?, ?, ?, ?, ?)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		msg.RoomID, msg.UserID, msg.Content, msg.Type, msg.ReplyToID,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: room, user or reply target does not exist", pkg.ErrBadRequest)
		}
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *sqliteMessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	query := `
		SELECT m.id, m.room_id, m.user_id, COALESCE(u.username, ''), m.content, m.type, m.reply_to_id, m.created_at
		FROM messages m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.id = ?`

	msg := &models.Message{}
	var replyTo sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID, &msg.RoomID, &msg.UserID, &msg.Username, &msg.Content, &msg.Type, &replyTo, &msg.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if replyTo.Valid {
		msg.ReplyToID = &replyTo.String
	}
	return msg, nil
}
