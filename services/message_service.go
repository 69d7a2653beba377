package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/akinalp/mqvi-gateway/database"
	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pkg"
	"github.com/akinalp/mqvi-gateway/repository"
)

// MessageService, send_message ve mark_as_read için durable tarafı.
type MessageService interface {
	// Create, isteği doğrular ve mesajı kalıcı yazar; oda last_message_at'i
	// aynı transaction'da güncellenir.
	Create(ctx context.Context, userID, username string, req *models.SendMessageRequest) (*models.Message, error)
	// RoomOf, mesajın ait olduğu odayı döner.
	RoomOf(ctx context.Context, messageID string) (string, error)
}

type messageService struct {
	db      *sql.DB
	msgRepo repository.MessageRepository
	logger  *slog.Logger
}

// NewMessageService, constructor.
func NewMessageService(db *sql.DB, msgRepo repository.MessageRepository, logger *slog.Logger) MessageService {
	return &messageService{
		db:      db,
		msgRepo: msgRepo,
		logger:  logger.With("component", "message"),
	}
}

func (s *messageService) Create(ctx context.Context, userID, username string, req *models.SendMessageRequest) (*models.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	msg := &models.Message{
		RoomID:    req.RoomID,
		UserID:    userID,
		Username:  username,
		Content:   req.Content,
		Type:      req.Type,
		ReplyToID: req.ReplyToID,
	}

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := repository.NewSQLiteMessageRepo(tx).Create(ctx, msg); err != nil {
			return err
		}
		return repository.NewSQLiteRoomRepo(tx).TouchLastMessage(ctx, msg.RoomID, msg.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *messageService) RoomOf(ctx context.Context, messageID string) (string, error) {
	msg, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return "", err
	}
	return msg.RoomID, nil
}
