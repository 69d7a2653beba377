// Package repository, durable collaborator'ın veritabanı erişim katmanı.
//
// Service'ler ve gateway bu interface'lere bağımlıdır; SQLite implementasyonları
// sqlite_*.go dosyalarındadır. Kayıt bulunamazsa pkg.ErrNotFound döner.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/akinalp/mqvi-gateway/models"
)

// UserRepository, login ve token üretimi için kullanıcı okuma.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// RoomRepository, oda ve üyelik sorguları.
//
// IsMember yetkilendirme için tek doğru kaynaktır; ListMembers sonucu
// shared store'da RoomMembershipCache olarak saklanır.
type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	GetByID(ctx context.Context, id string) (*models.Room, error)
	AddMember(ctx context.Context, roomID, userID string) error
	RemoveMember(ctx context.Context, roomID, userID string) error
	IsMember(ctx context.Context, userID, roomID string) (bool, error)
	ListMembers(ctx context.Context, roomID string) ([]string, error)
	TouchLastMessage(ctx context.Context, roomID string, at time.Time) error
}

// MessageRepository, mesaj kalıcılığı.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
}

func isUniqueViolation(err error) bool {
	return err != nil && !errors.Is(err, sql.ErrNoRows) &&
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
