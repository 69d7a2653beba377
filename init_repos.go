// Package main — Repository katmanı başlatma.
//
// initRepositories, durable collaborator'ın repository'lerini oluşturur.
package main

import (
	"database/sql"

	"github.com/akinalp/mqvi-gateway/repository"
)

// Repositories, tüm repository instance'larını tutan container struct.
type Repositories struct {
	User    repository.UserRepository
	Room    repository.RoomRepository
	Message repository.MessageRepository
}

// initRepositories, tüm repository'leri tek DB bağlantısı ile oluşturur.
func initRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		User:    repository.NewSQLiteUserRepo(db),
		Room:    repository.NewSQLiteRoomRepo(db),
		Message: repository.NewSQLiteMessageRepo(db),
	}
}
