// Package models, gateway'in domain modellerini tanımlar.
//
// İki tür model vardır:
//   - Durable (SQLite): User, Room, Message
//   - Ephemeral (shared store, TTL'li): Session, Presence, TypingIndicator
package models

import (
	"fmt"
	"strings"
	"time"
)

// UserRole, token ve session'da taşınan kaba yetki seviyesi.
type UserRole string

const (
	RoleMember UserRole = "member"
	RoleAdmin  UserRole = "admin"
)

// User, durable kullanıcı kaydı. Kullanıcılar gateway dışında oluşturulur;
// gateway sadece login için okur.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        *string   `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// LoginRequest, POST /api/auth/login gövdesi.
type LoginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DeviceInfo string `json:"device_info"`
}

// Validate, zorunlu alanları kontrol eder.
func (r *LoginRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	if r.Username == "" {
		return fmt.Errorf("username is required")
	}
	if r.Password == "" {
		return fmt.Errorf("password is required")
	}
	if len(r.DeviceInfo) > 256 {
		r.DeviceInfo = r.DeviceInfo[:256]
	}
	return nil
}
