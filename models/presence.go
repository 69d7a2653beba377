package models

import "time"

// UserStatus, kullanıcının görünür durumu.
type UserStatus string

const (
	UserStatusOnline  UserStatus = "online"
	UserStatusIdle    UserStatus = "idle"
	UserStatusDND     UserStatus = "dnd"
	UserStatusOffline UserStatus = "offline"
)

// Valid, client'ın update_status ile gönderebileceği değerlerden biri mi.
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusOnline, UserStatusIdle, UserStatusDND, UserStatusOffline:
		return true
	}
	return false
}

// Presence, "presence:{userId}" altındaki kayıt (TTL 300s).
// Kayıt yoksa kullanıcı offline kabul edilir.
type Presence struct {
	UserID   string     `json:"user_id"`
	Status   UserStatus `json:"status"`
	LastSeen time.Time  `json:"last_seen"`
}

// TypingIndicator, bir odada yazmakta olan kullanıcı (TTL 5s).
type TypingIndicator struct {
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Timestamp time.Time `json:"timestamp"`
}
