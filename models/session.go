package models

import "time"

// Session, bir login/cihaz örneğini temsil eder. Bağlantıdan farklıdır:
// bir session'ın sıfır veya daha fazla canlı WebSocket bağlantısı olabilir.
//
// Shared store'da "session:{id}" altında JSON olarak, TTL ile tutulur.
// ExpiresAt her zaman LastActivity + session TTL'dir; CreatedAt asla değişmez.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email,omitempty"`
	Role         UserRole  `json:"role"`
	DeviceInfo   string    `json:"device_info,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired, verilen anda session'ın süresinin dolup dolmadığını döner.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionInfo, CreateSession'a login sırasında verilen cihaz/kimlik bilgisi.
type SessionInfo struct {
	Email      string
	Role       UserRole
	DeviceInfo string
	IPAddress  string
}
