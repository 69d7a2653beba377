package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims, access token payload'ı.
//
// SessionID doluysa token bir shared-store session'ına bağlıdır; gateway her
// authenticated event'te session'ı doğrular. Logout veya eviction sonrası token
// imza olarak geçerli olsa bile kullanılamaz.
type TokenClaims struct {
	UserID    string   `json:"user_id"`
	Username  string   `json:"username"`
	Email     string   `json:"email,omitempty"`
	Role      UserRole `json:"role,omitempty"`
	SessionID string   `json:"sid,omitempty"`
	jwt.RegisteredClaims
}
