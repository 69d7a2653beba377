// Package middleware, HTTP request pipeline'ına eklenen ara katmanları barındırır.
//
// Middleware bir fonksiyondur: func(next http.Handler) http.Handler.
// Kendi işini yapar, hata yoksa next'i çağırır.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/akinalp/mqvi-gateway/handlers"
	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pkg"
)

// TokenVerifier, access token doğrulaması.
type TokenVerifier interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
}

// SessionValidator, token'ın bağlı olduğu session'ı doğrular ve yeniler.
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID string) (*models.Session, error)
}

// AuthMiddleware, JWT + session doğrulama middleware'ı.
type AuthMiddleware struct {
	tokens   TokenVerifier
	sessions SessionValidator
}

// NewAuthMiddleware, constructor.
func NewAuthMiddleware(tokens TokenVerifier, sessions SessionValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, sessions: sessions}
}

// Require, geçerli bir Bearer token zorunlu kılar.
//
// Flow:
//  1. "Authorization: Bearer <token>" header'ını oku
//  2. Token'ı doğrula
//  3. Token bir session'a bağlıysa session'ı doğrula (logout/eviction sonrası 401)
//  4. Claim'leri context'e ekle, next'i çağır
func (m *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "authorization header required")
			return
		}

		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "invalid authorization format, use: Bearer <token>")
			return
		}

		claims, err := m.tokens.ValidateAccessToken(tokenString)
		if err != nil {
			pkg.Error(w, err)
			return
		}

		if claims.SessionID != "" {
			if _, err := m.sessions.ValidateSession(r.Context(), claims.SessionID); err != nil {
				if errors.Is(err, pkg.ErrNotFound) {
					pkg.ErrorWithMessage(w, http.StatusUnauthorized, "session expired")
					return
				}
				pkg.Error(w, err)
				return
			}
		}

		ctx := context.WithValue(r.Context(), handlers.ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
