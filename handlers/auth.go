// Package handlers, gateway'in HTTP yüzeyini yönetir: login/logout, session
// listesi, presence sorguları ve health check.
//
// Handler'lar ince kalır: body'yi parse eder, service'i çağırır, sonucu
// pkg.JSON / pkg.Error ile döner.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pkg"
	"github.com/akinalp/mqvi-gateway/pkg/ratelimit"
	"github.com/akinalp/mqvi-gateway/services"
)

// contextKey, context'te değer taşımak için kullanılan key tipi.
type contextKey string

// ClaimsContextKey, auth middleware'ın doğrulanmış token claim'lerini
// (*models.TokenClaims) koyduğu key.
const ClaimsContextKey contextKey = "claims"

// ClaimsFrom, request context'inden claim'leri okur.
func ClaimsFrom(r *http.Request) (*models.TokenClaims, bool) {
	claims, ok := r.Context().Value(ClaimsContextKey).(*models.TokenClaims)
	return claims, ok
}

// AuthHandler, auth endpoint'lerini yöneten struct.
type AuthHandler struct {
	authService  services.AuthService
	loginLimiter *ratelimit.LoginRateLimiter
}

// NewAuthHandler, constructor.
// loginLimiter nil ise rate limiting devre dışı kalır.
func NewAuthHandler(authService services.AuthService, loginLimiter *ratelimit.LoginRateLimiter) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		loginLimiter: loginLimiter,
	}
}

// Login godoc
// POST /api/auth/login
// Body: { "username": "...", "password": "...", "device_info": "..." }
//
// Yeni bir session açar. Kullanıcının session sayısı limiti aşarsa en uzun
// süredir kullanılmayan session'lar düşürülür.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ip := ratelimit.ExtractIP(r)
	if h.loginLimiter != nil && !h.loginLimiter.Allow(ip) {
		retryAfter := h.loginLimiter.RetryAfterSeconds(ip)
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		pkg.ErrorWithMessage(w, http.StatusTooManyRequests,
			fmt.Sprintf("too many login attempts, please try again in %s",
				ratelimit.FormatRetryMessage(retryAfter)))
		return
	}

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DeviceInfo == "" {
		req.DeviceInfo = r.UserAgent()
	}

	tokens, err := h.authService.Login(r.Context(), &req, ip)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	if h.loginLimiter != nil {
		h.loginLimiter.Reset(ip)
	}

	pkg.JSON(w, http.StatusOK, tokens)
}

// Logout godoc
// POST /api/auth/logout
// Token'ın bağlı olduğu session'ı siler. Açık WebSocket bağlantıları bir
// sonraki event'lerinde session_expired alıp kapanır.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "claims not found in context")
		return
	}
	if claims.SessionID == "" {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "token is not bound to a session")
		return
	}

	if err := h.authService.Logout(r.Context(), claims.SessionID); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me godoc
// GET /api/users/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "claims not found in context")
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]any{
		"user_id":    claims.UserID,
		"username":   claims.Username,
		"role":       claims.Role,
		"session_id": claims.SessionID,
	})
}

// Sessions godoc
// GET /api/auth/sessions
// Kullanıcının aktif session'ları, en son kullanılan önce.
func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "claims not found in context")
		return
	}

	sessions, err := h.authService.ListSessions(r.Context(), claims.UserID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"current":  claims.SessionID,
	})
}

// RevokeOtherSessions godoc
// POST /api/auth/sessions/revoke-others
// Mevcut session hariç tüm session'ları siler.
func (h *AuthHandler) RevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "claims not found in context")
		return
	}

	revoked, err := h.authService.RevokeOtherSessions(r.Context(), claims.UserID, claims.SessionID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]int{"revoked": revoked})
}
