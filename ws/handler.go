package ws

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/akinalp/mqvi-gateway/metrics"
	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pkg"
)

// TokenVerifier, handshake'te access token'ı doğrular.
//
// services.AuthService bu interface'i karşılar; ws paketi services'e
// bağımlı olmaz.
type TokenVerifier interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
}

// HandlerConfig, handshake ayarları.
type HandlerConfig struct {
	// HandshakeTimeout, token + session doğrulaması ve upgrade için üst sınır.
	HandshakeTimeout time.Duration
	// AllowedOrigins boşsa veya "*" içeriyorsa tüm origin'ler kabul edilir.
	AllowedOrigins []string
}

// Handler, WebSocket bağlantı isteklerini işleyen HTTP handler'ı.
type Handler struct {
	hub      *Hub
	tokens   TokenVerifier
	sessions SessionValidator
	cfg      HandlerConfig
	upgrader websocket.Upgrader
}

// NewHandler, yeni bir WebSocket handler oluşturur. sessions nil ise
// token'daki session id kontrol edilmez.
func NewHandler(hub *Hub, tokens TokenVerifier, sessions SessionValidator, cfg HandlerConfig) *Handler {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	h := &Handler{
		hub:      hub,
		tokens:   tokens,
		sessions: sessions,
		cfg:      cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: cfg.HandshakeTimeout,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

// bearerToken, token'ı Authorization header'ından veya (tarayıcılar WebSocket
// isteğine header ekleyemediği için) "token" query parametresinden okur.
//
//	ws://server/ws?token=JWT_TOKEN
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// HandleConnection, isteği doğrular, WebSocket'e yükseltir ve client'ı Hub'a kaydeder.
//
// Flow:
//  1. Token'ı al ve doğrula (başarısızsa 401, hiçbir state oluşmaz)
//  2. Token bir session'a bağlıysa session'ı doğrula (yoksa 401, store erişilemezse 503)
//  3. HTTP → WebSocket upgrade
//  4. ready event'ini buffer'a koy, Hub'a kaydet (presence online)
//  5. WritePump goroutine'i + bu goroutine'de ReadPump
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		metrics.HandshakeRejections.WithLabelValues("missing_token").Inc()
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.HandshakeTimeout)
	defer cancel()

	claims, err := h.tokens.ValidateAccessToken(token)
	if err != nil {
		metrics.HandshakeRejections.WithLabelValues("invalid_token").Inc()
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	if claims.SessionID != "" && h.sessions != nil {
		if _, err := h.sessions.ValidateSession(ctx, claims.SessionID); err != nil {
			if errors.Is(err, pkg.ErrNotFound) {
				metrics.HandshakeRejections.WithLabelValues("session_expired").Inc()
				http.Error(w, "session expired", http.StatusUnauthorized)
				return
			}
			metrics.HandshakeRejections.WithLabelValues("store_unavailable").Inc()
			h.hub.logger.Warn("session check failed during handshake", "user_id", claims.UserID, "error", err)
			http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.HandshakeRejections.WithLabelValues("upgrade").Inc()
		h.hub.logger.Warn("upgrade failed", "user_id", claims.UserID, "error", err)
		return
	}

	client := newClient(uuid.NewString(), h.hub, conn, claims)
	client.sendEvent(Event{Op: OpReady, Data: ReadyData{
		ConnectionID: client.id,
		InstanceID:   h.hub.InstanceID(),
		UserID:       claims.UserID,
		Username:     claims.Username,
		Role:         claims.Role,
		SessionID:    claims.SessionID,
	}})

	h.hub.register(ctx, client)
	cancel()

	// ReadPump bu goroutine'de çalışmalı, aksi halde HTTP handler hemen döner.
	go client.WritePump()
	client.ReadPump()
}
