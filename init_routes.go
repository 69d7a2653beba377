// Package main — HTTP route registration.
//
// Middleware chain helper'ı burada tanımlıdır:
//   - auth: JWT token + session doğrulaması
package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akinalp/mqvi-gateway/middleware"
)

// initRoutes, middleware chain'i kurar ve tüm endpoint'leri mux'a bağlar.
//
// Route sıralama kuralı: Literal path'ler parametrik path'lerden ÖNCE tanımlanmalı.
func initRoutes(mux *http.ServeMux, h *Handlers, svcs *Services) {
	authMiddleware := middleware.NewAuthMiddleware(svcs.Auth, svcs.Session)

	auth := func(handler http.HandlerFunc) http.Handler {
		return authMiddleware.Require(handler)
	}

	// ─── Health & Metrics ───
	mux.HandleFunc("GET /api/health", h.Health.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	// ─── Auth ───
	mux.HandleFunc("POST /api/auth/login", h.Auth.Login)
	mux.Handle("POST /api/auth/logout", auth(h.Auth.Logout))
	mux.Handle("GET /api/auth/sessions", auth(h.Auth.Sessions))
	mux.Handle("POST /api/auth/sessions/revoke-others", auth(h.Auth.RevokeOtherSessions))
	mux.Handle("GET /api/users/me", auth(h.Auth.Me))

	// ─── Presence ───
	mux.Handle("GET /api/presence/{userId}", auth(h.Presence.GetPresence))
	mux.Handle("GET /api/rooms/{roomId}/state", auth(h.Presence.RoomState))

	// WebSocket: tarayıcılar upgrade sırasında custom header gönderemediği
	// için token ?token= ile de kabul edilir. Doğrulamayı handler kendisi yapar.
	mux.HandleFunc("GET /ws", h.WS.HandleConnection)
}
