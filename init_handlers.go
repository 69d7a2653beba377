// Package main — Handler katmanı başlatma.
//
// Handler'lar "thin" dir, sadece HTTP parse + service call + response write.
package main

import (
	"github.com/akinalp/mqvi-gateway/config"
	"github.com/akinalp/mqvi-gateway/handlers"
	"github.com/akinalp/mqvi-gateway/ws"
)

// Handlers, tüm handler instance'larını tutan container struct.
type Handlers struct {
	Auth     *handlers.AuthHandler
	Presence *handlers.PresenceHandler
	Health   *handlers.HealthHandler
	WS       *ws.Handler
}

func initHandlers(svcs *Services, limiters *RateLimiters, gw *Gateway, cfg *config.Config) *Handlers {
	return &Handlers{
		Auth:     handlers.NewAuthHandler(svcs.Auth, limiters.Login),
		Presence: handlers.NewPresenceHandler(svcs.Presence, svcs.Membership),
		Health:   handlers.NewHealthHandler(gw.Adapter, gw.Hub, gw.InstanceID, version),
		WS: ws.NewHandler(gw.Hub, svcs.Auth, svcs.Session, ws.HandlerConfig{
			HandshakeTimeout: cfg.Gateway.HandshakeTimeout,
			AllowedOrigins:   cfg.Server.CORSOrigins,
		}),
	}
}
