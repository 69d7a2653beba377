// Package main — Service katmanı başlatma.
//
// Sıralama kuralı: SessionService → AuthService'ten ÖNCE (login session açar).
// Registry service'leri aynı shared store'u ve aynı RegistryConfig'i paylaşır.
package main

import (
	"database/sql"
	"log/slog"

	"github.com/akinalp/mqvi-gateway/config"
	"github.com/akinalp/mqvi-gateway/pkg/ratelimit"
	"github.com/akinalp/mqvi-gateway/services"
	"github.com/akinalp/mqvi-gateway/store"
)

// Services, tüm service instance'larını tutan container struct.
type Services struct {
	Session    services.SessionService
	Presence   services.PresenceService
	Membership services.MembershipService
	Message    services.MessageService
	Auth       services.AuthService
}

// RateLimiters, process-local rate limiter'lar.
type RateLimiters struct {
	Login   *ratelimit.LoginRateLimiter
	Message *ratelimit.MessageRateLimiter
}

// Close, limiter'ların cleanup goroutine'lerini durdurur.
func (l *RateLimiters) Close() {
	l.Login.Close()
	l.Message.Close()
}

func initServices(db *sql.DB, repos *Repositories, st store.Store, cfg *config.Config, logger *slog.Logger) *Services {
	registryCfg := services.RegistryConfigFrom(cfg.Gateway)

	sessionService := services.NewSessionService(st, registryCfg, logger)

	return &Services{
		Session:    sessionService,
		Presence:   services.NewPresenceService(st, registryCfg, logger),
		Membership: services.NewMembershipService(repos.Room, st, registryCfg, logger),
		Message:    services.NewMessageService(db, repos.Message, logger),
		Auth: services.NewAuthService(
			repos.User,
			sessionService,
			cfg.JWT.Secret,
			cfg.JWT.AccessTokenExpiry,
			logger,
		),
	}
}

func initRateLimiters(cfg *config.Config) *RateLimiters {
	return &RateLimiters{
		Login: ratelimit.NewLoginRateLimiter(cfg.RateLimit.LoginAttempts, cfg.RateLimit.LoginWindow),
		Message: ratelimit.NewMessageRateLimiter(
			cfg.RateLimit.MessageCount,
			cfg.RateLimit.MessageWindow,
			cfg.RateLimit.MessageCooldown,
		),
	}
}
