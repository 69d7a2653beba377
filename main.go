// Package main, mqvi gateway uygulamasının giriş noktasıdır.
//
// Bu dosyanın görevi: Dependency Injection "wire-up":
//  1. Config'i yükle
//  2. Logger'ı kur
//  3. Database'i başlat
//  4. Shared store'a bağlan
//  5. Repository'leri ve service'leri oluştur
//  6. Fan-out transport + adapter + Hub
//  7. Handler'ları ve route'ları bağla
//  8. CORS yapılandır
//  9. HTTP Server'ı başlat
//  10. Graceful shutdown
//
// Global değişken YOK. Her şey bu fonksiyonda oluşturulup birbirine bağlanıyor.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/akinalp/mqvi-gateway/config"
	"github.com/akinalp/mqvi-gateway/database"
	"github.com/akinalp/mqvi-gateway/pkg/logger"
)

// version, build sırasında -ldflags "-X main.version=..." ile set edilir.
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// ─── 1. Config ───
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// ─── 2. Logger ───
	instanceID := uuid.NewString()
	log := logger.New(cfg.Log.Level, cfg.Log.Format).With("instance", instanceID)
	slog.SetDefault(log)
	log.Info("gateway starting", "version", version, "port", cfg.Server.Port, "broker", cfg.Broker.Type)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ─── 3. Database ───
	db, err := database.New(cfg.Database.Path, database.Migrations(), log)
	if err != nil {
		return err
	}
	defer db.Close()

	// ─── 4. Shared Store ───
	st, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	if cfg.Store.Type == config.StoreMemory {
		log.Warn("using in-memory store; state is not shared across nodes")
	} else {
		log.Info("shared store connected", "addr", cfg.Redis.Addr)
	}

	// ─── 5. Repositories & Services ───
	repos := initRepositories(db.Conn)
	svcs := initServices(db.Conn, repos, st, cfg, log)
	limiters := initRateLimiters(cfg)
	defer limiters.Close()

	// ─── 6. Fan-out + Hub ───
	transport, err := initTransport(cfg, st, instanceID, log)
	if err != nil {
		return err
	}
	gw, err := initGateway(ctx, cfg, instanceID, transport, svcs, limiters, log)
	if err != nil {
		_ = transport.Close()
		return err
	}

	// ─── 7. Handlers & Routes ───
	h := initHandlers(svcs, limiters, gw, cfg)
	mux := http.NewServeMux()
	initRoutes(mux, h, svcs)

	// ─── 8. CORS ───
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	// ─── 9. HTTP Server ───
	// WriteTimeout yok: hijack edilen WebSocket bağlantıları kendi
	// deadline'larını yönetir.
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           corsHandler.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ─── 10. Graceful Shutdown ───
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error("server error", "error", err)
		}
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Önce yeni bağlantıları durdur, sonra açık WebSocket'leri kapat
	// (her kullanıcı için offline yayını bu adımda çıkar).
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced http shutdown", "error", err)
	}
	gw.Shutdown(shutdownCtx, log)

	log.Info("gateway stopped gracefully")
	return nil
}
