// Package main — Gateway katmanı başlatma: shared store, fan-out transport,
// adapter ve Hub.
package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/akinalp/mqvi-gateway/config"
	"github.com/akinalp/mqvi-gateway/pubsub"
	"github.com/akinalp/mqvi-gateway/store"
	"github.com/akinalp/mqvi-gateway/ws"
)

// Gateway, process'in gerçek zamanlı katmanını bir arada tutar.
type Gateway struct {
	InstanceID string
	Transport  pubsub.Transport
	Adapter    *pubsub.Adapter
	Hub        *ws.Hub
}

// initStore, STORE_TYPE'a göre shared store'u kurar.
func initStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Store.Type == config.StoreMemory {
		return store.NewMemoryStore(), nil
	}
	return store.NewRedisStore(ctx, store.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
}

// initTransport, BROKER_TYPE'a göre fan-out transport'unu seçer.
// Kafka'da consumer group instance başına benzersizdir; her gateway her
// envelope'u almalıdır.
func initTransport(cfg *config.Config, st store.Store, instanceID string, logger *slog.Logger) (pubsub.Transport, error) {
	switch cfg.Broker.Type {
	case config.BrokerKafka:
		return pubsub.NewKafkaTransport(pubsub.KafkaOptions{
			Brokers: cfg.Broker.KafkaBrokers,
			GroupID: cfg.Broker.KafkaGroup + "-" + instanceID,
		}, logger)
	case config.BrokerRedis:
		return pubsub.NewStoreTransport(st), nil
	default:
		return nil, fmt.Errorf("unknown broker type %q", cfg.Broker.Type)
	}
}

// initGateway, adapter'ı başlatır, Hub'ı kurar ve Hub'ı fan-out kanalına abone eder.
//
// Abonelik Hub oluşturulduktan SONRA yapılır: karşı node'lardan gelen
// envelope'lar doğrudan hub.HandleEnvelope'a düşer.
func initGateway(
	ctx context.Context,
	cfg *config.Config,
	instanceID string,
	transport pubsub.Transport,
	svcs *Services,
	limiters *RateLimiters,
	logger *slog.Logger,
) (*Gateway, error) {
	adapter := pubsub.New(transport, pubsub.Options{Origin: instanceID}, logger)
	adapter.Start()

	hub := ws.NewHub(ws.HubConfig{
		InstanceID:              instanceID,
		Channel:                 cfg.Broker.Channel,
		PresenceRefreshInterval: cfg.Gateway.PresenceTTL / 3,
		OpTimeout:               cfg.Gateway.StoreOpTimeout * 2,
	}, ws.HubDeps{
		Sessions: svcs.Session,
		Presence: svcs.Presence,
		Rooms:    svcs.Membership,
		Messages: svcs.Message,
		Fanout:   adapter,
		Limiter:  limiters.Message,
	}, logger)

	if err := adapter.Subscribe(ctx, cfg.Broker.Channel, hub.HandleEnvelope); err != nil {
		_ = adapter.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", cfg.Broker.Channel, err)
	}

	go hub.Run(ctx)

	return &Gateway{
		InstanceID: instanceID,
		Transport:  transport,
		Adapter:    adapter,
		Hub:        hub,
	}, nil
}

// Shutdown, bağlantıları kapatır, sonra adapter ve transport'u durdurur.
// Sıra önemli: Hub'ın offline yayınları adapter kapanmadan kuyruğa girmeli.
func (g *Gateway) Shutdown(ctx context.Context, logger *slog.Logger) {
	if err := g.Hub.Shutdown(ctx); err != nil {
		logger.Warn("hub shutdown incomplete", "error", err)
	}
	if err := g.Adapter.Close(); err != nil {
		logger.Warn("adapter close failed", "error", err)
	}
	if err := g.Transport.Close(); err != nil {
		logger.Warn("transport close failed", "error", err)
	}
}
