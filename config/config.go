// Package config, gateway'in tüm konfigürasyonunu environment variable'lardan okur.
// .env dosyası varsa önce o yüklenir (development kolaylığı).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Broker tipleri: fan-out adapter'ın hangi transport'u kullanacağı.
const (
	BrokerRedis = "redis"
	BrokerKafka = "kafka"
)

// Store tipleri: session/presence/oda durumunun tutulduğu yer.
// "memory" sadece tek node'luk geliştirme içindir; node'lar arası paylaşılmaz.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config, uygulamanın tüm konfigürasyon değerlerini taşır.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Store     StoreConfig
	Redis     RedisConfig
	Broker    BrokerConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig, HTTP server ayarları.
type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

// DatabaseConfig, durable collaborator (SQLite) ayarları.
type DatabaseConfig struct {
	Path string
}

// JWTConfig, access token ayarları.
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// StoreConfig, shared ephemeral store seçimi.
type StoreConfig struct {
	Type string
}

// RedisConfig, shared ephemeral store bağlantısı.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// BrokerConfig, fan-out transport seçimi.
//
// Type "redis" ise shared store'un pub/sub'ı kullanılır; "kafka" ise
// Channel bir Kafka topic'i olarak yorumlanır.
type BrokerConfig struct {
	Type         string
	Channel      string
	KafkaBrokers []string
	KafkaGroup   string // consumer group prefix: instance ID eklenir
}

// GatewayConfig, session/presence TTL'leri ve timeout'lar.
type GatewayConfig struct {
	SessionTTL         time.Duration
	MaxSessionsPerUser int
	PresenceTTL        time.Duration
	TypingTTL          time.Duration
	RoomMembersTTL     time.Duration
	HandshakeTimeout   time.Duration
	StoreOpTimeout     time.Duration
}

// RateLimitConfig, send_message ve login limitleri.
type RateLimitConfig struct {
	MessageCount    int
	MessageWindow   time.Duration
	MessageCooldown time.Duration
	LoginAttempts   int
	LoginWindow     time.Duration
}

// LogConfig, slog seviyesi ve formatı ("text" | "json").
type LogConfig struct {
	Level  string
	Format string
}

// Load, .env + environment variable'lardan Config oluşturur ve doğrular.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv, .env yüklemeden sadece process environment'ından okur.
func FromEnv() (*Config, error) {
	var errs []error
	p := parser{errs: &errs}

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        p.intVal("SERVER_PORT", 9090),
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./data/gateway.db"),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: p.durationVal("JWT_ACCESS_TOKEN_EXPIRY", 15*time.Minute),
		},
		Store: StoreConfig{
			Type: strings.ToLower(getEnv("STORE_TYPE", StoreRedis)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       p.intVal("REDIS_DB", 0),
			PoolSize: p.intVal("REDIS_POOL_SIZE", 20),
		},
		Broker: BrokerConfig{
			Type:         strings.ToLower(getEnv("BROKER_TYPE", BrokerRedis)),
			Channel:      getEnv("BROKER_CHANNEL", "mqvi:gateway:events"),
			KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			KafkaGroup:   getEnv("KAFKA_GROUP_PREFIX", "mqvi-gateway"),
		},
		Gateway: GatewayConfig{
			SessionTTL:         p.durationVal("SESSION_TTL", 24*time.Hour),
			MaxSessionsPerUser: p.intVal("MAX_SESSIONS_PER_USER", 5),
			PresenceTTL:        p.durationVal("PRESENCE_TTL", 300*time.Second),
			TypingTTL:          p.durationVal("TYPING_TTL", 5*time.Second),
			RoomMembersTTL:     p.durationVal("ROOM_MEMBERS_TTL", time.Hour),
			HandshakeTimeout:   p.durationVal("HANDSHAKE_TIMEOUT", 10*time.Second),
			StoreOpTimeout:     p.durationVal("STORE_OP_TIMEOUT", 2*time.Second),
		},
		RateLimit: RateLimitConfig{
			MessageCount:    p.intVal("MESSAGE_RATE_LIMIT", 5),
			MessageWindow:   p.durationVal("MESSAGE_RATE_WINDOW", 5*time.Second),
			MessageCooldown: p.durationVal("MESSAGE_RATE_COOLDOWN", 15*time.Second),
			LoginAttempts:   p.intVal("LOGIN_RATE_LIMIT", 10),
			LoginWindow:     p.durationVal("LOGIN_RATE_WINDOW", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate, birbirine bağlı alanları ve zorunlu değerleri kontrol eder.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid SERVER_PORT: %d", c.Server.Port))
	}

	if c.Store.Type != StoreRedis && c.Store.Type != StoreMemory {
		errs = append(errs, fmt.Errorf("unknown STORE_TYPE %q (want redis or memory)", c.Store.Type))
	}

	switch c.Broker.Type {
	case BrokerRedis:
	case BrokerKafka:
		if len(c.Broker.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required when BROKER_TYPE=kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown BROKER_TYPE %q (want redis or kafka)", c.Broker.Type))
	}
	if c.Broker.Channel == "" {
		errs = append(errs, errors.New("BROKER_CHANNEL must not be empty"))
	}

	g := c.Gateway
	if g.MaxSessionsPerUser <= 0 {
		errs = append(errs, fmt.Errorf("MAX_SESSIONS_PER_USER must be positive, got %d", g.MaxSessionsPerUser))
	}
	for name, d := range map[string]time.Duration{
		"SESSION_TTL":       g.SessionTTL,
		"PRESENCE_TTL":      g.PresenceTTL,
		"TYPING_TTL":        g.TypingTTL,
		"ROOM_MEMBERS_TTL":  g.RoomMembersTTL,
		"HANDSHAKE_TIMEOUT": g.HandshakeTimeout,
		"STORE_OP_TIMEOUT":  g.StoreOpTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	if c.RateLimit.MessageCount <= 0 {
		errs = append(errs, fmt.Errorf("MESSAGE_RATE_LIMIT must be positive, got %d", c.RateLimit.MessageCount))
	}

	return errors.Join(errs...)
}

// Addr, HTTP server'ın dinleyeceği adresi döner (ör: "0.0.0.0:9090").
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv, environment variable'ı okur, yoksa fallback değeri döner.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// parser, sayısal/süre değerlerini okurken hataları toplar;
// kullanıcı tüm hatalı değişkenleri tek seferde görür.
type parser struct {
	errs *[]error
}

func (p parser) intVal(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}

// durationVal, "90s" / "5m" gibi Go süre formatını veya düz saniye sayısını kabul eder.
func (p parser) durationVal(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
