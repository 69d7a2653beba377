package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, BrokerRedis, cfg.Broker.Type)
	assert.Equal(t, StoreRedis, cfg.Store.Type)
	assert.Equal(t, 5, cfg.Gateway.MaxSessionsPerUser)
	assert.Equal(t, 300*time.Second, cfg.Gateway.PresenceTTL)
	assert.Equal(t, 5*time.Second, cfg.Gateway.TypingTTL)
	assert.Equal(t, time.Hour, cfg.Gateway.RoomMembersTTL)
	assert.Equal(t, 24*time.Hour, cfg.Gateway.SessionTTL)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SERVER_PORT", "8081")
	t.Setenv("BROKER_TYPE", "Kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("TYPING_TTL", "3")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, BrokerKafka, cfg.Broker.Type)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.KafkaBrokers)
	assert.Equal(t, 2*time.Hour, cfg.Gateway.SessionTTL)
	assert.Equal(t, 3*time.Second, cfg.Gateway.TypingTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestFromEnv_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestFromEnv_CollectsParseErrors(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("SERVER_PORT", "abc")
	t.Setenv("STORE_OP_TIMEOUT", "soon")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERVER_PORT")
	assert.Contains(t, err.Error(), "STORE_OP_TIMEOUT")
}

func TestValidate_UnknownBroker(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("BROKER_TYPE", "nats")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BROKER_TYPE")
}

func TestFromEnv_MemoryStore(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("STORE_TYPE", "Memory")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store.Type)
}

func TestValidate_UnknownStore(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("STORE_TYPE", "etcd")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_TYPE")
}

func TestValidate_NonPositiveCap(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("MAX_SESSIONS_PER_USER", "0")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_SESSIONS_PER_USER")
}
