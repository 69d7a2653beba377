// Package services, gateway'in iş kurallarını barındırır.
//
// Registry servisleri (Session, Presence, Membership) ephemeral state'i shared
// store'da tutar; Auth ve Message servisleri durable collaborator'a
// (repository) bağlanır. Servisler http.Request veya websocket bilmez.
//
// Shared store key'leri:
//
//	session:{id}              JSON Session, TTL = SessionTTL
//	user_sessions:{userId}    set, kullanıcının session id'leri
//	presence:{userId}         JSON Presence, TTL = PresenceTTL
//	presence_nodes:{userId}   set, canlı bağlantısı olan instance id'leri
//	typing:{roomId}           hash userId -> {user_name, timestamp}, TTL = TypingTTL
//	room_members:{roomId}     set, durable üyelik cache'i, TTL = RoomMembersTTL
//	unread:{userId}:{roomId}  integer, TTL yok
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/akinalp/mqvi-gateway/config"
	"github.com/akinalp/mqvi-gateway/metrics"
	"github.com/akinalp/mqvi-gateway/pkg"
)

// RegistryConfig, registry servislerinin TTL ve limit ayarları.
type RegistryConfig struct {
	SessionTTL         time.Duration
	MaxSessionsPerUser int
	PresenceTTL        time.Duration
	TypingTTL          time.Duration
	RoomMembersTTL     time.Duration
	OpTimeout          time.Duration

	// Now nil ise time.Now kullanılır. Testler MemoryStore ile aynı saati verir.
	Now func() time.Time
}

// RegistryConfigFrom, uygulama config'inden registry ayarlarını çıkarır.
func RegistryConfigFrom(cfg config.GatewayConfig) RegistryConfig {
	return RegistryConfig{
		SessionTTL:         cfg.SessionTTL,
		MaxSessionsPerUser: cfg.MaxSessionsPerUser,
		PresenceTTL:        cfg.PresenceTTL,
		TypingTTL:          cfg.TypingTTL,
		RoomMembersTTL:     cfg.RoomMembersTTL,
		OpTimeout:          cfg.StoreOpTimeout,
	}
}

func (c RegistryConfig) withDefaults() RegistryConfig {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.MaxSessionsPerUser <= 0 {
		c.MaxSessionsPerUser = 5
	}
	if c.PresenceTTL <= 0 {
		c.PresenceTTL = 300 * time.Second
	}
	if c.TypingTTL <= 0 {
		c.TypingTTL = 5 * time.Second
	}
	if c.RoomMembersTTL <= 0 {
		c.RoomMembersTTL = time.Hour
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 2 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// opContext, tek bir store çağrısını OpTimeout ile sınırlar.
func (c RegistryConfig) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.OpTimeout)
}

// storeError, store hatasını pkg.ErrStoreUnavailable ile sarar.
func storeError(op string, err error) error {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	return fmt.Errorf("%w: %s: %v", pkg.ErrStoreUnavailable, op, err)
}

func sessionKey(id string) string           { return "session:" + id }
func userSessionsKey(userID string) string  { return "user_sessions:" + userID }
func presenceKey(userID string) string      { return "presence:" + userID }
func presenceNodesKey(userID string) string { return "presence_nodes:" + userID }
func typingKey(roomID string) string        { return "typing:" + roomID }
func roomMembersKey(roomID string) string   { return "room_members:" + roomID }

func unreadKey(userID, roomID string) string {
	return "unread:" + userID + ":" + roomID
}
