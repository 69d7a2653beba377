// Package store, gateway process'lerinin paylaştığı ephemeral key/value ve
// pub/sub store'unu soyutlar.
//
// İki implementasyon vardır:
//   - RedisStore: production (go-redis v8)
//   - MemoryStore: tek process / test için in-memory fake, saat enjekte edilebilir
//
// Store'a ait hatalar ham döner; Registry ve Adapter bunları
// pkg.ErrStoreUnavailable'a çevirir. Tek istisna ErrNil'dir (key yok).
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNil, okunan key'in bulunmadığını (veya süresinin dolduğunu) belirtir.
var ErrNil = errors.New("store: nil")

// ErrClosed, kapatılmış store veya subscription üzerinde yapılan çağrılar için döner.
var ErrClosed = errors.New("store: closed")

// Message, bir pub/sub kanalından alınan tek mesaj.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription, bir veya daha fazla kanala açılmış abonelik.
//
// Receive bağlantı koptuğunda hata döner; aynı Subscription üzerinde tekrar
// Receive çağrısı yeniden bağlanmayı dener. Reconnect politikası (backoff)
// çağıran tarafa aittir.
type Subscription interface {
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// Store, gateway'in shared store'dan beklediği operasyonlar.
// ttl <= 0 olan Set çağrıları süresiz yazar.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetXX, key sadece hâlâ varsa yazar (SET ... XX). Silinmiş key'i
	// geri getirmez; yazıldıysa true döner.
	SetXX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	// SAddCard, member'ı ekler, ttl > 0 ise set'in TTL'ini yeniler ve
	// eklemeden sonraki kardinaliteyi döner. Tek atomik adımdır.
	SAddCard(ctx context.Context, key, member string, ttl time.Duration) (int64, error)
	// SRemSetIfEmpty, member'ı çıkarır; set boşaldıysa aynı atomik adımda
	// valueKey'e value yazar. Kalan kardinaliteyi döner.
	SRemSetIfEmpty(ctx context.Context, key, member, valueKey, value string, ttl time.Duration) (int64, error)

	HSet(ctx context.Context, key, field, value string) error
	HDel(ctx context.Context, key string, fields ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}
