package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/akinalp/mqvi-gateway/store"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestRegistry, aynı saati paylaşan MemoryStore ve RegistryConfig döner.
func newTestRegistry(t *testing.T) (*store.MemoryStore, RegistryConfig, *manualClock) {
	t.Helper()
	clock := newManualClock()
	st := store.NewMemoryStore(store.WithClock(clock.Now))
	t.Cleanup(func() { _ = st.Close() })

	cfg := RegistryConfig{
		SessionTTL:         24 * time.Hour,
		MaxSessionsPerUser: 5,
		PresenceTTL:        300 * time.Second,
		TypingTTL:          5 * time.Second,
		RoomMembersTTL:     time.Hour,
		OpTimeout:          time.Second,
		Now:                clock.Now,
	}
	return st, cfg, clock
}

// hookStore, MemoryStore'un belirli çağrılarının etrafına tek seferlik
// hook'lar ekler; iki node'un store operasyonlarını araya sokmak için.
type hookStore struct {
	*store.MemoryStore

	mu             sync.Mutex
	afterGet       func(key string)
	beforeSAddCard func()
	afterSAddCard  func()
}

func (h *hookStore) take(fn *func()) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	f := *fn
	*fn = nil
	return f
}

func (h *hookStore) Get(ctx context.Context, key string) (string, error) {
	v, err := h.MemoryStore.Get(ctx, key)
	h.mu.Lock()
	f := h.afterGet
	h.afterGet = nil
	h.mu.Unlock()
	if f != nil {
		f(key)
	}
	return v, err
}

func (h *hookStore) SAddCard(ctx context.Context, key, member string, ttl time.Duration) (int64, error) {
	if f := h.take(&h.beforeSAddCard); f != nil {
		f()
	}
	n, err := h.MemoryStore.SAddCard(ctx, key, member, ttl)
	if f := h.take(&h.afterSAddCard); f != nil {
		f()
	}
	return n, err
}
