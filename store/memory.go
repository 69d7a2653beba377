package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// ErrUnavailable, MemoryStore kesinti simülasyonundayken döner.
var ErrUnavailable = errors.New("store: unavailable")

// errWrongType, Redis'in WRONGTYPE hatasının karşılığı.
var errWrongType = errors.New("store: operation against a key holding the wrong kind of value")

const memorySubscriptionBuffer = 1024

// item, tek bir key'in değeri. Sadece bir alan doludur (string, set veya hash).
type item struct {
	str       *string
	set       map[string]struct{}
	hash      map[string]string
	expiresAt time.Time // zero = süresiz
}

// MemoryStore, Store interface'inin in-process implementasyonu.
//
// Birden fazla gateway instance'ı aynı MemoryStore'u paylaşarak tek makinede
// cross-process davranışı simüle edebilir. Pub/sub kanal başına yayın sırasını korur.
// SetAvailable(false) ile Redis kesintisi taklit edilir.
type MemoryStore struct {
	mu     sync.Mutex
	now    func() time.Time
	items  map[string]*item
	subs   map[string]map[*memorySubscription]struct{}
	down   bool
	outage chan struct{} // kesinti başlayınca kapatılır
	closed bool

	// pubMu, Publish çağrılarını sıraya sokar, kanal sırası korunur.
	pubMu sync.Mutex
}

// MemoryOption, MemoryStore'u yapılandırır.
type MemoryOption func(*MemoryStore)

// WithClock, TTL hesaplarında kullanılan saati değiştirir.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore, boş bir in-memory store oluşturur.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		now:    time.Now,
		items:  make(map[string]*item),
		subs:   make(map[string]map[*memorySubscription]struct{}),
		outage: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAvailable, kesinti simülasyonunu açar/kapatır.
// Kesinti sırasında tüm operasyonlar ErrUnavailable döner ve bekleyen
// Receive çağrıları uyanır.
func (s *MemoryStore) SetAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case !available && !s.down:
		s.down = true
		close(s.outage)
	case available && s.down:
		s.down = false
		s.outage = make(chan struct{})
	}
}

// check, s.mu tutulurken çağrılmalıdır.
func (s *MemoryStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return ErrClosed
	}
	if s.down {
		return ErrUnavailable
	}
	return nil
}

// live, süresi dolmamış item'ı döner; dolmuşsa siler. s.mu tutulurken çağrılır.
func (s *MemoryStore) live(key string) *item {
	it, ok := s.items[key]
	if !ok {
		return nil
	}
	if !it.expiresAt.IsZero() && !s.now().Before(it.expiresAt) {
		delete(s.items, key)
		return nil
	}
	return it
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return "", err
	}
	it := s.live(key)
	if it == nil {
		return "", ErrNil
	}
	if it.str == nil {
		return "", errWrongType
	}
	return *it.str, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}
	v := value
	s.items[key] = &item{str: &v, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *MemoryStore) SetXX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return false, err
	}
	it := s.live(key)
	if it == nil {
		return false, nil
	}
	if it.str == nil {
		return false, errWrongType
	}
	v := value
	s.items[key] = &item{str: &v, expiresAt: s.expiry(ttl)}
	return true, nil
}

func (s *MemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}
	for _, k := range keys {
		delete(s.items, k)
	}
	return nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return 0, err
	}

	it := s.live(key)
	if it == nil {
		v := "1"
		s.items[key] = &item{str: &v}
		return 1, nil
	}
	if it.str == nil {
		return 0, errWrongType
	}
	n, err := strconv.ParseInt(*it.str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("store: value at %q is not an integer", key)
	}
	n++
	v := strconv.FormatInt(n, 10)
	it.str = &v
	return n, nil
}

// Expire, Redis gibi davranır: key yoksa no-op, ttl <= 0 ise key silinir.
func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}
	it := s.live(key)
	if it == nil {
		return nil
	}
	if ttl <= 0 {
		delete(s.items, key)
		return nil
	}
	it.expiresAt = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) SAdd(ctx context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	it := s.live(key)
	if it == nil {
		it = &item{set: make(map[string]struct{})}
		s.items[key] = it
	}
	if it.set == nil {
		return errWrongType
	}
	for _, m := range members {
		it.set[m] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) SRem(ctx context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}
	it := s.live(key)
	if it == nil {
		return nil
	}
	if it.set == nil {
		return errWrongType
	}
	for _, m := range members {
		delete(it.set, m)
	}
	if len(it.set) == 0 {
		delete(s.items, key)
	}
	return nil
}

func (s *MemoryStore) SAddCard(ctx context.Context, key, member string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return 0, err
	}
	it := s.live(key)
	if it == nil {
		it = &item{set: make(map[string]struct{})}
		s.items[key] = it
	}
	if it.set == nil {
		return 0, errWrongType
	}
	it.set[member] = struct{}{}
	if ttl > 0 {
		it.expiresAt = s.now().Add(ttl)
	}
	return int64(len(it.set)), nil
}

func (s *MemoryStore) SRemSetIfEmpty(ctx context.Context, key, member, valueKey, value string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return 0, err
	}
	remaining := 0
	if it := s.live(key); it != nil {
		if it.set == nil {
			return 0, errWrongType
		}
		delete(it.set, member)
		remaining = len(it.set)
		if remaining == 0 {
			delete(s.items, key)
		}
	}
	if remaining == 0 {
		v := value
		s.items[valueKey] = &item{str: &v, expiresAt: s.expiry(ttl)}
	}
	return int64(remaining), nil
}

// SMembers, üyeleri sıralı döner (deterministik test çıktısı için).
func (s *MemoryStore) SMembers(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return nil, err
	}
	it := s.live(key)
	if it == nil {
		return []string{}, nil
	}
	if it.set == nil {
		return nil, errWrongType
	}
	out := make([]string, 0, len(it.set))
	for m := range it.set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) HSet(ctx context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}
	it := s.live(key)
	if it == nil {
		it = &item{hash: make(map[string]string)}
		s.items[key] = it
	}
	if it.hash == nil {
		return errWrongType
	}
	it.hash[field] = value
	return nil
}

func (s *MemoryStore) HDel(ctx context.Context, key string, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}
	it := s.live(key)
	if it == nil {
		return nil
	}
	if it.hash == nil {
		return errWrongType
	}
	for _, f := range fields {
		delete(it.hash, f)
	}
	if len(it.hash) == 0 {
		delete(s.items, key)
	}
	return nil
}

func (s *MemoryStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	it := s.live(key)
	if it == nil {
		return out, nil
	}
	if it.hash == nil {
		return nil, errWrongType
	}
	for f, v := range it.hash {
		out[f] = v
	}
	return out, nil
}

// Publish, mesajı kanala abone olan tüm subscription'lara sırayla iletir.
// Abone buffer'ı doluysa abone okuyana (veya ctx bitene) kadar bekler.
func (s *MemoryStore) Publish(ctx context.Context, channel string, payload []byte) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	if err := s.check(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	targets := make([]*memorySubscription, 0, len(s.subs[channel]))
	for sub := range s.subs[channel] {
		targets = append(targets, sub)
	}
	s.mu.Unlock()

	msg := Message{Channel: channel, Payload: append([]byte(nil), payload...)}
	for _, sub := range targets {
		select {
		case sub.ch <- msg:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return nil, err
	}

	sub := &memorySubscription{
		store:    s,
		channels: channels,
		ch:       make(chan Message, memorySubscriptionBuffer),
		done:     make(chan struct{}),
	}
	for _, c := range channels {
		if s.subs[c] == nil {
			s.subs[c] = make(map[*memorySubscription]struct{})
		}
		s.subs[c][sub] = struct{}{}
	}
	return sub, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check(ctx)
}

// Close, store'u kapatır ve tüm subscription'ları sonlandırır.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var all []*memorySubscription
	for _, set := range s.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range all {
		_ = sub.Close()
	}
	return nil
}

func (s *MemoryStore) unsubscribe(sub *memorySubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range sub.channels {
		delete(s.subs[c], sub)
		if len(s.subs[c]) == 0 {
			delete(s.subs, c)
		}
	}
}

type memorySubscription struct {
	store     *MemoryStore
	channels  []string
	ch        chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func (m *memorySubscription) Receive(ctx context.Context) (Message, error) {
	m.store.mu.Lock()
	down := m.store.down
	outage := m.store.outage
	m.store.mu.Unlock()

	if down {
		return Message{}, ErrUnavailable
	}

	select {
	case msg := <-m.ch:
		return msg, nil
	case <-outage:
		return Message{}, ErrUnavailable
	case <-m.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (m *memorySubscription) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
		m.store.unsubscribe(m)
	})
	return nil
}
