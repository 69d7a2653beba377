package ratelimit

import (
	"sync"
	"time"
)

// messageBucket, bir kullanıcı için pencere sayacı ve cooldown bitiş zamanı.
// cooldownUntil zero value ise kullanıcı cezalı değildir.
type messageBucket struct {
	count         int
	windowStart   time.Time
	cooldownUntil time.Time
}

// MessageRateLimiter, kullanıcı bazlı send_message flood koruması.
//
// window içinde maxMessages'tan fazla mesaj gelirse kullanıcı cooldown süresince
// tamamen reddedilir. Cooldown bitince pencere sıfırdan başlar.
//
//	limiter := NewMessageRateLimiter(5, 5*time.Second, 15*time.Second)
//	if !limiter.Allow(userID) { /* rate_limited error event */ }
type MessageRateLimiter struct {
	mu          sync.Mutex
	buckets     map[string]*messageBucket
	maxMessages int
	window      time.Duration
	cooldown    time.Duration
	now         func() time.Time
	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// NewMessageRateLimiter, limiter oluşturur ve 30 saniyelik temizlik döngüsünü başlatır.
func NewMessageRateLimiter(maxMessages int, window, cooldown time.Duration) *MessageRateLimiter {
	rl := &MessageRateLimiter{
		buckets:     make(map[string]*messageBucket),
		maxMessages: maxMessages,
		window:      window,
		cooldown:    cooldown,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	go runCleanup(30*time.Second, rl.stopCleanup, rl.cleanup)

	return rl
}

// Allow, kullanıcının bir mesaj daha göndermesine izin veriliyorsa true döner.
func (rl *MessageRateLimiter) Allow(userID string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[userID]
	if !ok {
		rl.buckets[userID] = &messageBucket{count: 1, windowStart: now}
		return true
	}

	if !b.cooldownUntil.IsZero() {
		if now.Before(b.cooldownUntil) {
			return false
		}
		*b = messageBucket{count: 1, windowStart: now}
		return true
	}

	if now.Sub(b.windowStart) > rl.window {
		b.count = 1
		b.windowStart = now
		return true
	}

	b.count++
	if b.count > rl.maxMessages {
		b.cooldownUntil = now.Add(rl.cooldown)
		return false
	}
	return true
}

// CooldownSeconds, kalan ceza süresini saniye olarak döner; cooldown yoksa 0.
func (rl *MessageRateLimiter) CooldownSeconds(userID string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[userID]
	if !ok || b.cooldownUntil.IsZero() {
		return 0
	}
	return ceilSeconds(b.cooldownUntil.Sub(rl.now()))
}

// Close, temizlik goroutine'ini durdurur.
func (rl *MessageRateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.stopCleanup) })
}

// cleanup, penceresi ve cooldown'u bitmiş bucket'ları siler.
func (rl *MessageRateLimiter) cleanup() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for userID, b := range rl.buckets {
		windowExpired := now.Sub(b.windowStart) > rl.window
		cooldownExpired := b.cooldownUntil.IsZero() || now.After(b.cooldownUntil)
		if windowExpired && cooldownExpired {
			delete(rl.buckets, userID)
		}
	}
}
