package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLoginRateLimiter(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rl := NewLoginRateLimiter(3, time.Minute)
	t.Cleanup(rl.Close)
	rl.now = clock.now

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("1.2.3.4"), "attempt %d", i+1)
	}
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"), "other IPs are independent")

	clock.advance(30 * time.Second)
	assert.Equal(t, 31, rl.RetryAfterSeconds("1.2.3.4"))

	rl.Reset("1.2.3.4")
	assert.True(t, rl.Allow("1.2.3.4"))

	clock.advance(2 * time.Minute)
	rl.cleanup()
	assert.Zero(t, rl.RetryAfterSeconds("1.2.3.4"))
}

func TestMessageRateLimiter_Cooldown(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rl := NewMessageRateLimiter(2, 5*time.Second, 15*time.Second)
	t.Cleanup(rl.Close)
	rl.now = clock.now

	assert.True(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))
	assert.Equal(t, 16, rl.CooldownSeconds("alice"))

	// Pencere dolsa bile cooldown devam eder.
	clock.advance(10 * time.Second)
	assert.False(t, rl.Allow("alice"))

	clock.advance(6 * time.Second)
	assert.True(t, rl.Allow("alice"))
	assert.Zero(t, rl.CooldownSeconds("alice"))
}

func TestMessageRateLimiter_WindowResets(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rl := NewMessageRateLimiter(2, 5*time.Second, 15*time.Second)
	t.Cleanup(rl.Close)
	rl.now = clock.now

	assert.True(t, rl.Allow("bob"))
	assert.True(t, rl.Allow("bob"))
	clock.advance(6 * time.Second)
	assert.True(t, rl.Allow("bob"))
	assert.True(t, rl.Allow("bob"))
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ExtractIP(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", ExtractIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.3")
	assert.Equal(t, "203.0.113.7", ExtractIP(req))
}

func TestFormatRetryMessage(t *testing.T) {
	assert.Equal(t, "45 second(s)", FormatRetryMessage(45))
	assert.Equal(t, "2 minute(s)", FormatRetryMessage(150))
}
