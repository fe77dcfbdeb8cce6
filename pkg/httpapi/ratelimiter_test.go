package httpapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func newTestLimiter(limit int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(limit, time.Minute)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiter_Allow(t *testing.T) {
	rl, _ := newTestLimiter(5)
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		ok, _ := rl.Allow("192.168.1.1")
		assert.True(t, ok, "request %d should be allowed", i+1)
	}

	ok, retryAfter := rl.Allow("192.168.1.1")
	assert.False(t, ok, "6th request should be denied")
	assert.Equal(t, time.Minute, retryAfter)
}

func TestRateLimiter_Allow_IndependentClients(t *testing.T) {
	rl, _ := newTestLimiter(3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		ok1, _ := rl.Allow("192.168.1.1")
		ok2, _ := rl.Allow("192.168.1.2")
		assert.True(t, ok1)
		assert.True(t, ok2)
	}

	ok1, _ := rl.Allow("192.168.1.1")
	ok2, _ := rl.Allow("192.168.1.2")
	assert.False(t, ok1)
	assert.False(t, ok2)
}

func TestRateLimiter_Allow_SlidingWindow(t *testing.T) {
	rl, clock := newTestLimiter(2)
	defer rl.Stop()

	ok, _ := rl.Allow("ip")
	assert.True(t, ok)
	clock.t = clock.t.Add(20 * time.Second)
	ok, _ = rl.Allow("ip")
	assert.True(t, ok)

	clock.t = clock.t.Add(10 * time.Second)
	ok, retryAfter := rl.Allow("ip")
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, retryAfter)

	// first request leaves the window
	clock.t = clock.t.Add(30 * time.Second)
	ok, _ = rl.Allow("ip")
	assert.True(t, ok)
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl, _ := newTestLimiter(0)
	defer rl.Stop()

	for i := 0; i < 100; i++ {
		ok, _ := rl.Allow("ip")
		assert.True(t, ok)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl, clock := newTestLimiter(5)
	defer rl.Stop()

	rl.Allow("ip")
	clock.t = clock.t.Add(61 * time.Second)
	rl.cleanup()

	rl.mu.Lock()
	_, exists := rl.hits["ip"]
	rl.mu.Unlock()
	assert.False(t, exists)
}

func TestRateLimiter_Stop(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)
	assert.NotPanics(t, func() {
		rl.Stop()
		rl.Stop()
	})
}
