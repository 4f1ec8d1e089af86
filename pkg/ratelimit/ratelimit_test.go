package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowRefills(t *testing.T) {
	now := time.Unix(0, 0)
	l := newLimiter(2, time.Second, func() time.Time { return now })

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys are independent")

	now = now.Add(500 * time.Millisecond)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	now = now.Add(time.Hour)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"), "refill is capped at the limit")
	assert.Equal(t, 500*time.Millisecond, l.RetryAfter())
}

func TestEvictIdle(t *testing.T) {
	now := time.Unix(0, 0)
	l := newLimiter(1, time.Second, func() time.Time { return now })
	l.Allow("a")
	now = now.Add(time.Second)
	l.Allow("b")
	now = now.Add(1500 * time.Millisecond)
	l.evictIdle()
	assert.NotContains(t, l.entries, "a")
	assert.Contains(t, l.entries, "b")
}

func TestStopIsIdempotent(t *testing.T) {
	l := New(10, time.Second)
	l.Stop()
	l.Stop()
}
