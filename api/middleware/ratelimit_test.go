package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/use-agent/pdfpool/config"
)

func TestLimiterSet_EvictsIdleEntries(t *testing.T) {
	set := &limiterSet{
		cfg:      config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1},
		limiters: make(map[string]*limiterEntry),
	}
	now := time.Now()
	set.get("old", now.Add(-2*time.Hour))
	set.get("fresh", now)

	set.evict(now.Add(-time.Hour))

	assert.Equal(t, 1, set.len())
	_, ok := set.limiters["fresh"]
	assert.True(t, ok)
}

func TestLimiterSet_SameIdentitySharesLimiter(t *testing.T) {
	set := &limiterSet{
		cfg:      config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1},
		limiters: make(map[string]*limiterEntry),
	}
	a := set.get("key", time.Now())
	b := set.get("key", time.Now())
	assert.Same(t, a, b)
	assert.True(t, a.Allow())
	assert.False(t, b.Allow())
}
