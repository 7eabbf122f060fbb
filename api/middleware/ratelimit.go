package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pdfpool/config"
	"github.com/use-agent/pdfpool/models"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleTTL       = time.Hour
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterSet struct {
	cfg      config.RateLimitConfig
	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

func (s *limiterSet) get(identity string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.limiters[identity]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst),
		}
		s.limiters[identity] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// evict drops entries not seen since cutoff.
func (s *limiterSet) evict(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(s.limiters, id)
		}
	}
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimit returns per-identity (API key fingerprint or IP) token-bucket rate limiting
// middleware powered by golang.org/x/time/rate.
//
// Entries unused for 1 hour are evicted every 5 minutes by a background
// goroutine that exits when ctx is done.
func RateLimit(ctx context.Context, cfg config.RateLimitConfig) gin.HandlerFunc {
	set := &limiterSet{cfg: cfg, limiters: make(map[string]*limiterEntry)}

	go func() {
		ticker := time.NewTicker(limiterSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				set.evict(now.Add(-limiterIdleTTL))
			}
		}
	}()

	return func(c *gin.Context) {
		// Authenticated callers share a bucket per key; others per IP.
		identity := "ip:" + c.ClientIP()
		if caller, ok := CallerFrom(c.Request.Context()); ok {
			identity = "key:" + caller.Fingerprint
		}

		if !set.get(identity, time.Now()).Allow() {
			abort(c, http.StatusTooManyRequests, models.ErrCodeRateLimited,
				"rate limit exceeded, please slow down")
			return
		}

		c.Next()
	}
}
