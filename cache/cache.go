package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/use-agent/pdfpool/models"
)

const (
	cleanupInterval = 5 * time.Minute
	entryTTL        = time.Hour
)

// entry holds a rendered PDF with its creation timestamp.
type entry struct {
	pdf       []byte
	createdAt time.Time
}

// Cache is a simple in-memory cache for rendered PDFs, keyed by the
// request's layout-relevant fields. It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
}

// New creates a new Cache with the given maximum number of entries.
// A background goroutine evicts entries older than 1 hour every 5 minutes
// until ctx is done.
func New(ctx context.Context, maxEntries int) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
	}

	go c.cleanupLoop(ctx)
	return c
}

// Key hashes everything in req that affects the printed output. Timeout
// and MaxAge are ignored, and defaults are applied first so an omitted
// field and its explicit default share a key.
func Key(req *models.RenderRequest) string {
	r := *req
	r.Defaults()
	r.Timeout = 0
	r.MaxAge = 0

	b, _ := json.Marshal(r)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Get retrieves a cached PDF if it exists and is younger than maxAge.
// maxAge is in milliseconds. If maxAge <= 0, no cache lookup is performed.
func (c *Cache) Get(key string, maxAgeMs int) ([]byte, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	maxAge := time.Duration(maxAgeMs) * time.Millisecond
	if time.Since(e.createdAt) > maxAge {
		return nil, false
	}

	return e.pdf, true
}

// Set stores a PDF. If the cache is at capacity, a random entry is evicted
// to make room.
func (c *Cache) Set(key string, pdf []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict one random entry if at capacity (map iteration is random in Go).
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		pdf:       pdf,
		createdAt: time.Now(),
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

func (c *Cache) evictOlderThan(cutoff time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}

func (c *Cache) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.evictOlderThan(now.Add(-entryTTL))
		}
	}
}
