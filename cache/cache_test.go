package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/pdfpool/models"
)

func newTestCache(t *testing.T, max int) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, max)
}

func TestKey_IgnoresTimeoutAndDefaults(t *testing.T) {
	a := &models.RenderRequest{HTML: "<p>x</p>"}
	b := &models.RenderRequest{HTML: "<p>x</p>", Format: "A4", Orientation: "portrait", Scale: 1, Timeout: 5000, MaxAge: 60000}
	assert.Equal(t, Key(a), Key(b))

	c := &models.RenderRequest{HTML: "<p>x</p>", Format: "Letter"}
	assert.NotEqual(t, Key(a), Key(c))

	assert.Empty(t, a.Format, "Key must not mutate the request")
}

func TestGetSet(t *testing.T) {
	c := newTestCache(t, 4)
	c.Set("k", []byte("%PDF"))

	pdf, ok := c.Get("k", 60_000)
	require.True(t, ok)
	assert.Equal(t, "%PDF", string(pdf))

	_, ok = c.Get("k", 0)
	assert.False(t, ok, "maxAge 0 disables lookup")

	_, ok = c.Get("missing", 60_000)
	assert.False(t, ok)
}

func TestGet_Expired(t *testing.T) {
	c := newTestCache(t, 4)
	c.Set("k", []byte("%PDF"))
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("k", 1)
	assert.False(t, ok)
}

func TestSet_EvictsAtCapacity(t *testing.T) {
	c := newTestCache(t, 2)
	c.Set("a", nil)
	c.Set("b", nil)
	c.Set("a", []byte("again"))
	assert.Equal(t, 2, c.Len(), "overwriting does not evict")

	c.Set("c", nil)
	assert.Equal(t, 2, c.Len())
}

func TestEvictOlderThan(t *testing.T) {
	c := newTestCache(t, 4)
	c.Set("old", nil)
	c.evictOlderThan(time.Now().Add(time.Second))
	assert.Zero(t, c.Len())
}
