package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryCache_TTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewInMemoryCache[string, int](time.Second, 0)
	c.now = func() time.Time { return now }

	c.Set("a", 1, 0)
	c.Set("b", 2, 5*time.Second)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok, "expires exactly at ttl")
	_, ok = c.Get("b")
	assert.True(t, ok)

	assert.Equal(t, 2, c.Size())
	c.cleanup()
	assert.Equal(t, 1, c.Size())

	c.Delete("b")
	assert.Equal(t, 0, c.Size())
}

func TestInMemoryCache_CloseIsIdempotent(t *testing.T) {
	c := NewInMemoryCache[int, string](time.Minute, 10*time.Millisecond)
	c.Set(1, "x", 0)
	c.Close()
	c.Close()

	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "x", v)
}
