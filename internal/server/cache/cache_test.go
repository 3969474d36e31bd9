package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheSetGet(t *testing.T) {
	c := New(time.Minute, time.Minute)

	c.Set(RunsKey("limit=10"), []string{"r1"})
	v, ok := c.Get(RunsKey("limit=10"))
	assert.True(t, ok)
	assert.Equal(t, []string{"r1"}, v)

	_, ok = c.Get(RunsKey("limit=20"))
	assert.False(t, ok)

	stats := c.GetStats()
	assert.Equal(t, 1, stats.ItemCount)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestCacheExpiry(t *testing.T) {
	c := New(time.Minute, time.Minute)
	c.SetWithTTL(EntryKey("r1"), "entry", 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, ok := c.Get(EntryKey("r1"))
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestCacheDeleteAndClear(t *testing.T) {
	c := New(time.Minute, time.Minute)
	c.Set(EntryKey("r1"), 1)
	c.Set(EntryKey("r2"), 2)

	c.Delete(EntryKey("r1"))
	_, ok := c.Get(EntryKey("r1"))
	assert.False(t, ok)
	assert.Equal(t, 1, c.ItemCount())

	c.Clear()
	assert.Equal(t, 0, c.ItemCount())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "runs?status=failed", RunsKey("status=failed"))
	assert.Equal(t, "run:abc", EntryKey("abc"))
	assert.NotEqual(t, RunsKey(""), EntryKey(""))
}
