package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type countingRecorder struct {
	mu                      sync.Mutex
	hits, misses, evictions int
}

func (r *countingRecorder) Hit()      { r.mu.Lock(); r.hits++; r.mu.Unlock() }
func (r *countingRecorder) Miss()     { r.mu.Lock(); r.misses++; r.mu.Unlock() }
func (r *countingRecorder) Eviction() { r.mu.Lock(); r.evictions++; r.mu.Unlock() }

func TestCache_NeverReturnsExpired(t *testing.T) {
	clock := newFakeClock()
	c := New[string](Options{MaxSize: 10, DefaultTTL: 300 * time.Second, Clock: clock.Now})

	require.True(t, c.Put("svc", "key", 0))
	v, ok := c.Get("svc")
	require.True(t, ok)
	assert.Equal(t, "key", v)

	clock.Advance(299 * time.Second)
	_, ok = c.Get("svc")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("svc")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_LRUEvictionOrder(t *testing.T) {
	rec := &countingRecorder{}
	c := New[int](Options{MaxSize: 3, CanPutWhenFull: true, Recorder: rec})
	c.Put("a", 1, 0)
	c.Put("b", 2, 0)
	c.Put("c", 3, 0)

	_, _ = c.Get("a") // a is now most recent; b is least recent
	require.True(t, c.Put("d", 4, 0))

	_, ok := c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, []string{"d", "a", "c"}, c.Keys())
	assert.Equal(t, 1, rec.evictions)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCache_RejectsWhenFull(t *testing.T) {
	c := New[int](Options{MaxSize: 2, CanPutWhenFull: false})
	assert.True(t, c.Put("a", 1, 0))
	assert.True(t, c.Put("b", 2, 0))
	assert.False(t, c.Put("c", 3, 0))
	assert.Equal(t, uint64(1), c.Stats().Rejected)

	// updating an existing key is always allowed
	assert.True(t, c.Put("a", 10, 0))
	v, _ := c.Get("a")
	assert.Equal(t, 10, v)
}

func TestCache_FullPrefersExpiredVictim(t *testing.T) {
	clock := newFakeClock()
	c := New[int](Options{MaxSize: 2, CanPutWhenFull: false, Clock: clock.Now})
	c.Put("short", 1, time.Second)
	c.Put("long", 2, time.Hour)
	clock.Advance(2 * time.Second)

	assert.True(t, c.Put("new", 3, 0))
	_, ok := c.Get("long")
	assert.True(t, ok)
	_, ok = c.Get("short")
	assert.False(t, ok)
}

func TestCache_PutRefreshesTTL(t *testing.T) {
	clock := newFakeClock()
	c := New[int](Options{MaxSize: 2, DefaultTTL: 10 * time.Second, Clock: clock.Now})
	c.Put("a", 1, 0)
	clock.Advance(8 * time.Second)
	c.Put("a", 2, 0)
	clock.Advance(8 * time.Second)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestCache_PurgeRemovesOnlyExpired(t *testing.T) {
	clock := newFakeClock()
	c := New[int](Options{MaxSize: 10, Clock: clock.Now})
	c.Put("a", 1, time.Second)
	c.Put("b", 2, time.Minute)
	c.Put("c", 3, -1) // negative TTL never expires
	clock.Advance(2 * time.Second)

	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 0, c.Purge())
}

func TestCache_DeleteAndClear(t *testing.T) {
	c := New[int](Options{MaxSize: 4})
	c.Put("a", 1, 0)
	c.Put("b", 2, 0)
	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	rec := &countingRecorder{}
	c := New[int](Options{MaxSize: 50, CanPutWhenFull: true, DefaultTTL: time.Minute, Recorder: rec})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", (g*31+i)%80)
				c.Put(key, i, 0)
				c.Get(key)
				if i%17 == 0 {
					c.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
	stats := c.Stats()
	assert.Equal(t, uint64(8*500), stats.Hits+stats.Misses)
}
