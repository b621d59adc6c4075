package cover

import (
	"image"
	"sync"
	"time"
)

// memoryCache maps Keys to resolved covers for the life of the process.
// No eviction: a single session's working set is small and bounded by the
// catalog size times the handful of sizes the UI asks for.
type memoryCache struct {
	mu     sync.RWMutex
	covers map[Key]image.Image
}

func newMemoryCache() *memoryCache {
	return &memoryCache{covers: make(map[Key]image.Image)}
}

// Lookup returns the cached cover for key, if any.
func (c *memoryCache) Lookup(key Key) (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	img, ok := c.covers[key]
	return img, ok
}

// Store saves a cover under key. Last write wins on concurrent stores of
// the same key; both writers produced an equivalent image, so the race is
// benign.
func (c *memoryCache) Store(key Key, img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.covers[key] = img
}

// Len returns the number of cached covers.
func (c *memoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.covers)
}

// failureMemo remembers books whose network lookup failed, so the service
// skips straight to the placeholder on later requests. With a zero
// cooldown a failure is remembered for the life of the process; a positive
// cooldown lets entries lapse so long-running sessions can recover when
// the network comes back.
type failureMemo struct {
	mu       sync.RWMutex
	failed   map[FailureKey]time.Time
	cooldown time.Duration
	now      func() time.Time
}

func newFailureMemo(cooldown time.Duration) *failureMemo {
	return &failureMemo{
		failed:   make(map[FailureKey]time.Time),
		cooldown: cooldown,
		now:      time.Now,
	}
}

// HasFailed reports whether key is currently memoized as failed.
func (m *failureMemo) HasFailed(key FailureKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recorded, ok := m.failed[key]
	if !ok {
		return false
	}
	if m.cooldown > 0 && m.now().Sub(recorded) > m.cooldown {
		return false
	}
	return true
}

// RecordFailure memoizes a failed lookup, refreshing the timestamp on
// repeat failures.
func (m *failureMemo) RecordFailure(key FailureKey) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failed[key] = m.now()
}

// Len returns the number of memoized failures, lapsed ones included.
func (m *failureMemo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.failed)
}
