// Package qa memoizes insight questions: a TTL answer cache plus an
// in-flight registry so concurrent identical questions share one backend
// call.
package qa

import (
	"strings"
	"sync"
	"time"

	"github.com/adlens-ai/adlens/pkg/models"
)

// DefaultTTL is the answer lifetime used when Set is called with a
// non-positive TTL.
const DefaultTTL = 5 * time.Minute

// keySep joins scope and normalized question. Scope IDs are not validated
// to exclude it; UUID-style scopes never contain it in practice.
const keySep = ":"

type entry struct {
	answer    *models.Answer
	storedAt  time.Time
	expiresAt time.Time
}

// Cache stores short-lived answers keyed by (scope, normalized question)
// and tracks in-flight requests under the same key scheme. All operations
// are total; a miss is the only failure mode.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]entry
	inflight map[string]*InFlight
	now      func() time.Time
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{
		entries:  make(map[string]entry),
		inflight: make(map[string]*InFlight),
		now:      time.Now,
	}
}

// Normalize lower-cases a question, trims it, and collapses internal
// whitespace, so trivially different phrasings share one cache key.
func Normalize(question string) string {
	return strings.Join(strings.Fields(strings.ToLower(question)), " ")
}

// Key returns the composite cache key for a scope and question.
func Key(scope, question string) string {
	return scope + keySep + Normalize(question)
}

// Get returns the cached answer for the key if present and unexpired.
// Expired entries are evicted on read.
func (c *Cache) Get(scope, question string) (*models.Answer, bool) {
	key := Key(scope, question)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.answer, true
}

// Set stores an answer, overwriting any existing entry for the key.
// A non-positive ttl falls back to DefaultTTL.
func (c *Cache) Set(scope, question string, answer *models.Answer, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[Key(scope, question)] = entry{
		answer:    answer,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
}

// Invalidate removes a single cached answer.
func (c *Cache) Invalidate(scope, question string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, Key(scope, question))
}

// InvalidateScope removes every cached answer belonging to the scope.
// Matching includes the separator, so "ws1" does not shadow "ws10".
func (c *Cache) InvalidateScope(scope string) {
	prefix := scope + keySep

	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Clear removes all entries and all in-flight registrations.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	c.inflight = make(map[string]*InFlight)
}

// Stats counts valid and expired-but-unpurged entries plus in-flight
// registrations. Monitoring only; nothing depends on it for correctness.
func (c *Cache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := models.CacheStats{InFlight: len(c.inflight)}
	now := c.now()
	for _, e := range c.entries {
		if now.After(e.expiresAt) {
			stats.Expired++
		} else {
			stats.Valid++
		}
	}
	return stats
}

// GetInFlight returns the shared in-flight handle for the key, if any.
func (c *Cache) GetInFlight(scope, question string) (*InFlight, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fl, ok := c.inflight[Key(scope, question)]
	return fl, ok
}

// SetInFlight registers a new in-flight handle for the key and returns
// it. The registration is removed when the handle settles, success or
// failure, so a later call re-triggers a fresh fetch.
func (c *Cache) SetInFlight(scope, question string) *InFlight {
	key := Key(scope, question)

	c.mu.Lock()
	defer c.mu.Unlock()

	fl := newInFlight()
	fl.onSettle = func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.inflight[key] == fl {
			delete(c.inflight, key)
		}
	}
	c.inflight[key] = fl
	return fl
}
