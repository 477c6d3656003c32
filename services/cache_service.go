package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CacheEntry represents a cached item with expiration
type CacheEntry struct {
	Data      interface{}
	ExpiresAt time.Time
}

// IsExpired checks if the cache entry has expired
func (ce *CacheEntry) IsExpired() bool {
	return time.Now().After(ce.ExpiresAt)
}

// CacheService is the bounded, time-expiring store behind the search
// layer. It is explicitly owned and injected (constructed in main and
// passed to consumers) so tests can build a fresh instance per case.
// Concurrent readers never block each other, and Clear swaps the map
// wholesale under the write lock, so a reader observes either the pre-
// or post-invalidation state, never a partially cleared one.
type CacheService struct {
	cache      map[string]*CacheEntry
	mutex      sync.RWMutex
	defaultTTL time.Duration
	maxSize    int

	done     chan struct{}
	stopOnce sync.Once

	hits   int64
	misses int64
}

// NewCacheService creates a cache service with the given TTL and capacity
// and starts the background expiry sweep. Callers own the lifecycle and
// must Stop the instance when done with it.
func NewCacheService(defaultTTL time.Duration, maxSize int) *CacheService {
	cs := &CacheService{
		cache:      make(map[string]*CacheEntry),
		defaultTTL: defaultTTL,
		maxSize:    maxSize,
		done:       make(chan struct{}),
	}

	go cs.cleanupLoop()

	return cs
}

// Stop ends the background expiry sweep. Safe to call more than once;
// the cache itself stays usable afterward.
func (cs *CacheService) Stop() {
	cs.stopOnce.Do(func() {
		close(cs.done)
	})
}

// Get retrieves a value from cache
func (cs *CacheService) Get(key string) (interface{}, bool) {
	cs.mutex.RLock()
	entry, exists := cs.cache[key]
	cs.mutex.RUnlock()

	if !exists || entry.IsExpired() {
		cs.mutex.Lock()
		cs.misses++
		cs.mutex.Unlock()
		return nil, false
	}

	cs.mutex.Lock()
	cs.hits++
	cs.mutex.Unlock()
	return entry.Data, true
}

// Set stores a value in cache with the default TTL
func (cs *CacheService) Set(key string, value interface{}) {
	cs.SetWithTTL(key, value, cs.defaultTTL)
}

// SetWithTTL stores a value in cache with a custom TTL
func (cs *CacheService) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if len(cs.cache) >= cs.maxSize {
		cs.evictOldest()
	}

	cs.cache[key] = &CacheEntry{
		Data:      value,
		ExpiresAt: time.Now().Add(ttl),
	}
}

// evictOldest removes the entry closest to expiry. Caller holds the lock.
func (cs *CacheService) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range cs.cache {
		if oldestKey == "" || entry.ExpiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.ExpiresAt
		}
	}

	if oldestKey != "" {
		delete(cs.cache, oldestKey)
	}
}

// Delete removes a value from cache
func (cs *CacheService) Delete(key string) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	delete(cs.cache, key)
}

// Clear removes all values from cache. This is the invalidation signal
// the orchestrator fires after every ingestion run.
func (cs *CacheService) Clear() {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.cache = make(map[string]*CacheEntry)
	logrus.Info("Search cache invalidated")
}

// Size returns the number of items in cache
func (cs *CacheService) Size() int {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	return len(cs.cache)
}

// Stats returns hit/miss counters and current occupancy
func (cs *CacheService) Stats() map[string]interface{} {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	total := cs.hits + cs.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(cs.hits) / float64(total) * 100
	}

	return map[string]interface{}{
		"hits":             cs.hits,
		"misses":           cs.misses,
		"total_requests":   total,
		"hit_rate_percent": fmt.Sprintf("%.2f", hitRate),
		"cache_size":       len(cs.cache),
		"max_size":         cs.maxSize,
		"ttl":              cs.defaultTTL.String(),
	}
}

// CleanupExpired removes expired entries and returns how many were removed
func (cs *CacheService) CleanupExpired() int {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	removed := 0
	for key, entry := range cs.cache {
		if entry.IsExpired() {
			delete(cs.cache, key)
			removed++
		}
	}
	return removed
}

// cleanupLoop periodically evicts expired entries until Stop is called.
func (cs *CacheService) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-cs.done:
			return
		case <-ticker.C:
			if removed := cs.CleanupExpired(); removed > 0 {
				logrus.WithField("removed", removed).Debug("Evicted expired cache entries")
			}
		}
	}
}
