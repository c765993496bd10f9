package services

import (
	"sync"
	"time"

	"pulseboard/internal/models"
)

// ReadingCache holds the last host reading with a TTL so that bursts of
// requests share one gopsutil round
type ReadingCache struct {
	mu        sync.RWMutex
	read      ReadingFunc
	cached    *models.HostReading
	cacheTime time.Time
	ttl       time.Duration
	now       func() time.Time
}

// NewReadingCache wraps read. A non-positive ttl disables caching.
func NewReadingCache(read ReadingFunc, ttl time.Duration) *ReadingCache {
	return &ReadingCache{read: read, ttl: ttl, now: time.Now}
}

// isCacheValid checks if cache is still valid
func (rc *ReadingCache) isCacheValid() bool {
	return rc.cached != nil && rc.now().Sub(rc.cacheTime) < rc.ttl
}

// Get returns the cached reading if valid, otherwise takes a fresh one
func (rc *ReadingCache) Get() (models.HostReading, error) {
	rc.mu.RLock()
	if rc.isCacheValid() {
		defer rc.mu.RUnlock()
		return *rc.cached, nil
	}
	rc.mu.RUnlock()

	reading, err := rc.read()
	if err != nil {
		return models.HostReading{}, err
	}

	rc.mu.Lock()
	rc.cached = &reading
	rc.cacheTime = rc.now()
	rc.mu.Unlock()

	return reading, nil
}

// Put stores a reading taken elsewhere, such as by the recorder
func (rc *ReadingCache) Put(reading models.HostReading) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.cached = &reading
	rc.cacheTime = rc.now()
}
