package dedup

import (
	"sync"
	"time"

	"github.com/anvh2/market-intel/internal/cache"
)

var _ cache.Dedup = &Cache{}

type entry struct {
	id      string
	savedAt int64
}

// Cache is the in-memory (symbol is fixed per process) time-bucket dedup map
// in front of the state store. Entries expire after the retention window;
// Sweep is called by the owner during saves.
type Cache struct {
	mutex     sync.Mutex
	retention time.Duration
	entries   map[int64]entry
}

func New(retention time.Duration) *Cache {
	if retention <= 0 {
		retention = time.Hour
	}
	return &Cache{
		retention: retention,
		entries:   make(map[int64]entry),
	}
}

func (c *Cache) Put(bucket int64, id string) (string, bool) {
	now := time.Now().UnixMilli()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if e, ok := c.entries[bucket]; ok && now-e.savedAt < c.retention.Milliseconds() {
		return e.id, true
	}

	c.entries[bucket] = entry{id: id, savedAt: now}
	return id, false
}

func (c *Cache) Get(bucket int64) (string, bool) {
	now := time.Now().UnixMilli()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, ok := c.entries[bucket]
	if !ok || now-e.savedAt >= c.retention.Milliseconds() {
		return "", false
	}
	return e.id, true
}

// Hydrate seeds the cache from persisted rows on startup.
func (c *Cache) Hydrate(buckets map[int64]string) {
	now := time.Now().UnixMilli()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	for bucket, id := range buckets {
		c.entries[bucket] = entry{id: id, savedAt: now}
	}
}

func (c *Cache) Sweep(now int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for bucket, e := range c.entries {
		if now-e.savedAt >= c.retention.Milliseconds() {
			delete(c.entries, bucket)
		}
	}
}
