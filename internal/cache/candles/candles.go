package candles

import (
	"sort"
	"sync"

	"github.com/anvh2/market-intel/internal/cache"
	"github.com/anvh2/market-intel/internal/libs/cache/circular"
	"github.com/anvh2/market-intel/internal/models"
)

var _ cache.Candles = &Cache{}

// Cache keeps a bounded candle series per (venue, interval) on circular
// buffers. Appends deduplicate by open timestamp; the newest row wins.
type Cache struct {
	size   int32
	mutex  sync.RWMutex
	series map[string]*series
}

type series struct {
	ring *circular.Cache
	// seen maps timestamp -> ring slot for upsert-on-conflict; slots maps
	// the other way so an overwritten slot evicts its old timestamp.
	seen  map[int64]int32
	slots map[int32]int64
}

func New(size int32) *Cache {
	return &Cache{
		size:   size,
		series: make(map[string]*series),
	}
}

func key(venue models.Venue, interval string) string {
	return string(venue) + ":" + interval
}

func (c *Cache) get(venue models.Venue, interval string) *series {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	k := key(venue, interval)
	s, ok := c.series[k]
	if !ok {
		s = &series{
			ring:  circular.New(c.size),
			seen:  make(map[int64]int32),
			slots: make(map[int32]int64),
		}
		c.series[k] = s
	}
	return s
}

func (c *Cache) Append(venue models.Venue, interval string, candles ...models.Candle) {
	s := c.get(venue, interval)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	for _, candle := range candles {
		if idx, ok := s.seen[candle.Timestamp]; ok {
			s.ring.Update(idx, candle)
			continue
		}
		idx := s.ring.Insert(candle)
		if evicted, ok := s.slots[idx]; ok {
			delete(s.seen, evicted)
		}
		s.slots[idx] = candle.Timestamp
		s.seen[candle.Timestamp] = idx
	}
}

func (c *Cache) Range(venue models.Venue, interval string, start, end int64) []models.Candle {
	c.mutex.RLock()
	s, ok := c.series[key(venue, interval)]
	c.mutex.RUnlock()
	if !ok {
		return nil
	}

	out := make([]models.Candle, 0)
	for _, raw := range s.ring.Read() {
		candle, ok := raw.(models.Candle)
		if !ok {
			continue
		}
		if candle.Timestamp >= start && candle.Timestamp < end {
			out = append(out, candle)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

func (c *Cache) Latest(venue models.Venue, interval string) (models.Candle, bool) {
	c.mutex.RLock()
	s, ok := c.series[key(venue, interval)]
	c.mutex.RUnlock()
	if !ok {
		return models.Candle{}, false
	}

	var latest models.Candle
	found := false
	for _, raw := range s.ring.Read() {
		candle, ok := raw.(models.Candle)
		if !ok {
			continue
		}
		if !found || candle.Timestamp > latest.Timestamp {
			latest = candle
			found = true
		}
	}
	return latest, found
}

func (c *Cache) Len(venue models.Venue, interval string) int {
	c.mutex.RLock()
	s, ok := c.series[key(venue, interval)]
	c.mutex.RUnlock()
	if !ok {
		return 0
	}
	return len(s.ring.Read())
}
