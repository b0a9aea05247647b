package alerting

import (
	"sync"
	"time"

	"github.com/anvh2/market-intel/internal/models"
)

// cooldownFor fixes the per-category windows.
func cooldownFor(category models.AlertCategory) time.Duration {
	switch category {
	case models.AlertBiasShift:
		return 30 * time.Minute
	case models.AlertFundingExtreme:
		return 4 * time.Hour
	default:
		return time.Hour
	}
}

// cooldowns tracks the last emission per category. The alert engine is the
// only writer; hydration happens once on startup.
type cooldowns struct {
	mutex sync.Mutex
	last  map[models.AlertCategory]int64
}

func newCooldowns() *cooldowns {
	return &cooldowns{last: make(map[models.AlertCategory]int64)}
}

// ready reports whether the category may fire at now, and records the
// emission when it may.
func (c *cooldowns) ready(category models.AlertCategory, now int64) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if last, ok := c.last[category]; ok && now-last < cooldownFor(category).Milliseconds() {
		return false
	}
	c.last[category] = now
	return true
}

// hydrate seeds the table from persisted alert history.
func (c *cooldowns) hydrate(last map[models.AlertCategory]int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for category, ts := range last {
		if existing, ok := c.last[category]; !ok || ts > existing {
			c.last[category] = ts
		}
	}
}
