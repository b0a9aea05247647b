package cache

import (
	"github.com/anvh2/market-intel/internal/models"
)

// Candles is the in-memory layer of the historical-candle store: bounded
// per-series buffers hydrated at startup and refreshed by the data service.
type Candles interface {
	Append(venue models.Venue, interval string, candles ...models.Candle)
	// Range returns candles with start <= timestamp < end, sorted ascending.
	Range(venue models.Venue, interval string, start, end int64) []models.Candle
	// Latest returns the newest candle of a series, or false.
	Latest(venue models.Venue, interval string) (models.Candle, bool)
	Len(venue models.Venue, interval string) int
}

// Dedup is the time-bucket dedup cache in front of the state store.
type Dedup interface {
	// Put records id for the bucket; returns the existing id and true when
	// the bucket was already present and unexpired.
	Put(bucket int64, id string) (string, bool)
	Get(bucket int64) (string, bool)
	Sweep(now int64)
}
