package candles

import (
	"testing"

	"github.com/anvh2/market-intel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(ts int64, close float64) models.Candle {
	return models.Candle{Venue: models.VenueBinance, Symbol: "BTC", Interval: "1h", Timestamp: ts, Close: close}
}

func TestAppendAndRange(t *testing.T) {
	cache := New(16)

	cache.Append(models.VenueBinance, "1h", row(3, 3), row(1, 1), row(2, 2))

	out := cache.Range(models.VenueBinance, "1h", 0, 10)
	require.Len(t, out, 3)
	assert.Equal(t, int64(1), out[0].Timestamp, "range is sorted ascending")
	assert.Equal(t, int64(3), out[2].Timestamp)

	bounded := cache.Range(models.VenueBinance, "1h", 2, 3)
	require.Len(t, bounded, 1)
	assert.Equal(t, int64(2), bounded[0].Timestamp)
}

func TestUpsertOnConflict(t *testing.T) {
	cache := New(16)

	cache.Append(models.VenueBinance, "1h", row(1, 100))
	cache.Append(models.VenueBinance, "1h", row(1, 200))

	out := cache.Range(models.VenueBinance, "1h", 0, 10)
	require.Len(t, out, 1, "same timestamp upserts, never duplicates")
	assert.Equal(t, 200.0, out[0].Close)
}

func TestLatest(t *testing.T) {
	cache := New(16)
	_, ok := cache.Latest(models.VenueBinance, "1h")
	assert.False(t, ok)

	cache.Append(models.VenueBinance, "1h", row(5, 5), row(9, 9), row(7, 7))
	latest, ok := cache.Latest(models.VenueBinance, "1h")
	require.True(t, ok)
	assert.Equal(t, int64(9), latest.Timestamp)
}

func TestSeriesIsolation(t *testing.T) {
	cache := New(16)
	cache.Append(models.VenueBinance, "1h", row(1, 1))
	cache.Append(models.VenueBybit, "1h", row(2, 2))

	assert.Equal(t, 1, cache.Len(models.VenueBinance, "1h"))
	assert.Equal(t, 1, cache.Len(models.VenueBybit, "1h"))
	assert.Zero(t, cache.Len(models.VenueBinance, "4h"))
}
