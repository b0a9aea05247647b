package datafeed

import (
	"context"
	"testing"

	"github.com/anvh2/market-intel/internal/config"
	"github.com/anvh2/market-intel/internal/externals/coinglass"
	"github.com/anvh2/market-intel/internal/libs/logger"
	"github.com/anvh2/market-intel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hourMs = 3_600_000

// fakeVendor serves deterministic candle series and records the requests it
// saw. It honours limit and endTime the way the real API does.
type fakeVendor struct {
	requests []coinglass.Request
	failAll  bool
	failFor  map[string]error // venue -> error
	latest   int64            // open timestamp of the newest closed candle
	first    int64            // history starts here; older candles do not exist
}

func (f *fakeVendor) series(req coinglass.Request, fill func(i int, c *models.Candle)) ([]models.Candle, error) {
	f.requests = append(f.requests, req)

	if f.failAll {
		return []models.Candle{}, &models.TransientNetworkError{Endpoint: "fake", Attempt: 3}
	}
	if err, ok := f.failFor[req.Venue]; ok {
		return []models.Candle{}, err
	}

	intervalMs := models.IntervalMs(req.Interval)
	end := f.latest
	if req.EndTime != 0 && req.EndTime < end {
		end = req.EndTime
	}

	out := make([]models.Candle, 0, req.Limit)
	for i := req.Limit - 1; i >= 0; i-- {
		ts := end - int64(i)*intervalMs
		if ts < f.first {
			continue
		}
		c := models.Candle{
			Venue:     models.Venue(req.Venue),
			Symbol:    req.Symbol,
			Interval:  req.Interval,
			Timestamp: ts,
			Open:      50_000,
			High:      50_500,
			Low:       49_500,
			Close:     50_000 + float64(i%7)*10,
			Volume:    1_000,
		}
		fill(i, &c)
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeVendor) Price(ctx context.Context, req coinglass.Request) ([]models.Candle, error) {
	return f.series(req, func(i int, c *models.Candle) {})
}

func (f *fakeVendor) OpenInterest(ctx context.Context, req coinglass.Request) ([]models.Candle, error) {
	return f.series(req, func(i int, c *models.Candle) {
		oi := 8_000_000_000 + float64(i)*1_000_000
		c.OI = &oi
	})
}

func (f *fakeVendor) Funding(ctx context.Context, req coinglass.Request) ([]models.Candle, error) {
	return f.series(req, func(i int, c *models.Candle) {
		rate := 0.01
		c.FundingRate = &rate
	})
}

func (f *fakeVendor) TakerBuySellVolume(ctx context.Context, req coinglass.Request) ([]models.Candle, error) {
	return f.series(req, func(i int, c *models.Candle) {
		buy, sell := 2_000_000.0, 1_500_000.0
		c.BuyVolume = &buy
		c.SellVolume = &sell
	})
}

type fakeStore struct {
	rows map[string][]models.Candle
}

func (f *fakeStore) UpsertBatch(ctx context.Context, candles []models.Candle) error { return nil }

func (f *fakeStore) Range(ctx context.Context, venue models.Venue, symbol, interval string, start, end int64) ([]models.Candle, error) {
	out := []models.Candle{}
	for _, c := range f.rows[string(venue)+":"+interval] {
		if c.Timestamp >= start && c.Timestamp < end {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) Count(ctx context.Context, venue models.Venue, symbol, interval string, start, end int64) (int, error) {
	rows, _ := f.Range(ctx, venue, symbol, interval, start, end)
	return len(rows), nil
}

func marketConfig() config.MarketConfig {
	return config.MarketConfig{
		Symbol:           "BTC",
		PrimaryTimeframe: "4h",
		Timeframes:       []string{"30m", "1h", "4h", "1d"},
		HistoryCandles:   60,
		Instruments: map[string]string{
			"binance": "BTCUSDT",
			"bybit":   "BTCUSD",
		},
	}
}

func newTestService(vendor *fakeVendor) *Service {
	svc := New(logger.NewDev(), vendor, &fakeStore{rows: map[string][]models.Candle{}}, nil, marketConfig(), config.StorageConfig{})
	return svc.WithClock(func() int64 { return vendor.latest + hourMs })
}

func TestLiveSnapshotBothVenues(t *testing.T) {
	vendor := &fakeVendor{latest: 1_700_000_000_000 - 1_700_000_000_000%hourMs}
	svc := newTestService(vendor)

	snap, err := svc.Snapshot(context.Background(), models.DefaultAnalyzerConfig())
	require.NoError(t, err)
	require.NotNil(t, snap)

	for _, venue := range models.Venues() {
		data := snap.Venues[venue]
		require.NotNil(t, data, string(venue))
		for _, interval := range marketConfig().Timeframes {
			leg := data.Snapshots[interval]
			require.NotNil(t, leg, interval)
			assert.Equal(t, interval, leg.CVDRequestedTimeframe)
			assert.Equal(t, WindowFor(interval).APIInterval, leg.CVDResolution)
			assert.NotZero(t, leg.Price)
			require.NotNil(t, data.History[interval])
			assert.NotEmpty(t, data.History[interval].PriceHistory)
		}
	}
	assert.False(t, snap.Meta.PartialData)
}

func TestPartialFailureKeepsOtherVenue(t *testing.T) {
	vendor := &fakeVendor{
		latest:  1_700_000_000_000 - 1_700_000_000_000%hourMs,
		failFor: map[string]error{"bybit": &models.TransientNetworkError{Endpoint: "fake"}},
	}
	svc := newTestService(vendor)

	snap, err := svc.Snapshot(context.Background(), models.DefaultAnalyzerConfig())
	require.NoError(t, err)

	assert.True(t, snap.Meta.PartialData)
	assert.Nil(t, snap.Venues[models.VenueBybit])
	assert.NotNil(t, snap.Venues[models.VenueBinance])
	assert.Contains(t, snap.Meta.FailedVenues, models.VenueBybit)
}

func TestRateLimitAbortsSnapshot(t *testing.T) {
	vendor := &fakeVendor{
		latest:  1_700_000_000_000 - 1_700_000_000_000%hourMs,
		failFor: map[string]error{"binance": &models.RateLimitError{Endpoint: "fake", Message: "slow down"}},
	}
	svc := newTestService(vendor)

	_, err := svc.Snapshot(context.Background(), models.DefaultAnalyzerConfig())
	var rateLimited *models.RateLimitError
	require.ErrorAs(t, err, &rateLimited)
}

// No-lookahead: every candle of a replay is at or before the aligned end of
// its interval.
func TestReplayNoLookahead(t *testing.T) {
	base := int64(1_700_000_000_000)
	base -= base % models.IntervalMs("1d")
	asOf := base + 7*hourMs + 1_234_000 // mid-candle on every timeframe

	vendor := &fakeVendor{latest: base + 365*24*hourMs} // vendor has far future data
	svc := New(logger.NewDev(), vendor, &fakeStore{rows: map[string][]models.Candle{}}, nil, marketConfig(), config.StorageConfig{})

	snap, err := svc.Replay(context.Background(), models.DefaultAnalyzerConfig(), asOf)
	require.NoError(t, err)

	for _, venue := range models.Venues() {
		data := snap.Venues[venue]
		require.NotNil(t, data, string(venue))
		for interval, history := range data.History {
			expectedEnd := models.AlignEndToLastClosed(asOf, interval)
			for _, c := range history.PriceHistory {
				assert.LessOrEqual(t, c.Timestamp, expectedEnd,
					"lookahead on %s %s", venue, interval)
			}
		}
	}
}

func TestReplayInsufficientDataAfterWidening(t *testing.T) {
	base := int64(1_700_000_000_000)
	base -= base % models.IntervalMs("1d")

	// The vendor's history starts well after the replay point, so even the
	// widened window stays empty.
	vendor := &fakeVendor{latest: base, first: base - 24*hourMs}
	svc := New(logger.NewDev(), vendor, &fakeStore{rows: map[string][]models.Candle{}}, nil, marketConfig(), config.StorageConfig{})

	asOf := base - 300*24*hourMs
	_, err := svc.Replay(context.Background(), models.DefaultAnalyzerConfig(), asOf)

	var insufficient *models.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
}

func TestLocalOnlyRaisesWhenEmpty(t *testing.T) {
	vendor := &fakeVendor{latest: 1_700_000_000_000 - 1_700_000_000_000%hourMs}
	svc := New(logger.NewDev(), vendor, &fakeStore{rows: map[string][]models.Candle{}}, nil,
		marketConfig(), config.StorageConfig{LocalOnly: true})
	svc.WithClock(func() int64 { return vendor.latest + hourMs })

	_, err := svc.Snapshot(context.Background(), models.DefaultAnalyzerConfig())
	require.Error(t, err)
}

func TestStalenessMarkedNotFatal(t *testing.T) {
	// Latest candle is five hours old on the 1h series.
	vendor := &fakeVendor{latest: 1_700_000_000_000 - 1_700_000_000_000%hourMs}
	svc := New(logger.NewDev(), vendor, &fakeStore{rows: map[string][]models.Candle{}}, nil, marketConfig(), config.StorageConfig{})
	svc.WithClock(func() int64 { return vendor.latest + 6*hourMs })

	snap, err := svc.Snapshot(context.Background(), models.DefaultAnalyzerConfig())
	require.NoError(t, err)

	leg := snap.Leg(models.VenueBinance, "1h")
	require.NotNil(t, leg)
	assert.True(t, leg.Stale)
	assert.Greater(t, leg.AgeMinutes, 120.0)

	// The daily leg is still fresh.
	daily := snap.Leg(models.VenueBinance, "1d")
	require.NotNil(t, daily)
	assert.False(t, daily.Stale)
}
