package datafeed

import (
	"context"

	"github.com/anvh2/market-intel/internal/cache"
	"github.com/anvh2/market-intel/internal/config"
	"github.com/anvh2/market-intel/internal/externals/coinglass"
	"github.com/anvh2/market-intel/internal/libs/logger"
	"github.com/anvh2/market-intel/internal/models"
)

// Vendor is the narrow contract the data service consumes. The Coinglass
// client implements it; tests substitute fakes.
type Vendor interface {
	Price(ctx context.Context, req coinglass.Request) ([]models.Candle, error)
	OpenInterest(ctx context.Context, req coinglass.Request) ([]models.Candle, error)
	Funding(ctx context.Context, req coinglass.Request) ([]models.Candle, error)
	TakerBuySellVolume(ctx context.Context, req coinglass.Request) ([]models.Candle, error)
}

// CandleStore is the durable side of the historical-candle store.
type CandleStore interface {
	UpsertBatch(ctx context.Context, candles []models.Candle) error
	Range(ctx context.Context, venue models.Venue, symbol, interval string, start, end int64) ([]models.Candle, error)
	Count(ctx context.Context, venue models.Venue, symbol, interval string, start, end int64) (int, error)
}

// Service assembles coherent per-timeframe snapshots for both venues. It is
// the only component that talks to the vendor; all calls inside one cycle
// are sequential, paced by the vendor client's plan limiter.
type Service struct {
	logger  *logger.Logger
	vendor  Vendor
	store   CandleStore
	candles cache.Candles
	market  config.MarketConfig
	storage config.StorageConfig
	now     func() int64
}

func New(
	logger *logger.Logger,
	vendor Vendor,
	store CandleStore,
	candleCache cache.Candles,
	market config.MarketConfig,
	storage config.StorageConfig,
) *Service {
	if market.HistoryCandles == 0 {
		market.HistoryCandles = 60
	}
	return &Service{
		logger:  logger,
		vendor:  vendor,
		store:   store,
		candles: candleCache,
		market:  market,
		storage: storage,
	}
}

// WithClock overrides the wall clock; tests pin it.
func (s *Service) WithClock(now func() int64) *Service {
	s.now = now
	return s
}

func (s *Service) clock() int64 {
	if s.now != nil {
		return s.now()
	}
	return nowMs()
}

// instrument maps a venue onto the vendor instrument id from config.
func (s *Service) instrument(venue models.Venue) string {
	if id, ok := s.market.Instruments[string(venue)]; ok {
		return id
	}
	return s.market.Symbol
}
