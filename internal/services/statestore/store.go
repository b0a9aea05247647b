package statestore

import (
	"context"
	"time"

	"github.com/anvh2/market-intel/internal/cache"
	"github.com/anvh2/market-intel/internal/config"
	"github.com/anvh2/market-intel/internal/libs/logger"
	"github.com/anvh2/market-intel/internal/models"
	"github.com/anvh2/market-intel/internal/storage/postgres"
	"go.uber.org/zap"
)

// States is the durable side the store drives.
type States interface {
	Insert(ctx context.Context, state *models.MarketState, timeBucket int64) (string, bool, error)
	Latest(ctx context.Context, symbol string) (*models.MarketState, error)
	RecentBuckets(ctx context.Context, symbol string, since int64) (map[int64]string, error)
	Day(ctx context.Context, symbol string, dayStart, dayEnd int64) ([]postgres.DayRow, error)
	DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error)
}

type Alerts interface {
	Insert(ctx context.Context, alert *models.Alert) error
	CountsSince(ctx context.Context, start, end int64) (int64, int64, error)
	DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error)
}

type Summaries interface {
	Upsert(ctx context.Context, s *postgres.DailySummary) error
	DeleteOlderThan(ctx context.Context, cutoffDate string) (int64, error)
}

// SaveResult reports where a state landed.
type SaveResult struct {
	ID           string `json:"id"`
	Deduplicated bool   `json:"deduplicated"`
}

// Store fronts the persistence of MarketStates with the time-bucket dedup
// cache: one writer per (symbol, timeBucket), enforced in memory first and
// by the unique constraint second.
type Store struct {
	logger      *logger.Logger
	states      States
	alerts      Alerts
	summaries   Summaries
	dedup       cache.Dedup
	symbol      string
	scanCycleMs int64
	storage     config.StorageConfig
	now         func() int64
}

func New(
	logger *logger.Logger,
	states States,
	alerts Alerts,
	summaries Summaries,
	dedup cache.Dedup,
	symbol string,
	scanCycle time.Duration,
	storage config.StorageConfig,
) *Store {
	if scanCycle == 0 {
		scanCycle = 5 * time.Minute
	}
	return &Store{
		logger:      logger,
		states:      states,
		alerts:      alerts,
		summaries:   summaries,
		dedup:       dedup,
		symbol:      symbol,
		scanCycleMs: scanCycle.Milliseconds(),
		storage:     storage,
	}
}

// WithClock overrides the wall clock; tests pin it.
func (s *Store) WithClock(now func() int64) *Store {
	s.now = now
	return s
}

func (s *Store) clock() int64 {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UnixMilli()
}

// Hydrate seeds the dedup cache from recent rows on startup.
func (s *Store) Hydrate(ctx context.Context) error {
	since := s.clock() - time.Hour.Milliseconds()
	buckets, err := s.states.RecentBuckets(ctx, s.symbol, since)
	if err != nil {
		return err
	}
	if hydrator, ok := s.dedup.(interface{ Hydrate(map[int64]string) }); ok {
		hydrator.Hydrate(buckets)
	}
	s.logger.Info("[StateStore] dedup cache hydrated", zap.Int("buckets", len(buckets)))
	return nil
}

// Save persists a state unless its time bucket already holds one. The
// second call in a bucket returns the first call's id with deduplicated
// set; deduplication itself never raises.
func (s *Store) Save(ctx context.Context, state *models.MarketState) (SaveResult, error) {
	bucket := models.TimeBucket(state.Timestamp, s.scanCycleMs)

	if id, hit := s.dedup.Get(bucket); hit {
		return SaveResult{ID: id, Deduplicated: true}, nil
	}

	id, conflicted, err := s.states.Insert(ctx, state, bucket)
	if err != nil {
		return SaveResult{}, err
	}

	s.dedup.Put(bucket, id)
	s.dedup.Sweep(s.clock())

	return SaveResult{ID: id, Deduplicated: conflicted}, nil
}

// SaveAlerts persists the cycle's alerts against the saved state.
func (s *Store) SaveAlerts(ctx context.Context, alerts []*models.Alert, stateID string) {
	for _, alert := range alerts {
		if alert.MarketStateID == "" {
			alert.MarketStateID = stateID
		}
		if err := s.alerts.Insert(ctx, alert); err != nil {
			s.logger.Error("[StateStore] failed to persist alert",
				zap.String("category", string(alert.Category)), zap.Error(err))
		}
	}
}

// Latest returns the newest persisted state.
func (s *Store) Latest(ctx context.Context) (*models.MarketState, error) {
	return s.states.Latest(ctx, s.symbol)
}

// BuildDailySummary aggregates one UTC day of states into a summary row.
func (s *Store) BuildDailySummary(ctx context.Context, day time.Time) error {
	dayStart := day.UTC().Truncate(24 * time.Hour)
	start := dayStart.UnixMilli()
	end := dayStart.Add(24 * time.Hour).UnixMilli()

	rows, err := s.states.Day(ctx, s.symbol, start, end)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	summary := &postgres.DailySummary{
		Date:               dayStart.Format("2006-01-02"),
		Symbol:             s.symbol,
		BiasPct:            make(map[string]float64),
		RegimeDistribution: make(map[string]int),
		StateCount:         len(rows),
		Open:               rows[0].Price,
		Close:              rows[len(rows)-1].Price,
		Low:                rows[0].Price,
	}

	biasCounts := make(map[string]int)
	confidenceSum := 0.0
	for _, row := range rows {
		confidenceSum += row.Confidence
		biasCounts[row.Bias]++
		summary.RegimeDistribution[row.Regime]++
		if row.Price > summary.High {
			summary.High = row.Price
		}
		if row.Price < summary.Low && row.Price > 0 {
			summary.Low = row.Price
		}
	}

	summary.AvgConfidence = confidenceSum / float64(len(rows))
	best := 0
	for bias, count := range biasCounts {
		summary.BiasPct[bias] = float64(count) / float64(len(rows)) * 100
		if count > best {
			best = count
			summary.PredominantBias = models.ParseBias(bias)
		}
	}

	total, high, err := s.alerts.CountsSince(ctx, start, end)
	if err != nil {
		return err
	}
	summary.TotalAlerts = total
	summary.HighPriorityAlerts = high

	return s.summaries.Upsert(ctx, summary)
}

// Cleanup enforces retention: detailed rows for 90 days, summaries for two
// years.
func (s *Store) Cleanup(ctx context.Context) {
	detail := s.storage.DetailRetention
	if detail == 0 {
		detail = 90 * 24 * time.Hour
	}
	summaries := s.storage.SummaryRetention
	if summaries == 0 {
		summaries = 2 * 365 * 24 * time.Hour
	}

	now := s.clock()

	if n, err := s.states.DeleteOlderThan(ctx, now-detail.Milliseconds()); err != nil {
		s.logger.Error("[StateStore] state cleanup failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("[StateStore] states pruned", zap.Int64("rows", n))
	}

	if n, err := s.alerts.DeleteOlderThan(ctx, now-detail.Milliseconds()); err != nil {
		s.logger.Error("[StateStore] alert cleanup failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("[StateStore] alerts pruned", zap.Int64("rows", n))
	}

	cutoffDate := time.UnixMilli(now).UTC().Add(-summaries).Format("2006-01-02")
	if n, err := s.summaries.DeleteOlderThan(ctx, cutoffDate); err != nil {
		s.logger.Error("[StateStore] summary cleanup failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("[StateStore] summaries pruned", zap.Int64("rows", n))
	}
}
