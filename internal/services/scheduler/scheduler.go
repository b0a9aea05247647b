package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/anvh2/market-intel/internal/cache"
	"github.com/anvh2/market-intel/internal/config"
	"github.com/anvh2/market-intel/internal/libs/logger"
	"github.com/anvh2/market-intel/internal/libs/queue"
	"github.com/anvh2/market-intel/internal/libs/storage/simpledb"
	"github.com/anvh2/market-intel/internal/metrics"
	"github.com/anvh2/market-intel/internal/models"
	"github.com/anvh2/market-intel/internal/services/alerting"
	"github.com/anvh2/market-intel/internal/services/configsvc"
	"github.com/anvh2/market-intel/internal/services/datafeed"
	"github.com/anvh2/market-intel/internal/services/engine"
	"github.com/anvh2/market-intel/internal/services/notify"
	"github.com/anvh2/market-intel/internal/services/outcome"
	"github.com/anvh2/market-intel/internal/services/statestore"
	"github.com/anvh2/market-intel/internal/storage/postgres"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// warmState is the simpledb snapshot that survives restarts so the first
// cycle after boot can diff against something.
type warmState struct {
	Previous *models.MarketState `json:"previous"`
	SavedAt  int64               `json:"saved_at"`
}

// Scheduler owns the process lifecycle: the live cycle, the hourly labeling
// sweep, the daily summary, retention cleanup, and pause/resume around
// replay batches. Per cycle there is exactly one worker; overruns are
// skipped, never queued.
type Scheduler struct {
	logger    *logger.Logger
	cfg       config.Config
	datafeed  *datafeed.Service
	engine    *engine.Engine
	alerting  *alerting.Engine
	store     *statestore.Store
	configSvc *configsvc.Service
	labeler   *outcome.Labeler
	queue     queue.IQueue
	warm      simpledb.DB
	candles   *postgres.CandlesRepo
	cache     cache.Candles

	previous *models.MarketState
	paused   atomic.Bool
	busy     atomic.Bool
}

func New(
	logger *logger.Logger,
	cfg config.Config,
	feed *datafeed.Service,
	eng *engine.Engine,
	alerts *alerting.Engine,
	store *statestore.Store,
	configSvc *configsvc.Service,
	labeler *outcome.Labeler,
	q queue.IQueue,
	warm simpledb.DB,
	candles *postgres.CandlesRepo,
	candleCache cache.Candles,
) *Scheduler {
	return &Scheduler{
		logger:    logger,
		cfg:       cfg,
		datafeed:  feed,
		engine:    eng,
		alerting:  alerts,
		store:     store,
		configSvc: configSvc,
		labeler:   labeler,
		queue:     q,
		warm:      warm,
		candles:   candles,
		cache:     candleCache,
	}
}

// Bootstrap hydrates every stateful piece before the first cycle: active
// config, dedup cache, alert cooldowns, the warm previous state, and the
// in-memory candle series when the startup cache is enabled.
func (s *Scheduler) Bootstrap(ctx context.Context, alertHistory alerting.History) error {
	if err := s.configSvc.Load(ctx); err != nil {
		return err
	}
	if err := s.store.Hydrate(ctx); err != nil {
		s.logger.Warn("[Scheduler] dedup hydration failed, starting cold", zap.Error(err))
	}
	if err := s.alerting.Hydrate(ctx, alertHistory); err != nil {
		s.logger.Warn("[Scheduler] cooldown hydration failed, starting cold", zap.Error(err))
	}

	if s.warm != nil {
		warm := &warmState{}
		if err := s.warm.Load(warm); err == nil && warm.Previous != nil {
			s.previous = warm.Previous
			s.logger.Info("[Scheduler] warm state restored",
				zap.Int64("timestamp", warm.Previous.Timestamp))
		}
	}

	if s.cfg.Scheduler.EnableStartupCache {
		s.hydrateCandleCache(ctx)
	}

	// A durable previous replaces the file snapshot when it is newer.
	if latest, err := s.store.Latest(ctx); err == nil && latest != nil {
		if s.previous == nil || latest.Timestamp > s.previous.Timestamp {
			s.previous = latest
		}
	}

	return nil
}

func (s *Scheduler) hydrateCandleCache(ctx context.Context) {
	if s.candles == nil || s.cache == nil {
		return
	}
	for _, venue := range models.Venues() {
		for _, interval := range s.cfg.Market.Timeframes {
			rows, err := s.candles.Recent(ctx, venue, s.cfg.Market.Symbol, interval, s.cfg.Market.HistoryCandles)
			if err != nil {
				s.logger.Warn("[Scheduler] candle cache hydration failed",
					zap.String("venue", string(venue)), zap.String("interval", interval), zap.Error(err))
				continue
			}
			if len(rows) > 0 {
				s.cache.Append(venue, interval, rows...)
			}
		}
	}
}

// Run blocks until ctx is cancelled, driving all periodic jobs. Jobs other
// than the live cycle only run when cron jobs are enabled.
func (s *Scheduler) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	scanCycle := s.cfg.Scheduler.ScanCycle
	if scanCycle == 0 {
		scanCycle = 5 * time.Minute
	}

	group.Go(func() error {
		ticker := time.NewTicker(scanCycle)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunCycle(ctx)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	if s.cfg.Scheduler.EnableCronJobs {
		sweepEvery := s.cfg.Scheduler.LabelSweepEvery
		if sweepEvery == 0 {
			sweepEvery = time.Hour
		}
		group.Go(func() error {
			ticker := time.NewTicker(sweepEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := s.labeler.Sweep(ctx, 50); err != nil {
						s.logger.Error("[Scheduler] label sweep failed", zap.Error(err))
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})

		group.Go(func() error { return s.dailyLoop(ctx) })

		cleanupEvery := s.cfg.Scheduler.CleanupEvery
		if cleanupEvery == 0 {
			cleanupEvery = 24 * time.Hour
		}
		group.Go(func() error {
			ticker := time.NewTicker(cleanupEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					s.store.Cleanup(ctx)
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})
	}

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// dailyLoop fires the summary job once per UTC day, just after midnight.
func (s *Scheduler) dailyLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	lastDay := time.Now().UTC().Format("2006-01-02")
	for {
		select {
		case <-ticker.C:
			today := time.Now().UTC().Format("2006-01-02")
			if today == lastDay {
				continue
			}
			lastDay = today
			yesterday := time.Now().UTC().Add(-24 * time.Hour)
			if err := s.store.BuildDailySummary(ctx, yesterday); err != nil {
				s.logger.Error("[Scheduler] daily summary failed", zap.Error(err))
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pause stops live cycles, e.g. while a replay batch holds the rate budget.
func (s *Scheduler) Pause()  { s.paused.Store(true) }
func (s *Scheduler) Resume() { s.paused.Store(false) }

// RunCycle performs one full pipeline pass. It never panics the process and
// never persists a partial MarketState: failures before the save leave the
// previous state untouched.
func (s *Scheduler) RunCycle(ctx context.Context) {
	if s.paused.Load() {
		s.logger.Debug("[Scheduler] paused, skipping cycle")
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Warn("[Scheduler] previous cycle still running, skipping")
		metrics.CyclesTotal.WithLabelValues("skipped").Inc()
		return
	}
	defer s.busy.Store(false)

	started := time.Now()
	budget := s.cycleBudget()

	params := s.configSvc.Snapshot()

	snapshot, err := s.datafeed.Snapshot(ctx, params)
	if err != nil {
		var rateLimited *models.RateLimitError
		if errors.As(err, &rateLimited) {
			s.logger.Warn("[Scheduler] rate limited, skipping cycle", zap.Error(err))
			metrics.CyclesTotal.WithLabelValues("rate_limited").Inc()
			return
		}
		s.logger.Error("[Scheduler] snapshot failed", zap.Error(err))
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		return
	}

	state := s.engine.Analyze(snapshot, params, s.cfg.Market.Timeframes)
	if primary := s.cfg.Market.PrimaryTimeframe; primary != "" {
		if _, ok := state.Timeframes[primary]; ok {
			state.PrimaryTimeframe = primary
		}
	}

	alerts := s.alerting.Compare(s.previous, state)

	result, err := s.store.Save(ctx, state)
	if err != nil {
		// Next cycle reattempts; alerts are not distributed for an
		// unpersisted state.
		s.logger.Error("[Scheduler] state save failed", zap.Error(err))
		metrics.CyclesTotal.WithLabelValues("store_failed").Inc()
		s.previous = state
		return
	}
	if result.Deduplicated {
		metrics.DedupHits.Inc()
	}

	s.store.SaveAlerts(ctx, alerts, result.ID)
	for _, alert := range alerts {
		metrics.AlertsEmitted.WithLabelValues(string(alert.Category)).Inc()
		if s.queue != nil {
			if err := s.queue.Push(ctx, notify.AlertTopic, alert); err != nil {
				s.logger.Error("[Scheduler] alert publish failed", zap.Error(err))
			}
		}
	}

	s.previous = state
	if s.warm != nil {
		if err := s.warm.Save(&warmState{Previous: state, SavedAt: time.Now().UnixMilli()}); err != nil {
			s.logger.Warn("[Scheduler] warm snapshot failed", zap.Error(err))
		}
	}

	elapsed := time.Since(started)
	metrics.CycleDuration.Observe(elapsed.Seconds())
	metrics.CyclesTotal.WithLabelValues("ok").Inc()
	if elapsed > budget {
		s.logger.Warn("[Scheduler] slow cycle",
			zap.Duration("elapsed", elapsed), zap.Duration("budget", budget))
	}

	s.logger.Info("[Scheduler] cycle complete",
		zap.String("bias", string(state.FinalDecision.Bias)),
		zap.Float64("confidence", state.FinalDecision.Confidence),
		zap.String("quality", string(state.DataQuality)),
		zap.Int("alerts", len(alerts)),
		zap.Bool("deduplicated", result.Deduplicated),
		zap.Duration("elapsed", elapsed))
}

// Replay runs one pipeline pass as of a historical timestamp. Live cycles
// are paused for the duration so the rate budget is not contended.
func (s *Scheduler) Replay(ctx context.Context, asOf time.Time) (*models.MarketState, error) {
	s.Pause()
	defer s.Resume()

	params := s.configSvc.Snapshot()
	snapshot, err := s.datafeed.Replay(ctx, params, asOf.UnixMilli())
	if err != nil {
		return nil, err
	}

	state := s.engine.Analyze(snapshot, params, s.cfg.Market.Timeframes)
	if primary := s.cfg.Market.PrimaryTimeframe; primary != "" {
		if _, ok := state.Timeframes[primary]; ok {
			state.PrimaryTimeframe = primary
		}
	}
	return state, nil
}

// cycleBudget is the soft wall-time allowance: one vendor timeout per call
// plus the serialized inter-call delay.
func (s *Scheduler) cycleBudget() time.Duration {
	calls := len(models.Venues()) * len(s.cfg.Market.Timeframes) * 4
	perCall := s.cfg.Coinglass.RequestTimeout
	if perCall == 0 {
		perCall = 30 * time.Second
	}
	return time.Duration(calls)*perCall + time.Duration(calls)*s.cfg.Coinglass.PlanDelay()
}
