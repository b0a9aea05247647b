package servers

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anvh2/market-intel/internal/cache/candles"
	"github.com/anvh2/market-intel/internal/cache/dedup"
	"github.com/anvh2/market-intel/internal/config"
	"github.com/anvh2/market-intel/internal/externals/coinglass"
	"github.com/anvh2/market-intel/internal/externals/telegram"
	"github.com/anvh2/market-intel/internal/libs/logger"
	"github.com/anvh2/market-intel/internal/libs/queue"
	"github.com/anvh2/market-intel/internal/libs/storage/simpledb"
	"github.com/anvh2/market-intel/internal/services/alerting"
	"github.com/anvh2/market-intel/internal/services/configsvc"
	"github.com/anvh2/market-intel/internal/services/datafeed"
	"github.com/anvh2/market-intel/internal/services/engine"
	"github.com/anvh2/market-intel/internal/services/notify"
	"github.com/anvh2/market-intel/internal/services/outcome"
	"github.com/anvh2/market-intel/internal/services/scheduler"
	"github.com/anvh2/market-intel/internal/services/statestore"
	"github.com/anvh2/market-intel/internal/storage/postgres"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Server is the composition root: it wires the engine context together,
// hydrates state on startup and tears everything down on SIGINT/SIGTERM.
type Server struct {
	logger    *logger.Logger
	cfg       config.Config
	scheduler *scheduler.Scheduler
	notifier  *notify.Notifier
	labeler   *outcome.Labeler
	http      *HTTP
	queue     queue.IQueue
	alerts    *postgres.AlertsRepo
	store     *statestore.Store
}

func New() (*Server, error) {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	applyEnv(&cfg)

	log, err := logger.New(viper.GetString("log_path"))
	if err != nil {
		log = logger.NewDev()
	}

	db, err := postgres.Connect(cfg.Storage)
	if err != nil {
		return nil, err
	}

	statesRepo := postgres.NewStatesRepo(db)
	alertsRepo := postgres.NewAlertsRepo(db)
	candlesRepo := postgres.NewCandlesRepo(db)
	configsRepo := postgres.NewConfigsRepo(db)
	summariesRepo := postgres.NewSummariesRepo(db)

	candleCache := candles.New(int32(cfg.Market.HistoryCandles * 2))
	dedupCache := dedup.New(cfg.Cache.DedupRetention)

	vendor := coinglass.New(log, cfg.Coinglass)
	feed := datafeed.New(log, vendor, candlesRepo, candleCache, cfg.Market, cfg.Storage)

	store := statestore.New(log, statesRepo, alertsRepo, summariesRepo, dedupCache,
		cfg.Market.Symbol, cfg.Scheduler.ScanCycle, cfg.Storage)

	configSvc := configsvc.New(log, configsRepo)
	alertEngine := alerting.New(log, cfg.Alerting)

	labeler, err := outcome.New(log, statesRepo, candlesRepo, cfg.Market.Symbol)
	if err != nil {
		return nil, err
	}

	alertQueue := queue.New(queue.WithRetention(6 * time.Hour))

	var warm simpledb.DB
	if cfg.Cache.StateFile != "" {
		warm, err = simpledb.NewStorage(log, cfg.Cache.StateFile, cfg.Cache.BackupDir)
		if err != nil {
			log.Warn("[Server] warm cache unavailable", zap.Error(err))
			warm = nil
		}
	}

	sched := scheduler.New(log, cfg, feed, engine.New(), alertEngine, store,
		configSvc, labeler, alertQueue, warm, candlesRepo, candleCache)

	server := &Server{
		logger:    log,
		cfg:       cfg,
		scheduler: sched,
		labeler:   labeler,
		queue:     alertQueue,
		alerts:    alertsRepo,
		store:     store,
	}

	if cfg.Telegram.Token != "" {
		bot, err := telegram.NewTelegramBot(log, cfg.Telegram.Token)
		if err != nil {
			log.Warn("[Server] telegram unavailable, alerts stay local", zap.Error(err))
		} else {
			server.notifier = notify.New(cfg.Notify, log, bot, alertQueue)
		}
	}

	server.http = NewHTTP(log, cfg.Server.Port, latestAdapter{store})

	return server, nil
}

// applyEnv maps the documented process environment onto the config tree,
// overriding file values.
func applyEnv(cfg *config.Config) {
	if v := os.Getenv("COINGLASS_ACTIVE_PLAN"); v != "" {
		cfg.Coinglass.ActivePlan = v
	}
	if v := os.Getenv("COINGLASS_API_KEY"); v != "" {
		cfg.Coinglass.APIKey = v
	}
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("SUPABASE_SERVICE_KEY"); v != "" {
		cfg.Storage.ServiceKey = v
	}
	if v := os.Getenv("ENABLE_CRON_JOBS"); v != "" {
		cfg.Scheduler.EnableCronJobs = v == "true" || v == "1"
	}
	if v := os.Getenv("ENABLE_STARTUP_CACHE"); v != "" {
		cfg.Scheduler.EnableStartupCache = v == "true" || v == "1"
	}
}

type latestAdapter struct {
	store *statestore.Store
}

func (a latestAdapter) Latest(ctx context.Context) (interface{}, error) {
	return a.store.Latest(ctx)
}

// Start runs until a termination signal arrives.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.scheduler.Bootstrap(ctx, s.alerts); err != nil {
		return err
	}
	if err := s.labeler.Start(); err != nil {
		return err
	}
	if s.notifier != nil {
		if err := s.notifier.Start(); err != nil {
			return err
		}
	}
	s.http.Start()

	s.logger.Info("[Server] started",
		zap.String("symbol", s.cfg.Market.Symbol),
		zap.Strings("timeframes", s.cfg.Market.Timeframes),
		zap.String("plan", s.cfg.Coinglass.ActivePlan))

	done := make(chan error, 1)
	go func() { done <- s.scheduler.Run(ctx) }()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		s.logger.Info("[Server] shutting down", zap.String("signal", sig.String()))
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			s.logger.Error("[Server] scheduler stopped", zap.Error(err))
		}
	}

	s.Stop()
	return nil
}

// Replay runs a single historical pass and returns the state.
func (s *Server) Replay(ctx context.Context, asOf time.Time) (interface{}, error) {
	if err := s.scheduler.Bootstrap(ctx, s.alerts); err != nil {
		return nil, err
	}
	return s.scheduler.Replay(ctx, asOf)
}

// LabelSweep runs one labeling pass on demand. The caller's Stop drains the
// worker pool.
func (s *Server) LabelSweep(ctx context.Context, batch int) error {
	if err := s.labeler.Start(); err != nil {
		return err
	}
	return s.labeler.Sweep(ctx, batch)
}

func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.http.Stop(shutdownCtx)
	if s.notifier != nil {
		s.notifier.Stop()
	}
	s.labeler.Stop()
	s.queue.Close()
	_ = s.logger.Sync()
}
