package config

import (
	"time"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Market    MarketConfig    `mapstructure:"market"`
	Coinglass CoinglassConfig `mapstructure:"coinglass"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Cache     CacheConfig     `mapstructure:"cache"`
}

type ServerConfig struct {
	// Port serves /metrics and /healthz only; the product API is a separate
	// collaborator.
	Port int `mapstructure:"port"`
}

type MarketConfig struct {
	Symbol           string `mapstructure:"symbol"`
	PrimaryTimeframe string `mapstructure:"primary_timeframe"`
	// Timeframes analyzed per cycle, lowest first.
	Timeframes []string `mapstructure:"timeframes"`
	// Instruments maps venue -> vendor instrument id.
	Instruments map[string]string `mapstructure:"instruments"`
	// HistoryCandles is the lookback depth fetched per (venue, interval).
	HistoryCandles int `mapstructure:"history_candles"`
}

type CoinglassConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	ActivePlan      string        `mapstructure:"active_plan"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RetryBase       time.Duration `mapstructure:"retry_base"`
	RetryMax        int           `mapstructure:"retry_max"`
	RetryMultiplier float64       `mapstructure:"retry_multiplier"`
}

// Plan rate budgets, requests per minute. The inter-call delay of the data
// service derives from these.
var planBudgets = map[string]int{
	"STARTUP":      30,
	"STANDARD":     90,
	"PROFESSIONAL": 300,
}

// PlanDelay returns the serialized inter-call delay for the active plan.
// Unknown plans fall back to the STARTUP budget.
func (c CoinglassConfig) PlanDelay() time.Duration {
	budget, ok := planBudgets[c.ActivePlan]
	if !ok {
		budget = planBudgets["STARTUP"]
	}
	return time.Minute / time.Duration(budget)
}

type StorageConfig struct {
	DSN          string        `mapstructure:"dsn"`
	ServiceKey   string        `mapstructure:"service_key"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
	// LocalOnly serves candle reads from the store exclusively; vendor gap
	// fills are disabled and short ranges fail.
	LocalOnly bool `mapstructure:"local_only"`
	// Retention windows.
	DetailRetention  time.Duration `mapstructure:"detail_retention"`
	SummaryRetention time.Duration `mapstructure:"summary_retention"`
}

type SchedulerConfig struct {
	ScanCycle          time.Duration `mapstructure:"scan_cycle"`
	EnableCronJobs     bool          `mapstructure:"enable_cron_jobs"`
	EnableStartupCache bool          `mapstructure:"enable_startup_cache"`
	LabelSweepEvery    time.Duration `mapstructure:"label_sweep_every"`
	CleanupEvery       time.Duration `mapstructure:"cleanup_every"`
}

type AlertingConfig struct {
	// CooldownLookback bounds the alert-history hydration window on startup.
	CooldownLookback time.Duration `mapstructure:"cooldown_lookback"`
	// AlertTTL sets expiresAt on emitted alerts.
	AlertTTL time.Duration `mapstructure:"alert_ttl"`
}

type NotifyConfig struct {
	Channels map[string]int64 `mapstructure:"channels"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type CacheConfig struct {
	// DedupRetention bounds the in-memory state dedup cache.
	DedupRetention time.Duration `mapstructure:"dedup_retention"`
	// StateFile and BackupDir locate the warm-restart snapshot.
	StateFile string `mapstructure:"state_file"`
	BackupDir string `mapstructure:"backup_dir"`
}
