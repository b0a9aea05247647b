package coinglass

import (
	"net/http"
	"time"

	"github.com/anvh2/market-intel/internal/client"
	"github.com/anvh2/market-intel/internal/config"
	"github.com/anvh2/market-intel/internal/libs/logger"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	headerAPIKey = "CG-API-KEY"

	endpointPrice   = "/api/futures/price/ohlc-history"
	endpointOI      = "/api/futures/openInterest/ohlc-history"
	endpointFunding = "/api/futures/fundingRate/ohlc-history"
	endpointTaker   = "/api/futures/taker-buy-sell-volume/history"
)

// Request addresses one candle series.
type Request struct {
	Venue     string
	Symbol    string
	Interval  string
	Limit     int
	StartTime int64
	EndTime   int64
}

// Client talks to the Coinglass futures API. All calls go through the plan
// rate limiter and a per-endpoint circuit breaker; retries are an explicit
// loop in fetch.
type Client struct {
	logger   *logger.Logger
	config   config.CoinglassConfig
	limiter  *rate.Limiter
	http     *http.Client
	breakers map[string]*gobreaker.CircuitBreaker
}

func New(logger *logger.Logger, cfg config.CoinglassConfig) *Client {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = 2 * time.Second
	}
	if cfg.RetryMax == 0 {
		cfg.RetryMax = 3
	}
	if cfg.RetryMultiplier == 0 {
		cfg.RetryMultiplier = 1.5
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker)
	for _, endpoint := range []string{endpointPrice, endpointOI, endpointFunding, endpointTaker} {
		breakers[endpoint] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     endpoint,
			Interval: time.Minute,
			Timeout:  time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}

	return &Client{
		logger:   logger,
		config:   cfg,
		limiter:  rate.NewLimiter(rate.Every(cfg.PlanDelay()), 1),
		http:     client.New(client.WithRequestTimeout(cfg.RequestTimeout)),
		breakers: breakers,
	}
}
