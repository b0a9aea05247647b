package coinglass

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/anvh2/market-intel/internal/metrics"
	"github.com/anvh2/market-intel/internal/models"
	"github.com/bitly/go-simplejson"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Price returns closed price candles, sorted ascending.
func (c *Client) Price(ctx context.Context, req Request) ([]models.Candle, error) {
	return c.fetch(ctx, endpointPrice, req, parseOHLC(func(candle *models.Candle, item *simplejson.Json) {
		candle.Volume = item.Get("v").MustFloat64()
	}))
}

// OpenInterest returns OI candles; the OI close lands on Candle.OI.
func (c *Client) OpenInterest(ctx context.Context, req Request) ([]models.Candle, error) {
	return c.fetch(ctx, endpointOI, req, parseOHLC(func(candle *models.Candle, item *simplejson.Json) {
		oi := item.Get("c").MustFloat64()
		candle.OI = &oi
	}))
}

// Funding returns funding-rate candles; the close lands on Candle.FundingRate.
func (c *Client) Funding(ctx context.Context, req Request) ([]models.Candle, error) {
	return c.fetch(ctx, endpointFunding, req, parseOHLC(func(candle *models.Candle, item *simplejson.Json) {
		rate := item.Get("c").MustFloat64()
		candle.FundingRate = &rate
	}))
}

// TakerBuySellVolume returns taker flow rows on Candle.BuyVolume/SellVolume.
func (c *Client) TakerBuySellVolume(ctx context.Context, req Request) ([]models.Candle, error) {
	return c.fetch(ctx, endpointTaker, req, func(req Request, data *simplejson.Json) []models.Candle {
		num := len(data.MustArray())
		out := make([]models.Candle, 0, num)
		for i := 0; i < num; i++ {
			item := data.GetIndex(i)
			buy := item.Get("buy").MustFloat64()
			sell := item.Get("sell").MustFloat64()
			out = append(out, models.Candle{
				Venue:      models.Venue(req.Venue),
				Symbol:     req.Symbol,
				Interval:   req.Interval,
				Timestamp:  item.Get("t").MustInt64(),
				BuyVolume:  &buy,
				SellVolume: &sell,
			})
		}
		return out
	})
}

type parser func(req Request, data *simplejson.Json) []models.Candle

// parseOHLC builds the shared OHLC shape and lets extra place the
// endpoint-specific field.
func parseOHLC(extra func(*models.Candle, *simplejson.Json)) parser {
	return func(req Request, data *simplejson.Json) []models.Candle {
		num := len(data.MustArray())
		out := make([]models.Candle, 0, num)
		for i := 0; i < num; i++ {
			item := data.GetIndex(i)
			candle := models.Candle{
				Venue:     models.Venue(req.Venue),
				Symbol:    req.Symbol,
				Interval:  req.Interval,
				Timestamp: item.Get("t").MustInt64(),
				Open:      item.Get("o").MustFloat64(),
				High:      item.Get("h").MustFloat64(),
				Low:       item.Get("l").MustFloat64(),
				Close:     item.Get("c").MustFloat64(),
			}
			extra(&candle, item)
			out = append(out, candle)
		}
		return out
	}
}

// fetch runs the retry loop: transient errors and 5xx back off (base 2s,
// x1.5, 3 attempts); rate limits surface immediately and are never converted
// to empty data. After exhausting retries the caller gets an empty list plus
// the last structured error.
func (c *Client) fetch(ctx context.Context, endpoint string, req Request, parse parser) ([]models.Candle, error) {
	var lastErr error
	delay := c.config.RetryBase

	for attempt := 1; attempt <= c.config.RetryMax; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return []models.Candle{}, err
		}

		candles, err := c.once(ctx, endpoint, req, parse, attempt)
		if err == nil {
			metrics.VendorRequests.WithLabelValues(endpoint, "ok").Inc()
			return candles, nil
		}

		var rateLimited *models.RateLimitError
		if errors.As(err, &rateLimited) {
			metrics.VendorRequests.WithLabelValues(endpoint, "rate_limited").Inc()
			return []models.Candle{}, err
		}
		if !transient(err) {
			metrics.VendorRequests.WithLabelValues(endpoint, "failed").Inc()
			return []models.Candle{}, err
		}
		metrics.VendorRequests.WithLabelValues(endpoint, "retried").Inc()

		lastErr = err
		c.logger.Warn("[Coinglass] transient failure, backing off",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if attempt < c.config.RetryMax {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return []models.Candle{}, ctx.Err()
			}
			delay = time.Duration(float64(delay) * c.config.RetryMultiplier)
		}
	}

	return []models.Candle{}, lastErr
}

func transient(err error) bool {
	var timeout *models.TimeoutError
	var network *models.TransientNetworkError
	return errors.As(err, &timeout) || errors.As(err, &network)
}

func (c *Client) once(ctx context.Context, endpoint string, req Request, parse parser, attempt int) ([]models.Candle, error) {
	started := time.Now()

	result, err := c.breakers[endpoint].Execute(func() (interface{}, error) {
		return c.do(ctx, endpoint, req, parse, attempt, started)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &models.TransientNetworkError{Endpoint: endpoint, Attempt: attempt, Err: err}
		}
		return nil, err
	}

	candles, _ := result.([]models.Candle)
	return candles, nil
}

func (c *Client) do(ctx context.Context, endpoint string, req Request, parse parser, attempt int, started time.Time) ([]models.Candle, error) {
	query := url.Values{}
	query.Set("exchange", req.Venue)
	query.Set("symbol", req.Symbol)
	query.Set("interval", req.Interval)
	query.Set("limit", strconv.Itoa(req.Limit))
	if req.StartTime != 0 {
		query.Set("startTime", strconv.FormatInt(req.StartTime, 10))
	}
	if req.EndTime != 0 {
		query.Set("endTime", strconv.FormatInt(req.EndTime, 10))
	}

	fullURL := c.config.BaseURL + endpoint + "?" + query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set(headerAPIKey, c.config.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &models.TimeoutError{
				Endpoint:   endpoint,
				Attempt:    attempt,
				DurationMs: time.Since(started).Milliseconds(),
			}
		}
		return nil, &models.TransientNetworkError{Endpoint: endpoint, Attempt: attempt, Err: err}
	}
	defer resp.Body.Close()

	requestID := resp.Header.Get("X-Request-Id")

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &models.RateLimitError{
			Endpoint:  endpoint,
			RequestID: requestID,
			Message:   "http 429",
		}
	}
	if resp.StatusCode >= 500 {
		return nil, &models.TransientNetworkError{
			Endpoint: endpoint,
			Attempt:  attempt,
			Err:      fmt.Errorf("http %d", resp.StatusCode),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &models.VendorAPIError{
			Code:       strconv.Itoa(resp.StatusCode),
			Message:    "unexpected status",
			Endpoint:   endpoint,
			RequestID:  requestID,
			Attempt:    attempt,
			DurationMs: time.Since(started).Milliseconds(),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.TransientNetworkError{Endpoint: endpoint, Attempt: attempt, Err: err}
	}

	body, err := simplejson.NewJson(raw)
	if err != nil {
		return nil, &models.VendorAPIError{
			Code:       "malformed",
			Message:    err.Error(),
			Endpoint:   endpoint,
			RequestID:  requestID,
			Attempt:    attempt,
			DurationMs: time.Since(started).Milliseconds(),
		}
	}

	// The provider signals throttling in-band as well as via HTTP status.
	code := body.Get("code").MustString()
	if code == "429" || code == "50001" {
		return nil, &models.RateLimitError{
			Endpoint:  endpoint,
			RequestID: requestID,
			Message:   body.Get("msg").MustString(),
		}
	}
	if code != "" && code != "0" {
		return nil, &models.VendorAPIError{
			Code:       code,
			Message:    body.Get("msg").MustString(),
			Endpoint:   endpoint,
			RequestID:  requestID,
			Attempt:    attempt,
			DurationMs: time.Since(started).Milliseconds(),
		}
	}

	candles := parse(req, body.Get("data"))

	// Vendor ordering is not contractual; the client's is.
	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp < candles[j].Timestamp })

	return candles, nil
}
