package coinglass

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anvh2/market-intel/internal/config"
	"github.com/anvh2/market-intel/internal/libs/logger"
	"github.com/anvh2/market-intel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return New(logger.NewDev(), config.CoinglassConfig{
		BaseURL:         baseURL,
		APIKey:          "test-key",
		ActivePlan:      "PROFESSIONAL",
		RequestTimeout:  2 * time.Second,
		RetryBase:       time.Millisecond,
		RetryMax:        3,
		RetryMultiplier: 1.5,
	})
}

func priceBody(n int) string {
	body := `{"code":"0","msg":"success","data":[`
	for i := 0; i < n; i++ {
		if i > 0 {
			body += ","
		}
		// Deliberately reversed so the client has to sort.
		body += fmt.Sprintf(`{"t":%d,"o":50000,"h":50500,"l":49500,"c":50100,"v":1234}`, (n-i)*3_600_000)
	}
	return body + `]}`
}

func TestPriceParsesAndSorts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("CG-API-KEY"))
		assert.Equal(t, "Binance", r.URL.Query().Get("exchange"))
		fmt.Fprint(w, priceBody(3))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	candles, err := client.Price(context.Background(), Request{
		Venue: "Binance", Symbol: "BTCUSDT", Interval: "1h", Limit: 3,
	})

	require.NoError(t, err)
	require.Len(t, candles, 3)
	for i := 1; i < len(candles); i++ {
		assert.Less(t, candles[i-1].Timestamp, candles[i].Timestamp, "ascending order")
	}
	assert.Equal(t, 50100.0, candles[0].Close)
	assert.Equal(t, 1234.0, candles[0].Volume)
}

func TestTakerVolumeParses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"0","data":[{"t":1000,"buy":2000000,"sell":1500000}]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	rows, err := client.TakerBuySellVolume(context.Background(), Request{
		Venue: "Bybit", Symbol: "BTCUSD", Interval: "1h", Limit: 1,
	})

	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].BuyVolume)
	require.NotNil(t, rows[0].SellVolume)
	assert.Equal(t, 2_000_000.0, *rows[0].BuyVolume)
	assert.Equal(t, 1_500_000.0, *rows[0].SellVolume)
}

func TestRetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, priceBody(2))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	candles, err := client.Price(context.Background(), Request{Venue: "Binance", Symbol: "BTCUSDT", Interval: "1h", Limit: 2})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, candles, 2)
}

func TestExhaustedRetriesReturnEmptyListAndError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	candles, err := client.Price(context.Background(), Request{Venue: "Binance", Symbol: "BTCUSDT", Interval: "1h", Limit: 2})

	require.Error(t, err)
	var transientErr *models.TransientNetworkError
	assert.True(t, errors.As(err, &transientErr))
	assert.NotNil(t, candles)
	assert.Empty(t, candles)
}

func TestHTTPRateLimitSurfacesImmediately(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Price(context.Background(), Request{Venue: "Binance", Symbol: "BTCUSDT", Interval: "1h", Limit: 2})

	var rateLimited *models.RateLimitError
	require.ErrorAs(t, err, &rateLimited)
	assert.Equal(t, 1, attempts, "rate limits are never retried")
}

func TestInBandRateLimitCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"50001","msg":"too many requests"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Price(context.Background(), Request{Venue: "Binance", Symbol: "BTCUSDT", Interval: "1h", Limit: 2})

	var rateLimited *models.RateLimitError
	require.ErrorAs(t, err, &rateLimited)
	assert.Contains(t, rateLimited.Message, "too many requests")
}

func TestVendorErrorCodeNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		fmt.Fprint(w, `{"code":"40001","msg":"invalid symbol"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Price(context.Background(), Request{Venue: "Binance", Symbol: "NOPE", Interval: "1h", Limit: 2})

	var vendorErr *models.VendorAPIError
	require.ErrorAs(t, err, &vendorErr)
	assert.Equal(t, "40001", vendorErr.Code)
	assert.Equal(t, 1, attempts)
}

func TestPlanDelayTable(t *testing.T) {
	assert.Equal(t, 2*time.Second, config.CoinglassConfig{ActivePlan: "STARTUP"}.PlanDelay())
	assert.Equal(t, time.Minute/90, config.CoinglassConfig{ActivePlan: "STANDARD"}.PlanDelay())
	assert.Equal(t, 200*time.Millisecond, config.CoinglassConfig{ActivePlan: "PROFESSIONAL"}.PlanDelay())
	assert.Equal(t, 2*time.Second, config.CoinglassConfig{ActivePlan: "bogus"}.PlanDelay())
}
