package models

import (
	"encoding/json"
)

// Venue identifies the derivatives market a row came from.
type Venue string

const (
	VenueBinance Venue = "binance" // USDT-margined perpetual
	VenueBybit   Venue = "bybit"   // coin-margined perpetual
)

// Venues returns the venues processed on every cycle, USDT leg first.
func Venues() []Venue {
	return []Venue{VenueBinance, VenueBybit}
}

// Candle is one closed candle of a series. Timestamp is the candle-open
// boundary in ms UTC; a row exists only after the candle closed. OI, funding
// and taker volumes are pointers because older rows never recorded them;
// absence is not zero.
type Candle struct {
	Venue       Venue    `json:"venue"`
	Symbol      string   `json:"symbol"`
	Interval    string   `json:"interval"`
	Timestamp   int64    `json:"timestamp"`
	Open        float64  `json:"open"`
	High        float64  `json:"high"`
	Low         float64  `json:"low"`
	Close       float64  `json:"close"`
	Volume      float64  `json:"volume"`
	OI          *float64 `json:"oi,omitempty"`
	FundingRate *float64 `json:"fundingRate,omitempty"`
	BuyVolume   *float64 `json:"buyVolume,omitempty"`
	SellVolume  *float64 `json:"sellVolume,omitempty"`
}

func (c *Candle) String() string {
	b, _ := json.Marshal(c)
	return string(b)
}

// IntervalMs maps a timeframe token to its duration in milliseconds.
// Unknown tokens return 0; callers must treat that as a config fault.
func IntervalMs(interval string) int64 {
	switch interval {
	case "1m":
		return 60_000
	case "5m":
		return 300_000
	case "15m":
		return 900_000
	case "30m":
		return 1_800_000
	case "1h":
		return 3_600_000
	case "4h":
		return 14_400_000
	case "12h":
		return 43_200_000
	case "1d", "24h":
		return 86_400_000
	default:
		return 0
	}
}

// AlignEndToLastClosed floors asOf to the interval boundary at or before it:
// the close of the last fully closed candle, which is also the open of the
// candle containing asOf. Replay keeps candles whose timestamp is at or
// before the returned value and drops everything later.
func AlignEndToLastClosed(asOf int64, interval string) int64 {
	ms := IntervalMs(interval)
	if ms <= 0 {
		return asOf
	}
	return (asOf / ms) * ms
}

// HistoryPoint is a single (timestamp, value) observation of a lookback
// series.
type HistoryPoint struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// LookbackHistory carries the per (venue, interval) lookback series the
// metrics engine consumes. All series are sorted ascending by timestamp.
type LookbackHistory struct {
	PriceHistory   []Candle       `json:"priceHistory"`
	OIHistory      []HistoryPoint `json:"oiHistory"`
	FundingHistory []HistoryPoint `json:"fundingHistory"`
}

// Closes extracts the closing prices of the price history, oldest first.
func (h *LookbackHistory) Closes() []float64 {
	out := make([]float64, len(h.PriceHistory))
	for i, c := range h.PriceHistory {
		out[i] = c.Close
	}
	return out
}
