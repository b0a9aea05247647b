package engine

import (
	"github.com/anvh2/market-intel/internal/libs/talib"
	"github.com/anvh2/market-intel/internal/models"
)

const (
	trendSlopeBand = 0.1 // normalized slope, percent per candle
	volWindow      = 30
)

// ComputeTechnical derives the indicator block from closed-candle closes.
func ComputeTechnical(history *models.LookbackHistory) *models.Technical {
	closes := history.Closes()
	if len(closes) == 0 {
		return &models.Technical{Trend: models.TrendSideways}
	}

	tech := &models.Technical{
		EMA20:          talib.Last(talib.EMA(20, closes)),
		EMA50:          talib.Last(talib.EMA(50, closes)),
		SMA20:          talib.Last(talib.SMA(20, closes)),
		Slope20:        talib.Slope(20, closes),
		RealizedVolPct: talib.RealizedVolPct(volWindow, closes),
		MaxDrawdownPct: talib.MaxDrawdownPct(closes),
		ZScore:         talib.ZScore(closes, closes[len(closes)-1]),
	}

	// Slope normalized to percent of price per candle so the band is
	// comparable across price levels.
	last := closes[len(closes)-1]
	normSlope := 0.0
	if last != 0 {
		normSlope = tech.Slope20 / last * 100
	}

	switch {
	case normSlope > trendSlopeBand && tech.EMA20 >= tech.EMA50:
		tech.Trend = models.TrendUp
	case normSlope < -trendSlopeBand && tech.EMA20 <= tech.EMA50:
		tech.Trend = models.TrendDown
	default:
		tech.Trend = models.TrendSideways
	}

	return tech
}
