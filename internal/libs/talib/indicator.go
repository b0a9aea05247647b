package talib

import (
	"math"

	"github.com/cinar/indicator"
)

// Thin wrapper over cinar/indicator plus the regression helpers it lacks.
// All series are oldest-first; callers pass closed candles only.

// EMA returns the exponential moving average series for the period.
func EMA(period int, values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	return indicator.Ema(period, values)
}

// SMA returns the simple moving average series for the period.
func SMA(period int, values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	return indicator.Sma(period, values)
}

// Last returns the final element of a series, 0 for empty input.
func Last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

// Std returns the population standard deviation of the whole series.
func Std(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))

	return math.Sqrt(variance)
}

// ZScore positions v against the series mean in standard deviations.
func ZScore(values []float64, v float64) float64 {
	sd := Std(values)
	if sd == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range values {
		mean += x
	}
	mean /= float64(len(values))
	return (v - mean) / sd
}

// Slope fits an ordinary least squares line over the last n points and
// returns its slope per step. Fewer than two points give 0.
func Slope(n int, values []float64) float64 {
	if n > len(values) {
		n = len(values)
	}
	if n < 2 {
		return 0
	}
	window := values[len(values)-n:]

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range window {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (fn*sumXY - sumX*sumY) / denom
}

// RealizedVolPct is std of log returns over the last n closes, scaled by
// sqrt(n) and expressed in percent.
func RealizedVolPct(n int, closes []float64) float64 {
	if n > len(closes) {
		n = len(closes)
	}
	if n < 2 {
		return 0
	}
	window := closes[len(closes)-n:]

	returns := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		if window[i-1] <= 0 || window[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(window[i]/window[i-1]))
	}
	if len(returns) == 0 {
		return 0
	}

	return Std(returns) * math.Sqrt(float64(len(returns)+1)) * 100
}

// MaxDrawdownPct is the deepest peak-to-trough decline over the window, in
// percent (positive number).
func MaxDrawdownPct(closes []float64) float64 {
	peak := math.Inf(-1)
	maxDD := 0.0
	for _, c := range closes {
		if c > peak {
			peak = c
		}
		if peak > 0 {
			dd := (peak - c) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
