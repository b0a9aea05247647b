package talib

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlopeOnALine(t *testing.T) {
	// y = 3x + 7 fits exactly.
	values := make([]float64, 40)
	for i := range values {
		values[i] = 3*float64(i) + 7
	}

	assert.InDelta(t, 3.0, Slope(20, values), 1e-9)
	assert.InDelta(t, 3.0, Slope(40, values), 1e-9)
	assert.Zero(t, Slope(20, values[:1]), "one point has no slope")
}

func TestStdAndZScore(t *testing.T) {
	flat := []float64{5, 5, 5, 5}
	assert.Zero(t, Std(flat))
	assert.Zero(t, ZScore(flat, 9), "zero deviation never divides")

	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 2.0, Std(values), 1e-9)
	assert.InDelta(t, 2.0, ZScore(values, 9), 1e-9)
}

func TestMaxDrawdown(t *testing.T) {
	closes := []float64{100, 120, 90, 110, 80}
	// Peak 120 to trough 80.
	assert.InDelta(t, (120.0-80.0)/120.0*100, MaxDrawdownPct(closes), 1e-9)

	rising := []float64{100, 110, 120}
	assert.Zero(t, MaxDrawdownPct(rising))
}

func TestRealizedVolPct(t *testing.T) {
	flat := []float64{100, 100, 100, 100}
	assert.Zero(t, RealizedVolPct(30, flat))

	wild := []float64{100, 110, 95, 120, 90}
	assert.Greater(t, RealizedVolPct(30, wild), 0.0)
	assert.False(t, math.IsNaN(RealizedVolPct(30, wild)))
}

func TestEMALastTracksTrend(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 100 + float64(i)
	}

	ema20 := Last(EMA(20, values))
	ema50 := Last(EMA(50, values))
	assert.Greater(t, ema20, ema50, "short ema hugs a rising series tighter")
	assert.InDelta(t, 149.5, Last(SMA(20, values)), 1e-9)
}
