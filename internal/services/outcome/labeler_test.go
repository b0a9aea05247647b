package outcome

import (
	"testing"

	"github.com/anvh2/market-intel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seriesTo(final float64, highs, lows []float64) []models.Candle {
	n := len(highs)
	out := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = models.Candle{
			Timestamp: int64(i) * 3_600_000,
			High:      highs[i],
			Low:       lows[i],
			Close:     (highs[i] + lows[i]) / 2,
		}
	}
	out[n-1].Close = final
	return out
}

func TestHorizonTable(t *testing.T) {
	assert.Equal(t, "1h", HorizonFor("30m").Name)
	assert.Equal(t, "1h", HorizonFor("1h").Name)
	assert.Equal(t, "4h", HorizonFor("4h").Name)
	assert.Equal(t, "24h", HorizonFor("1d").Name)
	assert.Equal(t, "4h", HorizonFor("").Name, "unknown falls back to 4h")
}

func TestLongContinuation(t *testing.T) {
	// +2% at the 4h horizon against a 1% threshold.
	series := seriesTo(51_000, []float64{50_500, 51_200}, []float64{49_900, 50_400})

	label := Evaluate(models.BiasLong, 50_000, series, HorizonFor("4h"))

	assert.Equal(t, models.OutcomeContinuation, label.Label)
	assert.InDelta(t, 2.0, label.FinalMovePct, 1e-9)
	assert.Equal(t, "4h", label.Horizon)
	assert.Greater(t, label.MFE, 0.0)
}

func TestLongReversal(t *testing.T) {
	series := seriesTo(49_000, []float64{50_100, 49_600}, []float64{49_400, 48_900})

	label := Evaluate(models.BiasLong, 50_000, series, HorizonFor("4h"))

	assert.Equal(t, models.OutcomeReversal, label.Label)
	assert.Less(t, label.FinalMovePct, 0.0)
}

func TestShortContinuationSignFlip(t *testing.T) {
	// Price fell 2%: a SHORT signal continued.
	series := seriesTo(49_000, []float64{50_100, 49_600}, []float64{49_400, 48_900})

	label := Evaluate(models.BiasShort, 50_000, series, HorizonFor("4h"))

	assert.Equal(t, models.OutcomeContinuation, label.Label)
}

func TestNoiseInsideBand(t *testing.T) {
	series := seriesTo(50_100, []float64{50_300, 50_200}, []float64{49_800, 49_900})

	label := Evaluate(models.BiasLong, 50_000, series, HorizonFor("4h"))

	assert.Equal(t, models.OutcomeNoise, label.Label)
}

// WAIT is judged on directionality: a big one-way move means the
// stand-aside call missed a trade.
func TestWaitMissedTrend(t *testing.T) {
	// +2% final move with a tight range: directionality near 1.
	series := seriesTo(51_000, []float64{50_400, 51_050}, []float64{49_950, 50_300})

	label := Evaluate(models.BiasWait, 50_000, series, HorizonFor("4h"))

	require.Equal(t, models.OutcomeContinuation, label.Label)
	assert.Contains(t, label.Reason, "standing aside")
}

func TestWaitCorrectInChop(t *testing.T) {
	// Wide range, small net move: WAIT was right.
	series := seriesTo(50_100, []float64{51_500, 51_200}, []float64{48_500, 48_900})

	label := Evaluate(models.BiasWait, 50_000, series, HorizonFor("4h"))

	assert.Equal(t, models.OutcomeNoise, label.Label)
}

func TestMFEAndMAESigns(t *testing.T) {
	series := seriesTo(50_500, []float64{51_000, 50_800}, []float64{49_000, 49_500})

	long := Evaluate(models.BiasLong, 50_000, series, HorizonFor("4h"))
	assert.InDelta(t, 2.0, long.MFE, 1e-9, "best excursion to the high")
	assert.InDelta(t, -2.0, long.MAE, 1e-9, "worst excursion to the low")

	short := Evaluate(models.BiasShort, 50_000, series, HorizonFor("4h"))
	assert.InDelta(t, 2.0, short.MFE, 1e-9, "short favours the low")
	assert.InDelta(t, -2.0, short.MAE, 1e-9)
}
