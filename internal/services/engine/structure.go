package engine

import (
	"github.com/anvh2/market-intel/internal/models"
)

// fractalWing is the number of candles required on each side of a swing
// extremum, strict inequality on both sides.
const fractalWing = 2

// ComputeStructure maps swing highs/lows with a 2/2 fractal window and
// derives support, resistance and break of structure from them.
func ComputeStructure(candles []models.Candle) *models.Structure {
	structure := &models.Structure{BOS: models.BOSNone}
	if len(candles) < fractalWing*2+1 {
		return structure
	}

	for i := fractalWing; i < len(candles)-fractalWing; i++ {
		if isSwingHigh(candles, i) {
			structure.SwingHighs = append(structure.SwingHighs, models.SwingPoint{
				Timestamp: candles[i].Timestamp,
				Price:     candles[i].High,
			})
		}
		if isSwingLow(candles, i) {
			structure.SwingLows = append(structure.SwingLows, models.SwingPoint{
				Timestamp: candles[i].Timestamp,
				Price:     candles[i].Low,
			})
		}
	}

	current := candles[len(candles)-1].Close

	// Resistance: the lowest swing high still above price. Support: the
	// highest swing low still below.
	for _, swing := range structure.SwingHighs {
		if swing.Price > current && (structure.Resistance == 0 || swing.Price < structure.Resistance) {
			structure.Resistance = swing.Price
		}
	}
	for _, swing := range structure.SwingLows {
		if swing.Price < current && swing.Price > structure.Support {
			structure.Support = swing.Price
		}
	}

	if high, ok := lastSwing(structure.SwingHighs); ok && current > high.Price {
		structure.BOS = models.BOSBullish
	}
	if low, ok := lastSwing(structure.SwingLows); ok && current < low.Price {
		// A close through the prior swing low wins over a stale high break.
		structure.BOS = models.BOSBearish
	}

	return structure
}

func isSwingHigh(candles []models.Candle, i int) bool {
	for offset := 1; offset <= fractalWing; offset++ {
		if candles[i].High <= candles[i-offset].High || candles[i].High <= candles[i+offset].High {
			return false
		}
	}
	return true
}

func isSwingLow(candles []models.Candle, i int) bool {
	for offset := 1; offset <= fractalWing; offset++ {
		if candles[i].Low >= candles[i-offset].Low || candles[i].Low >= candles[i+offset].Low {
			return false
		}
	}
	return true
}

func lastSwing(swings []models.SwingPoint) (models.SwingPoint, bool) {
	if len(swings) == 0 {
		return models.SwingPoint{}, false
	}
	return swings[len(swings)-1], true
}
