package engine

import (
	"github.com/anvh2/market-intel/internal/models"
)

const (
	profileBins      = 50
	valueAreaPortion = 0.70
)

// ComputeVolumeProfile bins the lookback window into 50 equal price slices,
// spreading each candle's volume uniformly across the bins its [low, high]
// range intersects. POC is the busiest bin; the value area grows from POC
// toward the larger neighbour until it holds 70% of total volume.
func ComputeVolumeProfile(candles []models.Candle) *models.VolumeProfile {
	if len(candles) == 0 {
		return &models.VolumeProfile{BinCount: profileBins}
	}

	lo := candles[0].Low
	hi := candles[0].High
	for _, c := range candles {
		if c.Low < lo {
			lo = c.Low
		}
		if c.High > hi {
			hi = c.High
		}
	}
	if hi <= lo {
		// Degenerate window: a single price. Everything lands in one bin.
		return &models.VolumeProfile{
			POC: lo, VAH: lo, VAL: lo, BinCount: profileBins,
			TotalVolume: sumVolume(candles),
		}
	}

	binSize := (hi - lo) / profileBins
	bins := make([]float64, profileBins)
	total := 0.0

	for _, c := range candles {
		if c.Volume <= 0 {
			continue
		}
		total += c.Volume

		first := binIndex(c.Low, lo, binSize)
		last := binIndex(c.High, lo, binSize)
		share := c.Volume / float64(last-first+1)
		for i := first; i <= last; i++ {
			bins[i] += share
		}
	}

	poc := 0
	for i, v := range bins {
		if v > bins[poc] {
			poc = i
		}
	}

	// Symmetric expansion: take the larger adjacent bin each step.
	lowIdx, highIdx := poc, poc
	covered := bins[poc]
	for covered < total*valueAreaPortion {
		below, above := -1.0, -1.0
		if lowIdx > 0 {
			below = bins[lowIdx-1]
		}
		if highIdx < profileBins-1 {
			above = bins[highIdx+1]
		}
		if below < 0 && above < 0 {
			break
		}
		if above >= below {
			highIdx++
			covered += bins[highIdx]
		} else {
			lowIdx--
			covered += bins[lowIdx]
		}
	}

	return &models.VolumeProfile{
		POC:         lo + (float64(poc)+0.5)*binSize,
		VAH:         lo + (float64(highIdx)+1)*binSize,
		VAL:         lo + float64(lowIdx)*binSize,
		BinCount:    profileBins,
		TotalVolume: total,
	}
}

func binIndex(price, lo, binSize float64) int {
	idx := int((price - lo) / binSize)
	if idx < 0 {
		return 0
	}
	if idx >= profileBins {
		return profileBins - 1
	}
	return idx
}

func sumVolume(candles []models.Candle) float64 {
	total := 0.0
	for _, c := range candles {
		total += c.Volume
	}
	return total
}
