package engine

import (
	"math"

	"github.com/anvh2/market-intel/internal/models"
)

// ClassifyPriceMove grades a price change against the timeframe's noise and
// strong cut points. FLAT means the move is inside the noise band.
func ClassifyPriceMove(changePct float64, th models.TimeframeThresholds) models.PriceMove {
	move := models.PriceMove{ChangePct: changePct}
	abs := math.Abs(changePct)

	switch {
	case abs < th.PriceNoisePct:
		move.Direction = models.DirectionFlat
		move.Strength = models.StrengthNoise
	case changePct > 0:
		move.Direction = models.DirectionUp
		move.Strength = models.StrengthNormal
	default:
		move.Direction = models.DirectionDown
		move.Strength = models.StrengthNormal
	}

	if abs >= th.PriceStrongPct {
		move.Strength = models.StrengthStrong
	}

	return move
}

// ClassifyOIMove is the open-interest analogue with quiet/aggressive cut
// points.
func ClassifyOIMove(changePct float64, th models.TimeframeThresholds) models.OIMove {
	move := models.OIMove{ChangePct: changePct}
	abs := math.Abs(changePct)

	switch {
	case abs < th.OIQuietPct:
		move.Direction = models.DirectionFlat
		move.Strength = models.OIQuiet
	case changePct > 0:
		move.Direction = models.DirectionUp
		move.Strength = models.OINormal
	default:
		move.Direction = models.DirectionDown
		move.Strength = models.OINormal
	}

	if abs >= th.OIAggressivePct {
		move.Strength = models.OIAggressive
	}

	return move
}

// ClassifyFundingLevel buckets funding by z-score first: beyond two sigmas
// the crowd is the trade.
func ClassifyFundingLevel(ratePct, zScore float64) models.FundingLevel {
	level := models.FundingLevel{Rate: ratePct, ZScore: zScore}

	switch {
	case zScore > 2:
		level.Level = models.FundingCriticalHigh
		level.Bias = models.BiasShort
	case zScore < -2:
		level.Level = models.FundingCriticalLow
		level.Bias = models.BiasLong
	case zScore > 1:
		level.Level = models.FundingHigh
		level.Bias = models.BiasShort
	case zScore < -1:
		level.Level = models.FundingLow
		level.Bias = models.BiasLong
	default:
		level.Level = models.FundingNormal
		level.Bias = models.BiasWait
	}

	return level
}

// fundingHigh reports whether funding is elevated for the timeframe: either
// the z-score says so or the absolute rate clears the timeframe threshold.
func fundingHigh(level models.FundingLevel, th models.TimeframeThresholds) bool {
	if level.Level == models.FundingHigh || level.Level == models.FundingCriticalHigh {
		return true
	}
	return level.Rate >= th.Funding
}

func fundingNegative(level models.FundingLevel) bool {
	return level.Rate < 0
}

func fundingExtreme(level models.FundingLevel) bool {
	return level.Level == models.FundingCriticalHigh || level.Level == models.FundingCriticalLow
}
