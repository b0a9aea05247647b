package engine

import (
	"fmt"
	"math"

	"github.com/anvh2/market-intel/internal/models"
)

// divergenceInput is the flattened per-timeframe view the scenario table
// reads. Both venue branches may be nil on partial data.
type divergenceInput struct {
	Interval     string
	Binance      *models.TimeframeSnapshot
	Bybit        *models.TimeframeSnapshot
	BinancePrice models.PriceMove
	BinanceOI    models.OIMove
	BybitPrice   models.PriceMove
	BybitOI      models.OIMove
	Funding      models.FundingLevel
	Thresholds   models.TimeframeThresholds
	Gates        models.ConfigGates
}

// cvdSign reads a venue's CVD sign, demanding reliability. Unreliable CVD
// fails the condition and appends a warning exactly once per venue.
func (in *divergenceInput) cvdSign(snapshot *models.TimeframeSnapshot, warnings *[]string, positive bool) bool {
	if snapshot == nil {
		return false
	}
	if !snapshot.CVDReliableForTf {
		warning := fmt.Sprintf("%s CVD ignored: %s%s", snapshot.Venue, snapshot.CVDDataReason, snapshot.CVDMarketReason)
		if !contains(*warnings, warning) {
			*warnings = append(*warnings, warning)
		}
		return false
	}
	if positive {
		return snapshot.CVD > 0
	}
	return snapshot.CVD < 0
}

// WhaleRetailRatio compares coin-margined (whale) against USDT-margined
// (retail) OI aggression, gated so dust moves never manufacture conviction.
func WhaleRetailRatio(bybitOIPct, binanceOIPct, bybitOIUSD float64, interval string, gates models.ConfigGates) (float64, bool) {
	minPct := gates.MacroMinOIPct
	minUSD := gates.MacroMinUSD
	if models.ScalpingTimeframe(interval) {
		minPct = gates.ScalpingMinOIPct
		minUSD = gates.ScalpingMinUSD
	}

	bybitAbs := math.Abs(bybitOIPct)
	usdDelta := bybitAbs / 100 * bybitOIUSD
	if bybitAbs < minPct || usdDelta < minUSD {
		return 1, false
	}

	binanceAbs := math.Abs(binanceOIPct)
	if binanceAbs < minPct {
		return math.Min(bybitAbs/minPct, 5), true
	}
	return math.Min(bybitAbs/binanceAbs, 10), true
}

// ClassifyDivergence walks the scenario table in priority order and returns
// the first match.
func ClassifyDivergence(in divergenceInput) *models.ExchangeDivergence {
	out := &models.ExchangeDivergence{
		Scenario: models.ScenarioUnclear,
		Bias:     models.DivergenceWait,
	}

	var bybitOIUSD float64
	if in.Bybit != nil {
		bybitOIUSD = in.Bybit.OI
	}
	var bybitOIPct, binanceOIPct float64
	if in.Bybit != nil {
		bybitOIPct = in.Bybit.OIChangePct
	}
	if in.Binance != nil {
		binanceOIPct = in.Binance.OIChangePct
	}

	out.WhaleRetailRatio, out.RatioReliable = WhaleRetailRatio(bybitOIPct, binanceOIPct, bybitOIUSD, in.Interval, in.Gates)
	out.Dominance, out.BinanceVolumePct = compareVolume(in.Binance, in.Bybit)

	warnings := []string{}
	defer func() { out.Warnings = warnings }()

	price := in.BinancePrice
	if in.Binance == nil {
		price = in.BybitPrice
	}
	priceUp := price.Direction == models.DirectionUp
	priceDown := price.Direction == models.DirectionDown
	priceStrong := price.Strength == models.StrengthStrong

	binanceOIRising := in.Binance != nil && in.BinanceOI.Direction == models.DirectionUp
	bybitOIRising := in.Bybit != nil && in.BybitOI.Direction == models.DirectionUp
	bybitOIFalling := in.Bybit != nil && in.BybitOI.Direction == models.DirectionDown
	bybitOIAggressive := in.Bybit != nil && in.BybitOI.Strength == models.OIAggressive
	binanceOIAggressive := in.Binance != nil && in.BinanceOI.Strength == models.OIAggressive
	bybitOIQuiet := in.Bybit == nil || in.BybitOI.Strength == models.OIQuiet

	high := fundingHigh(in.Funding, in.Thresholds)
	negative := fundingNegative(in.Funding)

	// Whale distribution: spot strength sold into by the coin-margined book
	// while retail piles in on the USDT leg.
	if priceUp && priceStrong && bybitOIFalling && bybitOIAggressive && binanceOIRising &&
		in.Bybit != nil && in.Bybit.CVDReliableForTf &&
		in.cvdSign(in.Binance, &warnings, false) {
		out.Scenario = models.ScenarioWhaleDistribution
		out.Confidence = 8
		if binanceOIAggressive {
			out.Confidence = 9
		}
		out.Bias = models.DivergenceStrongShort
		if out.Confidence < 8 {
			out.Bias = models.DivergenceShort
		}
		return out
	}

	// Whale accumulation: the coin-margined book building while the USDT leg
	// lags it by more than half a percent.
	if bybitOIRising && in.cvdSign(in.Bybit, &warnings, true) && (binanceOIPct-bybitOIPct) < -0.5 {
		out.Scenario = models.ScenarioWhaleAccumulation
		out.Confidence = 8
		if bybitOIAggressive {
			out.Confidence = 9
		}
		out.Bias = models.DivergenceStrongLong
		if out.Confidence < 8 {
			out.Bias = models.DivergenceLong
		}
		return out
	}

	// Retail FOMO rally: USDT leg chasing a move the whales sit out, paying
	// up on funding while selling pressure hides underneath.
	if priceUp && binanceOIRising && !bybitOIRising && in.cvdSign(in.Binance, &warnings, false) && high {
		out.Scenario = models.ScenarioRetailFomoRally
		out.Confidence = 7
		out.Bias = models.DivergenceShort
		return out
	}

	// Short squeeze setup: shorts crowding in on the way down while the
	// coin-margined book quietly absorbs.
	if binanceOIRising && priceDown && negative && bybitOIRising && in.cvdSign(in.Bybit, &warnings, true) {
		out.Scenario = models.ScenarioShortSqueezeSetup
		out.Confidence = 7
		out.Bias = models.DivergenceLong
		return out
	}

	// Whale hedging: coin-margined book shorting into strength it helped
	// create.
	if priceUp && bybitOIRising && in.cvdSign(in.Bybit, &warnings, false) &&
		out.RatioReliable && out.WhaleRetailRatio > 1.5 {
		out.Scenario = models.ScenarioWhaleHedging
		out.Confidence = 6.5
		out.Bias = models.DivergenceShort
		return out
	}

	// Synchronized moves: both books confirm the tape.
	if priceUp && binanceOIRising && bybitOIRising &&
		in.cvdSign(in.Binance, &warnings, true) && in.cvdSign(in.Bybit, &warnings, true) {
		out.Scenario = models.ScenarioSyncBullish
		out.Confidence = 7
		if priceStrong {
			out.Confidence = 8
		}
		out.Bias = models.DivergenceLong
		if out.Confidence >= 8 {
			out.Bias = models.DivergenceStrongLong
		}
		return out
	}
	if priceDown && binanceOIRising && bybitOIRising &&
		in.cvdSign(in.Binance, &warnings, false) && in.cvdSign(in.Bybit, &warnings, false) {
		out.Scenario = models.ScenarioSyncBearish
		out.Confidence = 7
		if priceStrong {
			out.Confidence = 8
		}
		out.Bias = models.DivergenceShort
		if out.Confidence >= 8 {
			out.Bias = models.DivergenceStrongShort
		}
		return out
	}

	// Bybit leading: the coin-margined book is the only story in town.
	if out.RatioReliable && out.WhaleRetailRatio > 2 {
		out.Scenario = models.ScenarioBybitLeading
		out.Confidence = 6
		if bybitOIRising {
			out.Bias = models.DivergenceLong
		} else {
			out.Bias = models.DivergenceShort
		}
		return out
	}

	// Binance noise: USDT churn with a quiet coin-margined book.
	if binanceOIAggressive && bybitOIQuiet {
		out.Scenario = models.ScenarioBinanceNoise
		out.Confidence = 5
		out.Bias = models.DivergenceWait
		return out
	}

	out.Scenario = models.ScenarioUnclear
	out.Confidence = 4
	out.Bias = models.DivergenceWait
	return out
}

// compareVolume uses direction only: the venues quote different units, so
// only the split is meaningful.
func compareVolume(binance, bybit *models.TimeframeSnapshot) (models.VolumeDominance, float64) {
	var binanceVol, bybitVol float64
	if binance != nil {
		binanceVol = binance.Volume
	}
	if bybit != nil {
		bybitVol = bybit.Volume
	}

	total := binanceVol + bybitVol
	if total == 0 {
		return models.DominanceBalanced, 0
	}

	pct := binanceVol / total
	switch {
	case bybitVol > 1.5*binanceVol:
		return models.DominanceWhale, pct
	case binanceVol > 1.5*bybitVol:
		return models.DominanceRetail, pct
	default:
		return models.DominanceBalanced, pct
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
