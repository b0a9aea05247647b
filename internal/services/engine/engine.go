package engine

import (
	"math"

	"github.com/anvh2/market-intel/internal/libs/talib"
	"github.com/anvh2/market-intel/internal/models"
)

// Engine is the pure transformation from (snapshot, history, config) to a
// MarketState. It does no I/O and keeps no state between calls: identical
// inputs produce identical outputs.
type Engine struct{}

func New() *Engine {
	return &Engine{}
}

// Analyze runs the full per-timeframe pipeline and the multi-timeframe
// aggregation. Timeframes with no venue data at all are dropped; aggregation
// renormalizes over what remains.
func (e *Engine) Analyze(snapshot *models.MarketSnapshot, params *models.AnalyzerConfig, timeframeOrder []string) *models.MarketState {
	state := &models.MarketState{
		Timestamp:  snapshot.Timestamp,
		Symbol:     snapshot.Symbol,
		Timeframes: make(map[string]*models.TimeframeMetrics),
		Raw:        snapshot,
	}

	for _, interval := range timeframeOrder {
		metrics := e.analyzeTimeframe(snapshot, params, interval)
		if metrics == nil {
			continue
		}
		state.Timeframes[interval] = metrics
	}

	state.FinalDecision = AggregateTimeframes(state.Timeframes, params)

	macroBias, macroReason := MacroBiasOf(state.Timeframes, params)
	ApplyMacroOverride(state.FinalDecision, macroBias, macroReason, params)

	state.TimeframeBuckets = BuildBuckets(state.Timeframes, params)
	ApplyMacroHierarchy(state.FinalDecision, state.TimeframeBuckets, params)

	if primary := pickPrimary(state.Timeframes, timeframeOrder); primary != "" {
		state.PrimaryTimeframe = primary
		if metrics := state.Timeframes[primary]; metrics != nil && metrics.MarketRegime != nil {
			state.FinalDecision.PrimaryRegime = string(metrics.MarketRegime.Regime)
			applyStance(state.FinalDecision, metrics, params.Penalties)
		}
	}

	e.gradeQuality(state, snapshot, timeframeOrder)

	return state
}

// analyzeTimeframe builds every feature block of one timeframe, nil when
// both venue branches are missing.
func (e *Engine) analyzeTimeframe(snapshot *models.MarketSnapshot, params *models.AnalyzerConfig, interval string) *models.TimeframeMetrics {
	binance := snapshot.Leg(models.VenueBinance, interval)
	bybit := snapshot.Leg(models.VenueBybit, interval)
	if binance == nil && bybit == nil {
		return nil
	}

	reference := binance
	referenceVenue := models.VenueBinance
	if reference == nil {
		reference = bybit
		referenceVenue = models.VenueBybit
	}
	history := snapshot.LegHistory(referenceVenue, interval)
	if history == nil {
		history = &models.LookbackHistory{}
	}

	th := params.Thresholds.Timeframes[interval]

	metrics := &models.TimeframeMetrics{Interval: interval}

	metrics.Technical = ComputeTechnical(history)
	metrics.VolumeProfile = ComputeVolumeProfile(history.PriceHistory)
	metrics.Structure = ComputeStructure(history.PriceHistory)
	metrics.FundingAdvanced = e.fundingBlock(snapshot, history, interval)
	metrics.OIAdvanced = e.oiBlock(binance, bybit, th)

	var binancePrice, bybitPrice models.PriceMove
	var binanceOI, bybitOI models.OIMove
	if binance != nil {
		binancePrice = ClassifyPriceMove(binance.PriceChangePct, th)
		binanceOI = ClassifyOIMove(binance.OIChangePct, th)
	}
	if bybit != nil {
		bybitPrice = ClassifyPriceMove(bybit.PriceChangePct, th)
		bybitOI = ClassifyOIMove(bybit.OIChangePct, th)
	}

	fundingLevel := ClassifyFundingLevel(metrics.FundingAdvanced.AvgRatePct, metrics.FundingAdvanced.ZScore)

	metrics.ExchangeDivergence = ClassifyDivergence(divergenceInput{
		Interval:     interval,
		Binance:      binance,
		Bybit:        bybit,
		BinancePrice: binancePrice,
		BinanceOI:    binanceOI,
		BybitPrice:   bybitPrice,
		BybitOI:      bybitOI,
		Funding:      fundingLevel,
		Thresholds:   th,
		Gates:        params.Gates,
	})

	referencePrice := binancePrice
	referenceOI := binanceOI
	if binance == nil {
		referencePrice = bybitPrice
		referenceOI = bybitOI
	}

	metrics.MarketRegime = DetectRegime(regimeInput{
		Price:       referencePrice,
		OI:          referenceOI,
		Funding:     fundingLevel,
		Thresholds:  th,
		CVD:         reference.CVD,
		CVDReliable: reference.CVDReliableForTf,
		Scenario:    metrics.ExchangeDivergence.Scenario,
	})

	metrics.FinalDecision = Decide(decideInput{
		Interval:  interval,
		Reference: reference,
		Metrics:   metrics,
		Params:    params,
	})

	return metrics
}

// fundingBlock classifies funding per venue and computes the pain index
// (|funding| x total OI, USD per funding period) as squeeze pressure.
func (e *Engine) fundingBlock(snapshot *models.MarketSnapshot, history *models.LookbackHistory, interval string) *models.FundingAdvanced {
	block := &models.FundingAdvanced{}

	rates := make([]float64, 0, len(history.FundingHistory))
	for _, p := range history.FundingHistory {
		rates = append(rates, p.Value)
	}

	var totalOI float64
	var avgSum float64
	avgCount := 0

	for _, venue := range models.Venues() {
		leg := snapshot.Leg(venue, interval)
		if leg == nil {
			continue
		}
		totalOI += leg.OI
		avgSum += leg.FundingRateAvgPct
		avgCount++

		z := 0.0
		if len(rates) > 1 {
			z = talib.ZScore(rates, leg.FundingRateAvgPct)
		}
		level := ClassifyFundingLevel(leg.FundingRateAvgPct, z)
		switch venue {
		case models.VenueBinance:
			block.Binance = &level
		case models.VenueBybit:
			block.Bybit = &level
		}
	}

	if avgCount > 0 {
		block.AvgRatePct = avgSum / float64(avgCount)
	}
	if len(rates) > 1 {
		block.ZScore = talib.ZScore(rates, block.AvgRatePct)
	}
	block.PainIndexUSD = math.Abs(block.AvgRatePct) / 100 * totalOI

	return block
}

func (e *Engine) oiBlock(binance, bybit *models.TimeframeSnapshot, th models.TimeframeThresholds) *models.OIAdvanced {
	block := &models.OIAdvanced{}

	if binance != nil {
		move := ClassifyOIMove(binance.OIChangePct, th)
		block.Binance = &move
		block.TotalOIUSD += binance.OI
	}
	if bybit != nil {
		move := ClassifyOIMove(bybit.OIChangePct, th)
		block.Bybit = &move
		block.BybitOIUSD = bybit.OI
		block.TotalOIUSD += bybit.OI
	}
	if binance != nil && bybit != nil {
		block.SpreadPct = binance.OIChangePct - bybit.OIChangePct
		block.BothRising = block.Binance.Direction == models.DirectionUp && block.Bybit.Direction == models.DirectionUp
		block.BothFalling = block.Binance.Direction == models.DirectionDown && block.Bybit.Direction == models.DirectionDown
	}

	return block
}

// gradeQuality: full = both venues fresh on every timeframe; partial = a
// venue branch missing; degraded = stale legs or dropped timeframes.
func (e *Engine) gradeQuality(state *models.MarketState, snapshot *models.MarketSnapshot, timeframeOrder []string) {
	quality := models.DataQualityFull

	stale := false
	for _, vd := range snapshot.Venues {
		if vd == nil {
			continue
		}
		for _, leg := range vd.Snapshots {
			if leg.Stale {
				stale = true
			}
		}
	}

	dropped := len(state.Timeframes) < len(timeframeOrder)

	switch {
	case stale || dropped:
		quality = models.DataQualityDegraded
	case snapshot.Meta.PartialData:
		quality = models.DataQualityPartial
	}

	state.DataQuality = quality
	state.Warnings = append(state.Warnings, snapshot.Meta.Warnings...)
	if stale {
		state.Warnings = append(state.Warnings, "stale data on at least one timeframe")
	}
	if dropped {
		state.Warnings = append(state.Warnings, "one or more timeframes dropped from aggregation")
	}
}

func pickPrimary(timeframes map[string]*models.TimeframeMetrics, order []string) string {
	// 4h anchors reporting when present; otherwise the highest surviving
	// timeframe does. Order is lowest-first.
	if _, ok := timeframes["4h"]; ok {
		return "4h"
	}
	for i := len(order) - 1; i >= 0; i-- {
		if _, ok := timeframes[order[i]]; ok {
			return order[i]
		}
	}
	return ""
}
