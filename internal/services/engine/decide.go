package engine

import (
	"fmt"

	"github.com/anvh2/market-intel/internal/helpers"
	"github.com/anvh2/market-intel/internal/models"
)

// decideInput bundles everything one timeframe's weighted decision reads.
type decideInput struct {
	Interval  string
	Reference *models.TimeframeSnapshot // USDT leg, bybit when absent
	Metrics   *models.TimeframeMetrics
	Params    *models.AnalyzerConfig
}

// Decide runs the seven-signal weighted vote for one timeframe.
func Decide(in decideInput) *models.Decision {
	weights := in.Params.Weights.Signals
	penalties := in.Params.Penalties

	signals := make([]models.SignalScore, 0, len(models.SignalNames()))
	warnings := []string{}

	for _, name := range models.SignalNames() {
		signal := models.SignalScore{Name: name, Weight: weights[name]}

		switch name {
		case models.SignalExchangeDivergence:
			div := in.Metrics.ExchangeDivergence
			signal.Bias = div.Bias.ToBias()
			signal.Confidence = div.Confidence
			signal.Reason = string(div.Scenario)

		case models.SignalMarketRegime:
			regime := in.Metrics.MarketRegime
			signal.Bias = regime.Bias
			signal.Confidence = regime.Confidence
			signal.Reason = string(regime.Regime) + "." + string(regime.Subtype)

		case models.SignalStructure:
			signal.Bias, signal.Confidence, signal.Reason = structureSignal(in.Metrics.Structure, in.Reference)

		case models.SignalVolumeProfile:
			signal.Bias, signal.Confidence, signal.Reason = profileSignal(in.Metrics.VolumeProfile, in.Reference)

		case models.SignalTechnical:
			signal.Bias, signal.Confidence, signal.Reason = technicalSignal(in.Metrics.Technical)

		case models.SignalFunding:
			signal.Bias, signal.Confidence, signal.Reason = fundingSignal(in.Metrics.FundingAdvanced)

		case models.SignalCVD:
			gated, reason := cvdGate(in.Reference, in.Interval)
			if gated {
				signal.Weight = 0
				signal.Bias = models.BiasWait
				signal.Confidence = 0
				signal.Reason = reason
				warnings = append(warnings, reason)
			} else {
				signal.Bias, signal.Confidence, signal.Reason = cvdSignal(in.Reference)
			}
		}

		signals = append(signals, signal)
	}

	scores, signals := tally(signals)
	decision := selectBias(scores, penalties)
	decision.Signals = signals
	decision.PrimaryRegime = string(in.Metrics.MarketRegime.Regime)

	for _, w := range warnings {
		decision.Reasoning = append(decision.Reasoning, w)
	}
	if len(warnings) > 0 {
		decision.Warning = warnings[0]
	}
	decision.Reasoning = append(decision.Reasoning, reasoningFor(in.Metrics, decision))

	applyStance(decision, in.Metrics, penalties)

	return decision
}

// cvdGate zeroes the CVD signal when the feed cannot be trusted for the
// timeframe: coarse resolution on a scalping timeframe, a window built for a
// different timeframe, or the reliability contract failing.
func cvdGate(reference *models.TimeframeSnapshot, interval string) (bool, string) {
	if reference == nil {
		return true, "CVD excluded: no venue data"
	}
	if reference.CVDRequestedTimeframe != interval {
		return true, "CVD excluded: resolution mismatch"
	}
	resMs := models.IntervalMs(reference.CVDResolution)
	if models.ScalpingTimeframe(interval) && resMs > models.IntervalMs(interval) {
		return true, "CVD excluded: resolution mismatch"
	}
	if !reference.CVDReliableForTf {
		return true, "CVD excluded: unreliable for timeframe"
	}
	return false, ""
}

func structureSignal(structure *models.Structure, reference *models.TimeframeSnapshot) (models.Bias, float64, string) {
	if structure == nil || reference == nil {
		return models.BiasWait, 3, "no structure"
	}
	switch structure.BOS {
	case models.BOSBullish:
		return models.BiasLong, 7, "bullish break of structure"
	case models.BOSBearish:
		return models.BiasShort, 7, "bearish break of structure"
	}

	price := reference.Price
	if structure.Support > 0 && price <= structure.Support*1.01 {
		return models.BiasLong, 5, "price at support"
	}
	if structure.Resistance > 0 && price >= structure.Resistance*0.99 {
		return models.BiasShort, 5, "price at resistance"
	}
	return models.BiasWait, 3, "mid-range"
}

func profileSignal(profile *models.VolumeProfile, reference *models.TimeframeSnapshot) (models.Bias, float64, string) {
	if profile == nil || reference == nil || profile.TotalVolume == 0 {
		return models.BiasWait, 3, "no profile"
	}
	price := reference.Price
	if price < profile.VAL {
		return models.BiasLong, 6, "price below value area"
	}
	if price > profile.VAH {
		return models.BiasShort, 6, "price above value area"
	}
	return models.BiasWait, 3, "inside value area"
}

func technicalSignal(tech *models.Technical) (models.Bias, float64, string) {
	if tech == nil {
		return models.BiasWait, 3, "no technicals"
	}
	switch tech.Trend {
	case models.TrendUp:
		return models.BiasLong, 6, "ema stack and slope up"
	case models.TrendDown:
		return models.BiasShort, 6, "ema stack and slope down"
	default:
		return models.BiasWait, 3, "sideways"
	}
}

func fundingSignal(funding *models.FundingAdvanced) (models.Bias, float64, string) {
	if funding == nil {
		return models.BiasWait, 3, "no funding"
	}
	level := ClassifyFundingLevel(funding.AvgRatePct, funding.ZScore)
	switch level.Level {
	case models.FundingCriticalHigh, models.FundingCriticalLow:
		return level.Bias, 8, "funding " + string(level.Level)
	case models.FundingHigh, models.FundingLow:
		return level.Bias, 6, "funding " + string(level.Level)
	default:
		return models.BiasWait, 3, "funding normal"
	}
}

func cvdSignal(reference *models.TimeframeSnapshot) (models.Bias, float64, string) {
	if reference.CVD == 0 {
		return models.BiasWait, 3, "flat cvd"
	}

	bias := models.BiasLong
	if reference.CVD < 0 {
		bias = models.BiasShort
	}

	// Agreement with the tape is worth more than divergence against it.
	agrees := (reference.CVD > 0) == (reference.PriceChangePct > 0)
	confidence := 4.0
	if agrees {
		confidence = 6.0
	}
	return bias, confidence, fmt.Sprintf("cvd %s the tape", map[bool]string{true: "confirms", false: "fights"}[agrees])
}

// tally folds contributions per side and normalizes each side back onto the
// 0..10 scale by the active weight.
func tally(signals []models.SignalScore) (models.Scores, []models.SignalScore) {
	activeWeight := 0.0
	for _, s := range signals {
		if s.Weight > 0 {
			activeWeight += s.Weight
		}
	}

	var scores models.Scores
	if activeWeight == 0 {
		return scores, signals
	}

	for i := range signals {
		s := &signals[i]
		if s.Weight <= 0 {
			continue
		}
		s.Contribution = s.Confidence / 10 * s.Weight
		switch s.Bias {
		case models.BiasLong:
			scores.Long += s.Contribution
		case models.BiasShort:
			scores.Short += s.Contribution
		default:
			scores.Wait += s.Contribution
		}
	}

	scores.Long = scores.Long / activeWeight * 10
	scores.Short = scores.Short / activeWeight * 10
	scores.Wait = scores.Wait / activeWeight * 10

	return scores, signals
}

// selectBias applies the buffer rule and the two confidence scales.
func selectBias(scores models.Scores, penalties models.ConfigPenalties) *models.Decision {
	directionConfidence := scores.Long
	if scores.Short > directionConfidence {
		directionConfidence = scores.Short
	}

	lo, hi := scores.Long, scores.Short
	if lo > hi {
		lo, hi = hi, lo
	}
	conflictBonus := 0.0
	if hi > 0 {
		conflictBonus = helpers.Clamp(lo/hi*penalties.ConflictBonusCap, 0, penalties.ConflictBonusCap)
	}
	noTradeConfidence := helpers.Clamp(10-directionConfidence+conflictBonus, 0, 10)

	decision := &models.Decision{Scores: scores}

	switch {
	case scores.Long > penalties.BiasBuffer*scores.Short && scores.Long > penalties.WaitBuffer*scores.Wait:
		decision.Bias = models.BiasLong
		decision.Confidence = helpers.Round1(directionConfidence)
		decision.ConfidenceType = models.ConfidenceDirection
	case scores.Short > penalties.BiasBuffer*scores.Long && scores.Short > penalties.WaitBuffer*scores.Wait:
		decision.Bias = models.BiasShort
		decision.Confidence = helpers.Round1(directionConfidence)
		decision.ConfidenceType = models.ConfidenceDirection
	default:
		decision.Bias = models.BiasWait
		decision.Confidence = helpers.Round1(noTradeConfidence)
		decision.ConfidenceType = models.ConfidenceNoTrade
	}

	return decision
}

// applyStance derives the operator stance and risk mode from the decision
// plus the regime family.
func applyStance(decision *models.Decision, metrics *models.TimeframeMetrics, penalties models.ConfigPenalties) {
	regime := metrics.MarketRegime.Regime
	subtype := metrics.MarketRegime.Subtype
	scenario := metrics.ExchangeDivergence.Scenario

	avoidRegime := regime == models.RegimeRange || regime == models.RegimeTrap || regime == models.RegimeCovering

	switch {
	case decision.Confidence < penalties.AvoidBelow, avoidRegime, decision.Bias == models.BiasWait:
		decision.TradeStance = models.StanceAvoidTrading
	case decision.Bias == models.BiasLong:
		decision.TradeStance = models.StanceLookForLongs
	default:
		decision.TradeStance = models.StanceLookForShorts
	}

	healthy := subtype == models.SubtypeHealthyBull || subtype == models.SubtypeHealthyBear

	switch {
	case regime == models.RegimeTrap || regime == models.RegimeCovering || decision.Confidence < penalties.DefensiveBelow:
		decision.RiskMode = models.RiskDefensive
	case decision.Confidence >= penalties.AggressiveFrom && scenario.Synchronized() && healthy:
		decision.RiskMode = models.RiskAggressive
	default:
		decision.RiskMode = models.RiskNormal
	}
}

func reasoningFor(metrics *models.TimeframeMetrics, decision *models.Decision) string {
	return fmt.Sprintf("%s: scenario %s, regime %s.%s, scores L%.1f/S%.1f/W%.1f",
		string(decision.Bias),
		metrics.ExchangeDivergence.Scenario,
		metrics.MarketRegime.Regime, metrics.MarketRegime.Subtype,
		decision.Scores.Long, decision.Scores.Short, decision.Scores.Wait)
}
