package engine

import (
	"fmt"

	"github.com/anvh2/market-intel/internal/helpers"
	"github.com/anvh2/market-intel/internal/models"
)

// AggregateTimeframes folds the per-timeframe scores into the final decision
// using the timeframe weight table, renormalized by whatever timeframes are
// actually present.
func AggregateTimeframes(timeframes map[string]*models.TimeframeMetrics, params *models.AnalyzerConfig) *models.Decision {
	weights := params.Weights.Timeframes
	penalties := params.Penalties

	var scores models.Scores
	activeWeight := 0.0
	for interval, metrics := range timeframes {
		if metrics == nil || metrics.FinalDecision == nil {
			continue
		}
		w := weights[interval]
		if w == 0 {
			continue
		}
		activeWeight += w
		scores.Long += metrics.FinalDecision.Scores.Long * w
		scores.Short += metrics.FinalDecision.Scores.Short * w
		scores.Wait += metrics.FinalDecision.Scores.Wait * w
	}
	if activeWeight > 0 {
		scores.Long /= activeWeight
		scores.Short /= activeWeight
		scores.Wait /= activeWeight
	}

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

	decision := &models.Decision{Scores: scores}
	switch {
	case scores.Long > penalties.BucketBuffer*scores.Short && scores.Long > penalties.WaitBuffer*scores.Wait:
		decision.Bias = models.BiasLong
		decision.Confidence = helpers.Round1(directionConfidence)
		decision.ConfidenceType = models.ConfidenceDirection
	case scores.Short > penalties.BucketBuffer*scores.Long && scores.Short > penalties.WaitBuffer*scores.Wait:
		decision.Bias = models.BiasShort
		decision.Confidence = helpers.Round1(directionConfidence)
		decision.ConfidenceType = models.ConfidenceDirection
	default:
		decision.Bias = models.BiasWait
		decision.Confidence = helpers.Round1(helpers.Clamp(10-directionConfidence+conflictBonus, 0, 10))
		decision.ConfidenceType = models.ConfidenceNoTrade
	}

	return decision
}

// MacroBiasOf derives the anchor bias from the two highest timeframes.
func MacroBiasOf(timeframes map[string]*models.TimeframeMetrics, params *models.AnalyzerConfig) (models.Bias, string) {
	penalties := params.Penalties

	h4 := decisionOf(timeframes["4h"])
	d1 := decisionOf(timeframes["1d"])

	if h4 != nil && d1 != nil &&
		h4.Bias.Directional() && h4.Bias == d1.Bias &&
		h4.Confidence >= penalties.MacroMinConfidence && d1.Confidence >= penalties.MacroMinConfidence {
		return h4.Bias, fmt.Sprintf("4h and 1d agree %s", h4.Bias)
	}
	if d1 != nil && d1.Bias.Directional() && d1.Confidence >= penalties.SoloMinConfidence {
		return d1.Bias, fmt.Sprintf("1d %s at confidence %.1f", d1.Bias, d1.Confidence)
	}
	if h4 != nil && h4.Bias.Directional() && h4.Confidence >= penalties.SoloMinConfidence &&
		(d1 == nil || d1.Bias == models.BiasWait) {
		return h4.Bias, fmt.Sprintf("4h %s at confidence %.1f with 1d neutral", h4.Bias, h4.Confidence)
	}
	return models.BiasWait, ""
}

// ApplyMacroOverride vetoes an aggregated bias that fights the macro anchor.
func ApplyMacroOverride(decision *models.Decision, macroBias models.Bias, macroReason string, params *models.AnalyzerConfig) {
	if !macroBias.Directional() || !decision.Bias.Directional() || macroBias == decision.Bias {
		return
	}

	reason := fmt.Sprintf("macro anchor %s vetoes %s: %s", macroBias, decision.Bias, macroReason)
	decision.Bias = models.BiasWait
	decision.ConfidenceType = models.ConfidenceNoTrade
	if decision.Confidence > params.Penalties.MacroConfidenceCap {
		decision.Confidence = params.Penalties.MacroConfidenceCap
	}
	decision.MacroOverride = &models.MacroOverride{
		Triggered: true,
		MacroBias: macroBias,
		Reason:    reason,
	}
	decision.Reasoning = append([]string{reason}, decision.Reasoning...)
	decision.TradeStance = models.StanceAvoidTrading
}

// BuildBuckets averages member timeframes into the MACRO/MICRO/SCALPING
// reads.
func BuildBuckets(timeframes map[string]*models.TimeframeMetrics, params *models.AnalyzerConfig) map[models.BucketKind]*models.TimeframeBucket {
	out := make(map[models.BucketKind]*models.TimeframeBucket, 3)
	for _, kind := range []models.BucketKind{models.BucketMacro, models.BucketMicro, models.BucketScalping} {
		out[kind] = buildBucket(kind, timeframes, params)
	}
	return out
}

func buildBucket(kind models.BucketKind, timeframes map[string]*models.TimeframeMetrics, params *models.AnalyzerConfig) *models.TimeframeBucket {
	bucket := &models.TimeframeBucket{
		Kind:    kind,
		Members: models.BucketMembers(kind),
		Bias:    models.BucketNeutral,
	}

	var scores models.Scores
	var confidence float64
	present := 0
	members := make([]*models.TimeframeMetrics, 0, len(bucket.Members))

	for _, interval := range bucket.Members {
		metrics := timeframes[interval]
		if metrics == nil || metrics.FinalDecision == nil {
			continue
		}
		present++
		members = append(members, metrics)
		scores.Long += metrics.FinalDecision.Scores.Long
		scores.Short += metrics.FinalDecision.Scores.Short
		scores.Wait += metrics.FinalDecision.Scores.Wait
		confidence += metrics.FinalDecision.Confidence
	}

	if present == 0 {
		return bucket
	}

	scores.Long /= float64(present)
	scores.Short /= float64(present)
	scores.Wait /= float64(present)
	bucket.Scores = scores
	bucket.Confidence = helpers.Round1(confidence / float64(present))

	buffer := params.Penalties.BucketBuffer
	switch {
	case scores.Long > buffer*scores.Short:
		bucket.Bias = models.BucketBullish
	case scores.Short > buffer*scores.Long:
		bucket.Bias = models.BucketBearish
	default:
		bucket.Bias = models.BucketNeutral
	}

	threshold := params.Penalties.StanceThreshold
	switch {
	case bucket.Bias == models.BucketBullish && bucket.Confidence >= threshold:
		bucket.TradeStance = models.StanceLookForLongs
	case bucket.Bias == models.BucketBearish && bucket.Confidence >= threshold:
		bucket.TradeStance = models.StanceLookForShorts
	default:
		bucket.TradeStance = models.StanceAvoidTrading
	}

	bucket.Summary = fmt.Sprintf("%s %s at confidence %.1f", kind, bucket.Bias, bucket.Confidence)
	bucket.Bullets = bucketBullets(members)

	return bucket
}

// bucketBullets templates up to three observations from the member feature
// blocks.
func bucketBullets(members []*models.TimeframeMetrics) []string {
	bullets := make([]string, 0, 3)

	for _, m := range members {
		if len(bullets) >= 3 {
			break
		}
		if m.OIAdvanced != nil && m.OIAdvanced.Binance != nil && m.OIAdvanced.Bybit != nil {
			if m.OIAdvanced.BothRising {
				bullets = append(bullets, fmt.Sprintf("%s: open interest building on both venues", m.Interval))
				continue
			}
			if m.OIAdvanced.BothFalling {
				bullets = append(bullets, fmt.Sprintf("%s: open interest unwinding on both venues", m.Interval))
				continue
			}
		}
		if m.FundingAdvanced != nil && m.FundingAdvanced.PainIndexUSD > 0 {
			level := ClassifyFundingLevel(m.FundingAdvanced.AvgRatePct, m.FundingAdvanced.ZScore)
			if level.Level != models.FundingNormal {
				bullets = append(bullets, fmt.Sprintf("%s: funding %s, pain index $%.0fM",
					m.Interval, level.Level, m.FundingAdvanced.PainIndexUSD/1e6))
				continue
			}
		}
		if m.MarketRegime != nil && m.MarketRegime.Regime != models.RegimeUnclear {
			bullets = append(bullets, fmt.Sprintf("%s: %s.%s", m.Interval, m.MarketRegime.Regime, m.MarketRegime.Subtype))
		}
	}

	return bullets
}

// ApplyMacroHierarchy anchors the final bias to a confident macro bucket
// unless the scalping bucket actively opposes it.
func ApplyMacroHierarchy(decision *models.Decision, buckets map[models.BucketKind]*models.TimeframeBucket, params *models.AnalyzerConfig) {
	if decision.MacroOverride != nil {
		return
	}

	macro := buckets[models.BucketMacro]
	scalping := buckets[models.BucketScalping]
	if macro == nil || macro.Bias == models.BucketNeutral || macro.Confidence < params.Penalties.MacroMinConfidence {
		return
	}

	macroDirection := models.BiasLong
	opposing := models.BucketBearish
	if macro.Bias == models.BucketBearish {
		macroDirection = models.BiasShort
		opposing = models.BucketBullish
	}

	if scalping != nil && scalping.Bias == opposing {
		return
	}

	decision.Bias = macroDirection
	decision.ConfidenceType = models.ConfidenceDirection
	decision.MacroAnchored = true
	if scalping != nil && scalping.Bias == models.BucketNeutral {
		decision.Warning = "Lower timeframes consolidating, wait for setup"
	}
	decision.Reasoning = append(decision.Reasoning,
		fmt.Sprintf("anchored to %s macro bucket at confidence %.1f", macro.Bias, macro.Confidence))
}

func decisionOf(metrics *models.TimeframeMetrics) *models.Decision {
	if metrics == nil {
		return nil
	}
	return metrics.FinalDecision
}
