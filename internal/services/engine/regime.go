package engine

import (
	"math"

	"github.com/anvh2/market-intel/internal/models"
)

// regimeInput is the reference-venue view regime detection runs on. CVD
// conditions demand reliability; an unreliable feed simply fails them.
type regimeInput struct {
	Price       models.PriceMove
	OI          models.OIMove
	Funding     models.FundingLevel
	Thresholds  models.TimeframeThresholds
	CVD         float64
	CVDReliable bool
	Scenario    models.ScenarioKind
}

// Base confidence bonuses per regime family, applied on top of the met-ratio
// score and capped at 10 overall.
const (
	bonusDistribution = 2.0
	bonusAccumulation = 2.0
	bonusTrap         = 2.0
	bonusTrending     = 1.0
	bonusCovering     = 1.0
)

type regimeCandidate struct {
	kind        models.RegimeKind
	subtype     models.RegimeSubtype
	bias        models.Bias
	bonus       float64
	description string
	// conditions of the state; a candidate matches when at most one is
	// unmet, or unconditionally when forced (scenario shortcut).
	conds  []bool
	forced bool
}

// DetectRegime evaluates the regime states in priority order; the first
// match wins, except the covering/range overrides which are checked last and
// replace an earlier match when their conditions hold.
func DetectRegime(in regimeInput) *models.MarketRegime {
	priceUp := in.Price.Direction == models.DirectionUp
	priceDown := in.Price.Direction == models.DirectionDown
	priceFlat := in.Price.Direction == models.DirectionFlat
	oiRising := in.OI.Direction == models.DirectionUp
	oiFalling := in.OI.Direction == models.DirectionDown
	oiFlat := in.OI.Direction == models.DirectionFlat

	cvdPositive := in.CVDReliable && in.CVD > 0
	cvdNegative := in.CVDReliable && in.CVD < 0

	high := fundingHigh(in.Funding, in.Thresholds)
	negative := fundingNegative(in.Funding)
	extreme := fundingExtreme(in.Funding)

	candidates := []regimeCandidate{
		{
			kind: models.RegimeDistribution, subtype: models.SubtypeWhaleExit,
			bias: models.BiasShort, bonus: bonusDistribution,
			// The flat-tape variant; a rallying tape with the same flows is
			// the long trap below, unless the divergence scenario already
			// called the whale exit.
			description: "large holders unloading into strength",
			conds:       []bool{priceFlat, oiRising, high, cvdNegative},
			forced:      in.Scenario == models.ScenarioWhaleDistribution,
		},
		{
			kind: models.RegimeAccumulation, subtype: models.SubtypeWhaleEntry,
			bias: models.BiasLong, bonus: bonusAccumulation,
			description: "quiet positioning under a flat tape",
			conds:       []bool{priceFlat, oiRising, negative, cvdPositive},
			forced:      in.Scenario == models.ScenarioWhaleAccumulation,
		},
		{
			kind: models.RegimeTrap, subtype: models.SubtypeLongTrap,
			bias: models.BiasShort, bonus: bonusTrap,
			description: "longs paying up into hidden selling",
			conds:       []bool{priceUp, oiRising, high, cvdNegative},
		},
		{
			kind: models.RegimeTrap, subtype: models.SubtypeShortTrap,
			bias: models.BiasLong, bonus: bonusTrap,
			description: "shorts pressing into hidden buying",
			conds:       []bool{priceDown, oiRising, negative, cvdPositive},
		},
		{
			kind: models.RegimeTrending, subtype: models.SubtypeHealthyBull,
			bias: models.BiasLong, bonus: bonusTrending,
			description: "both books confirm the advance",
			conds:       []bool{priceUp, oiRising, cvdPositive, !extreme, in.Scenario == models.ScenarioSyncBullish},
		},
		{
			kind: models.RegimeTrending, subtype: models.SubtypeHealthyBear,
			bias: models.BiasShort, bonus: bonusTrending,
			description: "both books confirm the decline",
			conds:       []bool{priceDown, oiRising, cvdNegative, !extreme, in.Scenario == models.ScenarioSyncBearish},
		},
	}

	var regime *models.MarketRegime
	for _, c := range candidates {
		met := countTrue(c.conds)
		if c.forced {
			regime = buildRegime(c, len(c.conds), len(c.conds))
			break
		}
		if met >= len(c.conds)-1 && met > 0 && firstCondHolds(c) {
			regime = buildRegime(c, met, len(c.conds))
			break
		}
	}

	// Overrides win when their conditions hold, regardless of what matched
	// above.
	switch {
	case priceDown && oiFalling:
		regime = buildRegime(regimeCandidate{
			kind: models.RegimeCovering, subtype: models.SubtypeLongSqueeze,
			bias: models.BiasWait, bonus: bonusCovering,
			description: "longs forced out, open interest bleeding",
		}, 2, 2)
	case priceUp && oiFalling:
		regime = buildRegime(regimeCandidate{
			kind: models.RegimeCovering, subtype: models.SubtypeShortSqueeze,
			bias: models.BiasWait, bonus: bonusCovering,
			description: "shorts forced out, open interest bleeding",
		}, 2, 2)
	case priceFlat && oiFlat:
		regime = &models.MarketRegime{
			Regime:        models.RegimeRange,
			Subtype:       models.SubtypeChop,
			Bias:          models.BiasWait,
			Confidence:    3,
			ConditionsMet: 2,
			ConditionsAll: 2,
			Description:   "no participation either way",
		}
	}

	if regime == nil {
		regime = &models.MarketRegime{
			Regime:        models.RegimeUnclear,
			Subtype:       models.SubtypeMixedSignals,
			Bias:          models.BiasWait,
			Confidence:    4,
			ConditionsMet: 0,
			ConditionsAll: 4,
			Description:   "conflicting flows",
		}
	}

	return regime
}

// firstCondHolds keeps soft matching honest: the directional precondition of
// a state (its first condition) can never be the one waived.
func firstCondHolds(c regimeCandidate) bool {
	if len(c.conds) == 0 {
		return false
	}
	return c.conds[0]
}

func countTrue(flags []bool) int {
	met := 0
	for _, f := range flags {
		if f {
			met++
		}
	}
	return met
}

func buildRegime(c regimeCandidate, met, total int) *models.MarketRegime {
	confidence := math.Round(float64(met)/float64(total)*10) + c.bonus
	if confidence > 10 {
		confidence = 10
	}
	return &models.MarketRegime{
		Regime:        c.kind,
		Subtype:       c.subtype,
		Bias:          c.bias,
		Confidence:    confidence,
		ConditionsMet: met,
		ConditionsAll: total,
		Description:   c.description,
	}
}
