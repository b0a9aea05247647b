package engine

import (
	"testing"

	"github.com/anvh2/market-intel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricsWith(divergence *models.ExchangeDivergence, regime *models.MarketRegime) *models.TimeframeMetrics {
	return &models.TimeframeMetrics{
		Interval:           "1h",
		ExchangeDivergence: divergence,
		MarketRegime:       regime,
		Technical:          &models.Technical{Trend: models.TrendSideways},
		FundingAdvanced:    &models.FundingAdvanced{},
		OIAdvanced:         &models.OIAdvanced{},
		VolumeProfile:      &models.VolumeProfile{},
		Structure:          &models.Structure{BOS: models.BOSNone},
	}
}

func neutralRegime() *models.MarketRegime {
	return &models.MarketRegime{
		Regime:     models.RegimeUnclear,
		Subtype:    models.SubtypeMixedSignals,
		Bias:       models.BiasWait,
		Confidence: 4,
	}
}

func TestScoringNormalization(t *testing.T) {
	reference := makeLeg(models.VenueBinance, "1h", legSpec{PriceChangePct: 1, CVD: 1_000_000, CVDReliable: true})

	decision := Decide(decideInput{
		Interval:  "1h",
		Reference: reference,
		Metrics: metricsWith(&models.ExchangeDivergence{
			Scenario: models.ScenarioSyncBullish, Bias: models.DivergenceLong, Confidence: 8,
		}, neutralRegime()),
		Params: defaultParams(),
	})

	total := decision.Scores.Long + decision.Scores.Short + decision.Scores.Wait
	assert.LessOrEqual(t, total, 10.0+1e-9, "normalized sides must not exceed the scale")
	assert.GreaterOrEqual(t, decision.Scores.Long, decision.Scores.Short)
}

func TestBiasBufferBoundary(t *testing.T) {
	penalties := defaultParams().Penalties

	tests := []struct {
		name   string
		scores models.Scores
		bias   models.Bias
	}{
		{"exactly 1.3x is not enough", models.Scores{Long: 1.3, Short: 1.0, Wait: 0}, models.BiasWait},
		{"just above 1.3x wins", models.Scores{Long: 1.301, Short: 1.0, Wait: 0}, models.BiasLong},
		{"wait buffer blocks", models.Scores{Long: 4, Short: 1, Wait: 6}, models.BiasWait},
		{"short symmetric", models.Scores{Long: 1.0, Short: 1.4, Wait: 0}, models.BiasShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := selectBias(tt.scores, penalties)
			assert.Equal(t, tt.bias, decision.Bias)
		})
	}
}

func TestConflictBonusExtremes(t *testing.T) {
	penalties := defaultParams().Penalties

	// Perfect agreement: nothing on the other side, no bonus.
	agree := selectBias(models.Scores{Long: 8, Short: 0, Wait: 1}, penalties)
	require.Equal(t, models.BiasLong, agree.Bias)

	// Perfect split: min/max = 1 so the bonus saturates at the cap and the
	// no-trade confidence absorbs it.
	split := selectBias(models.Scores{Long: 5, Short: 5, Wait: 0}, penalties)
	require.Equal(t, models.BiasWait, split.Bias)
	assert.InDelta(t, 10-5+penalties.ConflictBonusCap, split.Confidence, 0.11)
}

// A 30m decision built on a 24h CVD feed must not see the CVD sign at all.
func TestScalpingCVDGate(t *testing.T) {
	params := defaultParams()

	build := func(cvd float64) *models.Decision {
		reference := makeLeg(models.VenueBinance, "30m", legSpec{PriceChangePct: 0.1, CVD: cvd, CVDReliable: true})
		reference.CVDResolution = "24h"
		reference.CVDRequestedTimeframe = "30m"

		return Decide(decideInput{
			Interval:  "30m",
			Reference: reference,
			Metrics:   metricsWith(&models.ExchangeDivergence{Scenario: models.ScenarioUnclear, Bias: models.DivergenceWait, Confidence: 4}, neutralRegime()),
			Params:    params,
		})
	}

	positive := build(5_000_000)
	negative := build(-5_000_000)

	var cvdSignal models.SignalScore
	for _, s := range positive.Signals {
		if s.Name == models.SignalCVD {
			cvdSignal = s
		}
	}
	assert.Zero(t, cvdSignal.Weight)
	assert.Equal(t, models.BiasWait, cvdSignal.Bias)
	assert.Contains(t, cvdSignal.Reason, "resolution mismatch")

	// The final decision must be unaffected by the CVD sign.
	assert.Equal(t, positive.Bias, negative.Bias)
	assert.Equal(t, positive.Scores, negative.Scores)
}

func TestCVDGateVariants(t *testing.T) {
	leg := makeLeg(models.VenueBinance, "1h", legSpec{CVD: 1, CVDReliable: true})

	gated, _ := cvdGate(leg, "1h")
	assert.False(t, gated)

	mismatch := makeLeg(models.VenueBinance, "1h", legSpec{CVD: 1, CVDReliable: true})
	mismatch.CVDRequestedTimeframe = "4h"
	gated, reason := cvdGate(mismatch, "1h")
	assert.True(t, gated)
	assert.Contains(t, reason, "resolution mismatch")

	unreliable := makeLeg(models.VenueBinance, "1h", legSpec{CVD: 1, CVDReliable: false})
	gated, reason = cvdGate(unreliable, "1h")
	assert.True(t, gated)
	assert.Contains(t, reason, "unreliable")

	gated, _ = cvdGate(nil, "1h")
	assert.True(t, gated)
}

func TestRiskModeAndStance(t *testing.T) {
	params := defaultParams()
	reference := makeLeg(models.VenueBinance, "1h", legSpec{PriceChangePct: 1, CVD: 1, CVDReliable: true})

	trap := metricsWith(&models.ExchangeDivergence{Scenario: models.ScenarioUnclear, Bias: models.DivergenceWait, Confidence: 4},
		&models.MarketRegime{Regime: models.RegimeTrap, Subtype: models.SubtypeLongTrap, Bias: models.BiasShort, Confidence: 9})

	decision := Decide(decideInput{Interval: "1h", Reference: reference, Metrics: trap, Params: params})
	assert.Equal(t, models.StanceAvoidTrading, decision.TradeStance, "trap regime always avoids")
	assert.Equal(t, models.RiskDefensive, decision.RiskMode)
}
