package engine

import (
	"testing"

	"github.com/anvh2/market-intel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tfWithScores(interval string, long, short, wait, confidence float64) *models.TimeframeMetrics {
	return &models.TimeframeMetrics{
		Interval: interval,
		FinalDecision: &models.Decision{
			Bias:       models.BiasWait,
			Confidence: confidence,
			Scores:     models.Scores{Long: long, Short: short, Wait: wait},
		},
		MarketRegime: &models.MarketRegime{Regime: models.RegimeTrending, Subtype: models.SubtypeHealthyBull},
	}
}

func TestAggregateRenormalizesMissingTimeframes(t *testing.T) {
	params := defaultParams()

	// Only 4h present: its scores pass through unchanged.
	timeframes := map[string]*models.TimeframeMetrics{
		"4h": tfWithScores("4h", 6, 1, 2, 7),
	}

	decision := AggregateTimeframes(timeframes, params)
	assert.InDelta(t, 6.0, decision.Scores.Long, 1e-9)
	assert.Equal(t, models.BiasLong, decision.Bias)
}

func TestAggregateWeighted(t *testing.T) {
	params := defaultParams()

	timeframes := map[string]*models.TimeframeMetrics{
		"30m": tfWithScores("30m", 8, 0, 1, 8),
		"1h":  tfWithScores("1h", 8, 0, 1, 8),
		"4h":  tfWithScores("4h", 0, 8, 1, 8),
		"1d":  tfWithScores("1d", 0, 8, 1, 8),
	}

	decision := AggregateTimeframes(timeframes, params)

	// 0.5 weight long at 8 vs 0.5 weight short at 8: dead heat, WAIT.
	assert.InDelta(t, decision.Scores.Long, decision.Scores.Short, 1e-9)
	assert.Equal(t, models.BiasWait, decision.Bias)
}

func TestBucketMembersAndBias(t *testing.T) {
	params := defaultParams()

	timeframes := map[string]*models.TimeframeMetrics{
		"30m": tfWithScores("30m", 7, 1, 1, 7),
		"1h":  tfWithScores("1h", 7, 1, 1, 7),
		"4h":  tfWithScores("4h", 7, 1, 1, 7),
		"1d":  tfWithScores("1d", 7, 1, 1, 7),
	}

	buckets := BuildBuckets(timeframes, params)
	require.Len(t, buckets, 3)

	macro := buckets[models.BucketMacro]
	assert.Equal(t, []string{"1d", "4h"}, macro.Members)
	assert.Equal(t, models.BucketBullish, macro.Bias)
	assert.InDelta(t, 7.0, macro.Confidence, 1e-9)
	assert.Equal(t, models.StanceLookForLongs, macro.TradeStance)
	assert.NotEmpty(t, macro.Summary)
}

func TestBucketNeutralWhenEmpty(t *testing.T) {
	buckets := BuildBuckets(map[string]*models.TimeframeMetrics{}, defaultParams())
	for _, bucket := range buckets {
		assert.Equal(t, models.BucketNeutral, bucket.Bias)
		assert.Zero(t, bucket.Confidence)
	}
}

func TestMacroHierarchyAnchorsFinalBias(t *testing.T) {
	params := defaultParams()

	decision := &models.Decision{Bias: models.BiasWait, Confidence: 5}
	buckets := map[models.BucketKind]*models.TimeframeBucket{
		models.BucketMacro: {
			Kind: models.BucketMacro, Bias: models.BucketBearish, Confidence: 7,
		},
		models.BucketScalping: {
			Kind: models.BucketScalping, Bias: models.BucketNeutral, Confidence: 4,
		},
	}

	ApplyMacroHierarchy(decision, buckets, params)

	assert.Equal(t, models.BiasShort, decision.Bias)
	assert.True(t, decision.MacroAnchored)
	assert.Contains(t, decision.Warning, "consolidating")
}

func TestMacroHierarchyRespectsOpposingScalping(t *testing.T) {
	params := defaultParams()

	decision := &models.Decision{Bias: models.BiasWait, Confidence: 5}
	buckets := map[models.BucketKind]*models.TimeframeBucket{
		models.BucketMacro: {
			Kind: models.BucketMacro, Bias: models.BucketBearish, Confidence: 7,
		},
		models.BucketScalping: {
			Kind: models.BucketScalping, Bias: models.BucketBullish, Confidence: 7,
		},
	}

	ApplyMacroHierarchy(decision, buckets, params)

	assert.Equal(t, models.BiasWait, decision.Bias, "opposing scalping blocks the anchor")
	assert.False(t, decision.MacroAnchored)
}

func TestMacroHierarchySkippedAfterOverride(t *testing.T) {
	params := defaultParams()

	decision := &models.Decision{
		Bias:          models.BiasWait,
		Confidence:    4,
		MacroOverride: &models.MacroOverride{Triggered: true},
	}
	buckets := map[models.BucketKind]*models.TimeframeBucket{
		models.BucketMacro: {Kind: models.BucketMacro, Bias: models.BucketBearish, Confidence: 8},
	}

	ApplyMacroHierarchy(decision, buckets, params)
	assert.Equal(t, models.BiasWait, decision.Bias)
	assert.False(t, decision.MacroAnchored)
}
