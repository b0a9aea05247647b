package alerting

import (
	"testing"
	"time"

	"github.com/anvh2/market-intel/internal/config"
	"github.com/anvh2/market-intel/internal/libs/logger"
	"github.com/anvh2/market-intel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateWith(bias models.Bias, confidence float64, regime models.RegimeKind, subtype models.RegimeSubtype, fundingZ float64) *models.MarketState {
	return &models.MarketState{
		Timestamp:        time.Now().UnixMilli(),
		Symbol:           "BTC",
		PrimaryTimeframe: "4h",
		FinalDecision: &models.Decision{
			Bias:          bias,
			Confidence:    confidence,
			PrimaryRegime: string(regime),
		},
		Timeframes: map[string]*models.TimeframeMetrics{
			"4h": {
				Interval: "4h",
				MarketRegime: &models.MarketRegime{
					Regime:  regime,
					Subtype: subtype,
				},
				FundingAdvanced: &models.FundingAdvanced{ZScore: fundingZ},
			},
		},
	}
}

func newTestEngine(start int64) (*Engine, *int64) {
	now := start
	engine := New(logger.NewDev(), config.AlertingConfig{}).WithClock(func() int64 { return now })
	return engine, &now
}

func TestBiasShiftFiresOnce(t *testing.T) {
	engine, _ := newTestEngine(1_700_000_000_000)

	prev := stateWith(models.BiasWait, 5, models.RegimeUnclear, models.SubtypeMixedSignals, 0)
	cur := stateWith(models.BiasLong, 7, models.RegimeUnclear, models.SubtypeMixedSignals, 0)

	alerts := engine.Compare(prev, cur)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertBiasShift, alerts[0].Category)
	assert.Equal(t, models.PriorityHigh, alerts[0].Priority)

	// Second shift inside the 30 minute cooldown stays silent.
	back := engine.Compare(cur, prev)
	assert.Empty(t, back)
}

func TestBiasShiftFiresAgainAfterCooldown(t *testing.T) {
	engine, now := newTestEngine(1_700_000_000_000)

	prev := stateWith(models.BiasWait, 5, models.RegimeUnclear, models.SubtypeMixedSignals, 0)
	cur := stateWith(models.BiasLong, 7, models.RegimeUnclear, models.SubtypeMixedSignals, 0)

	first := engine.Compare(prev, cur)
	require.Len(t, first, 1)

	*now += 31 * time.Minute.Milliseconds()
	second := engine.Compare(cur, prev)
	require.Len(t, second, 1)
	assert.Equal(t, models.AlertBiasShift, second[0].Category)
}

// Six alternating biases: at most one BIAS_SHIFT in total, the rest eaten by
// oscillation suppression.
func TestOscillationSuppression(t *testing.T) {
	engine, now := newTestEngine(1_700_000_000_000)

	sequence := []models.Bias{
		models.BiasLong, models.BiasShort, models.BiasLong,
		models.BiasShort, models.BiasLong, models.BiasShort,
	}

	fired := 0
	var prev *models.MarketState
	for _, bias := range sequence {
		cur := stateWith(bias, 6, models.RegimeUnclear, models.SubtypeMixedSignals, 0)
		for _, alert := range engine.Compare(prev, cur) {
			if alert.Category == models.AlertBiasShift {
				fired++
			}
		}
		prev = cur
		*now += 5 * time.Minute.Milliseconds() // live cadence
	}

	assert.LessOrEqual(t, fired, 1, "oscillating bias must be suppressed")
}

func TestRegimeChange(t *testing.T) {
	engine, _ := newTestEngine(1_700_000_000_000)

	prev := stateWith(models.BiasWait, 5, models.RegimeRange, models.SubtypeChop, 0)
	cur := stateWith(models.BiasWait, 5, models.RegimeTrending, models.SubtypeHealthyBull, 0)

	alerts := engine.Compare(prev, cur)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertRegimeChange, alerts[0].Category)
	assert.Equal(t, string(models.RegimeTrending), alerts[0].Context.Current)
}

func TestConfidenceSpike(t *testing.T) {
	engine, _ := newTestEngine(1_700_000_000_000)

	prev := stateWith(models.BiasLong, 4, models.RegimeUnclear, models.SubtypeMixedSignals, 0)
	cur := stateWith(models.BiasLong, 8, models.RegimeUnclear, models.SubtypeMixedSignals, 0)

	alerts := engine.Compare(prev, cur)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertConfidenceSpike, alerts[0].Category)
	assert.Equal(t, models.PriorityHigh, alerts[0].Priority)

	// A jump that lands below 7 does not qualify.
	engine2, _ := newTestEngine(1_700_000_000_000)
	low := engine2.Compare(
		stateWith(models.BiasLong, 2, models.RegimeUnclear, models.SubtypeMixedSignals, 0),
		stateWith(models.BiasLong, 6, models.RegimeUnclear, models.SubtypeMixedSignals, 0))
	assert.Empty(t, low)
}

func TestTrapAndSqueeze(t *testing.T) {
	engine, _ := newTestEngine(1_700_000_000_000)

	prev := stateWith(models.BiasWait, 5, models.RegimeUnclear, models.SubtypeMixedSignals, 0)
	cur := stateWith(models.BiasWait, 5, models.RegimeTrap, models.SubtypeLongTrap, 0)

	alerts := engine.Compare(prev, cur)

	categories := make([]models.AlertCategory, 0, len(alerts))
	for _, a := range alerts {
		categories = append(categories, a.Category)
	}
	assert.Contains(t, categories, models.AlertTrapDetected)
	assert.Contains(t, categories, models.AlertRegimeChange)

	// Alerts arrive priority-descending.
	for i := 1; i < len(alerts); i++ {
		assert.GreaterOrEqual(t, alerts[i-1].Priority.Rank(), alerts[i].Priority.Rank())
	}

	engine2, _ := newTestEngine(1_700_000_000_000)
	squeeze := engine2.Compare(
		stateWith(models.BiasWait, 5, models.RegimeUnclear, models.SubtypeMixedSignals, 0),
		stateWith(models.BiasWait, 5, models.RegimeCovering, models.SubtypeShortSqueeze, 0))

	found := false
	for _, a := range squeeze {
		if a.Category == models.AlertSqueezeActive {
			found = true
			assert.Equal(t, models.PriorityMedium, a.Priority)
		}
	}
	assert.True(t, found)
}

func TestFundingExtremeCrossesUpward(t *testing.T) {
	engine, _ := newTestEngine(1_700_000_000_000)

	prev := stateWith(models.BiasWait, 5, models.RegimeUnclear, models.SubtypeMixedSignals, 1.5)
	cur := stateWith(models.BiasWait, 5, models.RegimeUnclear, models.SubtypeMixedSignals, 2.4)

	alerts := engine.Compare(prev, cur)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertFundingExtreme, alerts[0].Category)

	// Already extreme on both sides: no re-fire.
	engine2, _ := newTestEngine(1_700_000_000_000)
	still := engine2.Compare(
		stateWith(models.BiasWait, 5, models.RegimeUnclear, models.SubtypeMixedSignals, 2.4),
		stateWith(models.BiasWait, 5, models.RegimeUnclear, models.SubtypeMixedSignals, 2.6))
	assert.Empty(t, still)
}

func TestFirstCycleOnlyEntryTriggers(t *testing.T) {
	engine, _ := newTestEngine(1_700_000_000_000)

	cur := stateWith(models.BiasLong, 8, models.RegimeTrending, models.SubtypeHealthyBull, 0)
	alerts := engine.Compare(nil, cur)

	for _, a := range alerts {
		assert.NotEqual(t, models.AlertBiasShift, a.Category, "no previous bias to shift from")
	}
}
