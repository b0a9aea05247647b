package engine

import (
	"testing"

	"github.com/anvh2/market-intel/internal/models"
	"github.com/stretchr/testify/assert"
)

func thresholds30m() models.TimeframeThresholds {
	return models.DefaultAnalyzerConfig().Thresholds.Timeframes["30m"]
}

func TestClassifyPriceMove(t *testing.T) {
	th := thresholds30m()

	tests := []struct {
		name      string
		changePct float64
		direction models.Direction
		strength  models.MoveStrength
	}{
		{"inside noise band", 0.1, models.DirectionFlat, models.StrengthNoise},
		{"negative inside noise band", -0.2, models.DirectionFlat, models.StrengthNoise},
		{"normal up", 0.3, models.DirectionUp, models.StrengthNormal},
		{"normal down", -0.3, models.DirectionDown, models.StrengthNormal},
		{"strong up at the boundary", 0.5, models.DirectionUp, models.StrengthStrong},
		{"strong down", -1.2, models.DirectionDown, models.StrengthStrong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			move := ClassifyPriceMove(tt.changePct, th)
			assert.Equal(t, tt.direction, move.Direction)
			assert.Equal(t, tt.strength, move.Strength)
		})
	}
}

// Scaling a change up never weakens its classification.
func TestPriceStrengthMonotonic(t *testing.T) {
	th := thresholds30m()

	rank := map[models.MoveStrength]int{
		models.StrengthNoise:  0,
		models.StrengthNormal: 1,
		models.StrengthStrong: 2,
	}

	prev := -1
	for _, change := range []float64{0.01, 0.1, 0.24, 0.25, 0.4, 0.5, 1, 5} {
		move := ClassifyPriceMove(change, th)
		if rank[move.Strength] < prev {
			t.Fatalf("strength decreased at %+.2f%%", change)
		}
		prev = rank[move.Strength]
	}
}

func TestClassifyOIMoveMonotonic(t *testing.T) {
	th := thresholds30m()

	rank := map[models.OIStrength]int{
		models.OIQuiet:      0,
		models.OINormal:     1,
		models.OIAggressive: 2,
	}

	prev := -1
	for _, change := range []float64{0.01, 0.14, 0.15, 0.2, 0.3, 1} {
		move := ClassifyOIMove(change, th)
		if rank[move.Strength] < prev {
			t.Fatalf("oi strength decreased at %+.2f%%", change)
		}
		prev = rank[move.Strength]
	}
}

func TestClassifyFundingLevel(t *testing.T) {
	tests := []struct {
		name  string
		rate  float64
		z     float64
		level models.FundingLevelKind
		bias  models.Bias
	}{
		{"critical high", 0.08, 2.5, models.FundingCriticalHigh, models.BiasShort},
		{"critical low", -0.05, -2.1, models.FundingCriticalLow, models.BiasLong},
		{"high", 0.04, 1.5, models.FundingHigh, models.BiasShort},
		{"low", -0.02, -1.2, models.FundingLow, models.BiasLong},
		{"normal", 0.01, 0.3, models.FundingNormal, models.BiasWait},
		{"z dominates a small absolute rate", 0.005, 2.2, models.FundingCriticalHigh, models.BiasShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level := ClassifyFundingLevel(tt.rate, tt.z)
			assert.Equal(t, tt.level, level.Level)
			assert.Equal(t, tt.bias, level.Bias)
		})
	}
}
