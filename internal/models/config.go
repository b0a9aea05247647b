package models

// AnalyzerConfig is the versioned parameter bundle the engine reads on every
// pass. Everyone outside the config service holds an immutable snapshot of
// it for the duration of a cycle.
type AnalyzerConfig struct {
	Meta       ConfigMeta       `json:"meta" mapstructure:"meta"`
	Thresholds ConfigThresholds `json:"thresholds" mapstructure:"thresholds"`
	Weights    ConfigWeights    `json:"weights" mapstructure:"weights"`
	Gates      ConfigGates      `json:"gates" mapstructure:"gates"`
	Penalties  ConfigPenalties  `json:"penalties" mapstructure:"penalties"`
	Bounds     ConfigBounds     `json:"bounds" mapstructure:"bounds"`
}

// ConfigMeta tracks provenance of a config version.
type ConfigMeta struct {
	Version    string `json:"version" mapstructure:"version"`
	ModifiedAt int64  `json:"modifiedAt" mapstructure:"modifiedAt"`
	ModifiedBy string `json:"modifiedBy" mapstructure:"modifiedBy"`
	Notes      string `json:"notes" mapstructure:"notes"`
}

// TimeframeThresholds are the classification cut points of one timeframe.
// Percent fields are plain percent values (0.25 means 0.25%).
type TimeframeThresholds struct {
	PriceNoisePct  float64 `json:"priceNoisePct" mapstructure:"priceNoisePct"`
	PriceStrongPct float64 `json:"priceStrongPct" mapstructure:"priceStrongPct"`
	OIQuietPct     float64 `json:"oiQuietPct" mapstructure:"oiQuietPct"`
	OIAggressivePct float64 `json:"oiAggressivePct" mapstructure:"oiAggressivePct"`
	Funding        float64 `json:"funding" mapstructure:"funding"`
}

// ConfigThresholds maps timeframe -> cut points.
type ConfigThresholds struct {
	Timeframes map[string]TimeframeThresholds `json:"timeframes" mapstructure:"timeframes"`
}

// ConfigWeights carries the signal and timeframe weight tables. Signal
// weights must sum to 1.0 within 0.001.
type ConfigWeights struct {
	Signals    map[string]float64 `json:"signals" mapstructure:"signals"`
	Timeframes map[string]float64 `json:"timeframes" mapstructure:"timeframes"`
}

// ConfigGates are the reliability gates applied before a signal may
// contribute.
type ConfigGates struct {
	// CVDMinVolumeUSD is the per-candle average taker volume floor per
	// timeframe below which CVD is not market-impact reliable.
	CVDMinVolumeUSD map[string]float64 `json:"cvdMinVolumeUsd" mapstructure:"cvdMinVolumeUsd"`
	// CVDMaxZeroRun is the longest tolerated run of zero-volume candles.
	CVDMaxZeroRun int `json:"cvdMaxZeroRun" mapstructure:"cvdMaxZeroRun"`
	// Whale/retail ratio gates, split by scalping (30m, 1h) and macro (4h, 1d)
	// timeframes.
	ScalpingMinOIPct float64 `json:"scalpingMinOiPct" mapstructure:"scalpingMinOiPct"`
	ScalpingMinUSD   float64 `json:"scalpingMinUsd" mapstructure:"scalpingMinUsd"`
	MacroMinOIPct    float64 `json:"macroMinOiPct" mapstructure:"macroMinOiPct"`
	MacroMinUSD      float64 `json:"macroMinUsd" mapstructure:"macroMinUsd"`
	// MaxLagMultiplier scales intervalMs into the staleness cutoff.
	MaxLagMultiplier float64 `json:"maxLagMultiplier" mapstructure:"maxLagMultiplier"`
}

// ConfigPenalties are the decision-shaping constants: buffers, caps and
// stance cut points.
type ConfigPenalties struct {
	BiasBuffer        float64 `json:"biasBuffer" mapstructure:"biasBuffer"`
	WaitBuffer        float64 `json:"waitBuffer" mapstructure:"waitBuffer"`
	BucketBuffer      float64 `json:"bucketBuffer" mapstructure:"bucketBuffer"`
	ConflictBonusCap  float64 `json:"conflictBonusCap" mapstructure:"conflictBonusCap"`
	MacroConfidenceCap float64 `json:"macroConfidenceCap" mapstructure:"macroConfidenceCap"`
	MacroMinConfidence float64 `json:"macroMinConfidence" mapstructure:"macroMinConfidence"`
	SoloMinConfidence  float64 `json:"soloMinConfidence" mapstructure:"soloMinConfidence"`
	AvoidBelow         float64 `json:"avoidBelow" mapstructure:"avoidBelow"`
	DefensiveBelow     float64 `json:"defensiveBelow" mapstructure:"defensiveBelow"`
	AggressiveFrom     float64 `json:"aggressiveFrom" mapstructure:"aggressiveFrom"`
	StanceThreshold    float64 `json:"stanceThreshold" mapstructure:"stanceThreshold"`
}

// FieldBound is the allowed range and per-save step of one config group.
type FieldBound struct {
	Min        float64 `json:"min" mapstructure:"min"`
	Max        float64 `json:"max" mapstructure:"max"`
	MaxStepPct float64 `json:"maxStepPct" mapstructure:"maxStepPct"`
}

// ConfigBounds bound edits per group. A proposed save whose stepwise delta
// exceeds MaxStepPct of the old value is rejected.
type ConfigBounds struct {
	Thresholds FieldBound `json:"thresholds" mapstructure:"thresholds"`
	Weights    FieldBound `json:"weights" mapstructure:"weights"`
	Gates      FieldBound `json:"gates" mapstructure:"gates"`
	Penalties  FieldBound `json:"penalties" mapstructure:"penalties"`
}

// Signal names used as keys of Weights.Signals.
const (
	SignalExchangeDivergence = "exchange_divergence"
	SignalMarketRegime       = "market_regime"
	SignalStructure          = "structure"
	SignalVolumeProfile      = "volume_profile"
	SignalTechnical          = "technical"
	SignalFunding            = "funding"
	SignalCVD                = "cvd"
)

// SignalNames returns every signal key in scoring order.
func SignalNames() []string {
	return []string{
		SignalExchangeDivergence,
		SignalMarketRegime,
		SignalStructure,
		SignalVolumeProfile,
		SignalTechnical,
		SignalFunding,
		SignalCVD,
	}
}

// DefaultAnalyzerConfig is the shipped parameter bundle. Every table of the
// analytical pipeline starts from these values.
func DefaultAnalyzerConfig() *AnalyzerConfig {
	return &AnalyzerConfig{
		Meta: ConfigMeta{
			Version:    "1.0.0",
			ModifiedBy: "system",
			Notes:      "factory defaults",
		},
		Thresholds: ConfigThresholds{
			Timeframes: map[string]TimeframeThresholds{
				"30m": {PriceNoisePct: 0.25, PriceStrongPct: 0.50, OIQuietPct: 0.15, OIAggressivePct: 0.30, Funding: 0.03},
				"1h":  {PriceNoisePct: 0.40, PriceStrongPct: 0.80, OIQuietPct: 0.25, OIAggressivePct: 0.50, Funding: 0.04},
				"4h":  {PriceNoisePct: 0.65, PriceStrongPct: 1.30, OIQuietPct: 0.50, OIAggressivePct: 1.00, Funding: 0.05},
				"1d":  {PriceNoisePct: 1.15, PriceStrongPct: 2.30, OIQuietPct: 1.00, OIAggressivePct: 2.00, Funding: 0.06},
			},
		},
		Weights: ConfigWeights{
			Signals: map[string]float64{
				SignalExchangeDivergence: 0.35,
				SignalMarketRegime:       0.20,
				SignalStructure:          0.15,
				SignalVolumeProfile:      0.10,
				SignalTechnical:          0.10,
				SignalFunding:            0.05,
				SignalCVD:                0.05,
			},
			Timeframes: map[string]float64{
				"30m": 0.25,
				"1h":  0.25,
				"4h":  0.30,
				"1d":  0.20,
			},
		},
		Gates: ConfigGates{
			CVDMinVolumeUSD: map[string]float64{
				"30m": 500_000,
				"1h":  1_000_000,
				"4h":  5_000_000,
				"1d":  50_000_000,
			},
			CVDMaxZeroRun:    3,
			ScalpingMinOIPct: 0.2,
			ScalpingMinUSD:   2_000_000,
			MacroMinOIPct:    0.5,
			MacroMinUSD:      10_000_000,
			MaxLagMultiplier: 2,
		},
		Penalties: ConfigPenalties{
			BiasBuffer:         1.3,
			WaitBuffer:         0.8,
			BucketBuffer:       1.2,
			ConflictBonusCap:   3,
			MacroConfidenceCap: 4,
			MacroMinConfidence: 6,
			SoloMinConfidence:  7,
			AvoidBelow:         5,
			DefensiveBelow:     6,
			AggressiveFrom:     8,
			StanceThreshold:    6,
		},
		Bounds: ConfigBounds{
			Thresholds: FieldBound{Min: 0.01, Max: 10, MaxStepPct: 0.5},
			Weights:    FieldBound{Min: 0, Max: 1, MaxStepPct: 0.5},
			Gates:      FieldBound{Min: 0, Max: 100_000_000, MaxStepPct: 1.0},
			Penalties:  FieldBound{Min: 0, Max: 10, MaxStepPct: 0.5},
		},
	}
}

// ScalpingTimeframe reports whether the timeframe belongs to the scalping
// family for gating purposes.
func ScalpingTimeframe(interval string) bool {
	return interval == "30m" || interval == "1h"
}
