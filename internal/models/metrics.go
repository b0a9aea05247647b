package models

// Direction of a classified move.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
	DirectionFlat Direction = "FLAT"
)

// MoveStrength grades a price move against the timeframe's thresholds.
type MoveStrength string

const (
	StrengthNoise  MoveStrength = "noise"
	StrengthNormal MoveStrength = "normal"
	StrengthStrong MoveStrength = "strong"
)

// OIStrength grades an open-interest move.
type OIStrength string

const (
	OIQuiet      OIStrength = "quiet"
	OINormal     OIStrength = "normal"
	OIAggressive OIStrength = "aggressive"
)

// PriceMove is a classified price change.
type PriceMove struct {
	Direction Direction    `json:"direction"`
	Strength  MoveStrength `json:"strength"`
	ChangePct float64      `json:"changePct"`
}

// OIMove is a classified open-interest change.
type OIMove struct {
	Direction Direction  `json:"direction"`
	Strength  OIStrength `json:"strength"`
	ChangePct float64    `json:"changePct"`
}

// FundingLevelKind buckets the funding rate by z-score first, absolute level
// second.
type FundingLevelKind string

const (
	FundingCriticalLow  FundingLevelKind = "critical_low"
	FundingLow          FundingLevelKind = "low"
	FundingNormal       FundingLevelKind = "normal"
	FundingHigh         FundingLevelKind = "high"
	FundingCriticalHigh FundingLevelKind = "critical_high"
)

// FundingLevel is the classified funding state of one leg.
type FundingLevel struct {
	Level  FundingLevelKind `json:"level"`
	Bias   Bias             `json:"bias"`
	Rate   float64          `json:"rate"`
	ZScore float64          `json:"zScore"`
}

// TrendDirection from EMA cross plus slope.
type TrendDirection string

const (
	TrendUp       TrendDirection = "up"
	TrendDown     TrendDirection = "down"
	TrendSideways TrendDirection = "sideways"
)

// Technical carries the indicator block of one timeframe.
type Technical struct {
	EMA20          float64        `json:"ema20"`
	EMA50          float64        `json:"ema50"`
	SMA20          float64        `json:"sma20"`
	Slope20        float64        `json:"slope20"`
	Trend          TrendDirection `json:"trend"`
	RealizedVolPct float64        `json:"realizedVolPct"`
	MaxDrawdownPct float64        `json:"maxDrawdownPct"`
	ZScore         float64        `json:"zScore"`
}

// VolumeProfile is the binned volume distribution of the lookback window.
type VolumeProfile struct {
	POC         float64 `json:"poc"`
	VAH         float64 `json:"vah"`
	VAL         float64 `json:"val"`
	BinCount    int     `json:"binCount"`
	TotalVolume float64 `json:"totalVolume"`
}

// BOSKind marks a break of structure.
type BOSKind string

const (
	BOSNone    BOSKind = "none"
	BOSBullish BOSKind = "bullish_bos"
	BOSBearish BOSKind = "bearish_bos"
)

// SwingPoint is a fractal swing extremum.
type SwingPoint struct {
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
}

// Structure is the swing map of one timeframe.
type Structure struct {
	SwingHighs []SwingPoint `json:"swingHighs"`
	SwingLows  []SwingPoint `json:"swingLows"`
	Support    float64      `json:"support"`
	Resistance float64      `json:"resistance"`
	BOS        BOSKind      `json:"bos"`
}

// ScenarioKind names an exchange-divergence pattern, highest conviction
// first in evaluation order.
type ScenarioKind string

const (
	ScenarioWhaleDistribution ScenarioKind = "whale_distribution"
	ScenarioWhaleAccumulation ScenarioKind = "whale_accumulation"
	ScenarioRetailFomoRally   ScenarioKind = "retail_fomo_rally"
	ScenarioShortSqueezeSetup ScenarioKind = "short_squeeze_setup"
	ScenarioWhaleHedging      ScenarioKind = "whale_hedging"
	ScenarioSyncBullish       ScenarioKind = "synchronized_bullish"
	ScenarioSyncBearish       ScenarioKind = "synchronized_bearish"
	ScenarioBybitLeading      ScenarioKind = "bybit_leading"
	ScenarioBinanceNoise      ScenarioKind = "binance_noise"
	ScenarioUnclear           ScenarioKind = "unclear"
	ScenarioUnknown           ScenarioKind = "unknown"
)

func ParseScenario(s string) ScenarioKind {
	switch ScenarioKind(s) {
	case ScenarioWhaleDistribution, ScenarioWhaleAccumulation, ScenarioRetailFomoRally,
		ScenarioShortSqueezeSetup, ScenarioWhaleHedging, ScenarioSyncBullish,
		ScenarioSyncBearish, ScenarioBybitLeading, ScenarioBinanceNoise, ScenarioUnclear:
		return ScenarioKind(s)
	default:
		return ScenarioUnknown
	}
}

// Synchronized reports whether the scenario is a both-venues-confirm pattern.
func (s ScenarioKind) Synchronized() bool {
	return s == ScenarioSyncBullish || s == ScenarioSyncBearish
}

// DivergenceBias extends Bias with the strong variants the scenario table
// produces.
type DivergenceBias string

const (
	DivergenceStrongLong  DivergenceBias = "STRONG_LONG"
	DivergenceLong        DivergenceBias = "LONG"
	DivergenceStrongShort DivergenceBias = "STRONG_SHORT"
	DivergenceShort       DivergenceBias = "SHORT"
	DivergenceWait        DivergenceBias = "WAIT"
)

// ToBias collapses the strong variants onto the closed Bias set.
func (d DivergenceBias) ToBias() Bias {
	switch d {
	case DivergenceStrongLong, DivergenceLong:
		return BiasLong
	case DivergenceStrongShort, DivergenceShort:
		return BiasShort
	default:
		return BiasWait
	}
}

// VolumeDominance names which crowd the taker volume split points at.
type VolumeDominance string

const (
	DominanceWhale    VolumeDominance = "whale"
	DominanceRetail   VolumeDominance = "retail"
	DominanceBalanced VolumeDominance = "balanced"
)

// ExchangeDivergence is the classified cross-venue pattern of one timeframe.
type ExchangeDivergence struct {
	Scenario         ScenarioKind    `json:"scenario"`
	Bias             DivergenceBias  `json:"bias"`
	Confidence       float64         `json:"confidence"`
	Warnings         []string        `json:"warnings,omitempty"`
	WhaleRetailRatio float64         `json:"whaleRetailRatio"`
	RatioReliable    bool            `json:"ratioReliable"`
	Dominance        VolumeDominance `json:"dominance"`
	BinanceVolumePct float64         `json:"binanceVolumePct"`
}

// RegimeKind is the macro family of a market regime.
type RegimeKind string

const (
	RegimeDistribution RegimeKind = "distribution"
	RegimeAccumulation RegimeKind = "accumulation"
	RegimeTrap         RegimeKind = "trap"
	RegimeTrending     RegimeKind = "trending"
	RegimeCovering     RegimeKind = "covering"
	RegimeRange        RegimeKind = "range"
	RegimeUnclear      RegimeKind = "unclear"
	RegimeUnknown      RegimeKind = "unknown"
)

func ParseRegime(s string) RegimeKind {
	switch RegimeKind(s) {
	case RegimeDistribution, RegimeAccumulation, RegimeTrap, RegimeTrending,
		RegimeCovering, RegimeRange, RegimeUnclear:
		return RegimeKind(s)
	default:
		return RegimeUnknown
	}
}

// RegimeSubtype is the specific state within a regime family.
type RegimeSubtype string

const (
	SubtypeWhaleExit    RegimeSubtype = "whale_exit"
	SubtypeWhaleEntry   RegimeSubtype = "whale_entry"
	SubtypeLongTrap     RegimeSubtype = "long_trap"
	SubtypeShortTrap    RegimeSubtype = "short_trap"
	SubtypeHealthyBull  RegimeSubtype = "healthy_bull"
	SubtypeHealthyBear  RegimeSubtype = "healthy_bear"
	SubtypeLongSqueeze  RegimeSubtype = "long_squeeze"
	SubtypeShortSqueeze RegimeSubtype = "short_squeeze"
	SubtypeChop         RegimeSubtype = "chop"
	SubtypeMixedSignals RegimeSubtype = "mixed_signals"
	SubtypeUnknown      RegimeSubtype = "unknown"
)

func ParseRegimeSubtype(s string) RegimeSubtype {
	switch RegimeSubtype(s) {
	case SubtypeWhaleExit, SubtypeWhaleEntry, SubtypeLongTrap, SubtypeShortTrap,
		SubtypeHealthyBull, SubtypeHealthyBear, SubtypeLongSqueeze,
		SubtypeShortSqueeze, SubtypeChop, SubtypeMixedSignals:
		return RegimeSubtype(s)
	default:
		return SubtypeUnknown
	}
}

// MarketRegime is the detected regime of one timeframe.
type MarketRegime struct {
	Regime        RegimeKind    `json:"regime"`
	Subtype       RegimeSubtype `json:"subtype"`
	Confidence    float64       `json:"confidence"`
	Bias          Bias          `json:"bias"`
	ConditionsMet int           `json:"conditionsMet"`
	ConditionsAll int           `json:"conditionsAll"`
	Description   string        `json:"description,omitempty"`
}

// FundingAdvanced is the funding feature block, including the pain index
// (|funding| x OI scaled to USD per 8h) as a squeeze-pressure proxy.
type FundingAdvanced struct {
	Binance      *FundingLevel `json:"binance,omitempty"`
	Bybit        *FundingLevel `json:"bybit,omitempty"`
	AvgRatePct   float64       `json:"avgRatePct"`
	ZScore       float64       `json:"zScore"`
	PainIndexUSD float64       `json:"painIndexUsd"`
}

// OIAdvanced is the open-interest feature block across venues.
type OIAdvanced struct {
	Binance     *OIMove `json:"binance,omitempty"`
	Bybit       *OIMove `json:"bybit,omitempty"`
	SpreadPct   float64 `json:"spreadPct"`
	BybitOIUSD  float64 `json:"bybitOiUsd"`
	TotalOIUSD  float64 `json:"totalOiUsd"`
	BothRising  bool    `json:"bothRising"`
	BothFalling bool    `json:"bothFalling"`
}

// TimeframeMetrics is everything the engine derived for one timeframe. It is
// the per-cycle arena: signals reference these blocks by name, there is no
// hidden shared state behind them.
type TimeframeMetrics struct {
	Interval           string              `json:"interval"`
	ExchangeDivergence *ExchangeDivergence `json:"exchangeDivergence"`
	MarketRegime       *MarketRegime       `json:"marketRegime"`
	Technical          *Technical          `json:"technical"`
	FundingAdvanced    *FundingAdvanced    `json:"fundingAdvanced"`
	OIAdvanced         *OIAdvanced         `json:"oiAdvanced"`
	VolumeProfile      *VolumeProfile      `json:"volumeProfile"`
	Structure          *Structure          `json:"structure"`
	FinalDecision      *Decision           `json:"finalDecision"`
}
