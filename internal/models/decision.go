package models

// Bias is the engine's directional verdict.
type Bias string

const (
	BiasLong    Bias = "LONG"
	BiasShort   Bias = "SHORT"
	BiasWait    Bias = "WAIT"
	BiasUnknown Bias = "UNKNOWN"
)

// ParseBias maps persisted strings onto the closed set. Values written by
// older builds come back as BiasUnknown, never silently coerced.
func ParseBias(s string) Bias {
	switch Bias(s) {
	case BiasLong, BiasShort, BiasWait:
		return Bias(s)
	default:
		return BiasUnknown
	}
}

// Opposite returns the opposing directional bias; WAIT opposes nothing.
func (b Bias) Opposite() Bias {
	switch b {
	case BiasLong:
		return BiasShort
	case BiasShort:
		return BiasLong
	default:
		return BiasWait
	}
}

// Directional reports whether the bias is LONG or SHORT.
func (b Bias) Directional() bool {
	return b == BiasLong || b == BiasShort
}

// TradeStance is the bias translated into an operator instruction.
type TradeStance string

const (
	StanceLookForLongs  TradeStance = "LOOK_FOR_LONGS"
	StanceLookForShorts TradeStance = "LOOK_FOR_SHORTS"
	StanceAvoidTrading  TradeStance = "AVOID_TRADING"
	StanceUnknown       TradeStance = "UNKNOWN"
)

func ParseTradeStance(s string) TradeStance {
	switch TradeStance(s) {
	case StanceLookForLongs, StanceLookForShorts, StanceAvoidTrading:
		return TradeStance(s)
	default:
		return StanceUnknown
	}
}

// RiskMode sizes how aggressively a stance may be acted on.
type RiskMode string

const (
	RiskNormal     RiskMode = "NORMAL"
	RiskDefensive  RiskMode = "DEFENSIVE"
	RiskAggressive RiskMode = "AGGRESSIVE"
	RiskUnknown    RiskMode = "UNKNOWN"
)

func ParseRiskMode(s string) RiskMode {
	switch RiskMode(s) {
	case RiskNormal, RiskDefensive, RiskAggressive:
		return RiskMode(s)
	default:
		return RiskUnknown
	}
}

// ConfidenceType labels which of the two confidence scales a decision
// carries: conviction in a direction, or conviction that no trade exists.
type ConfidenceType string

const (
	ConfidenceDirection ConfidenceType = "directionConfidence"
	ConfidenceNoTrade   ConfidenceType = "noTradeConfidence"
)

// Scores is the weighted tally per side on the 0..10 scale.
type Scores struct {
	Long  float64 `json:"long"`
	Short float64 `json:"short"`
	Wait  float64 `json:"wait"`
}

// SignalScore is one signal's contribution to a decision. Signals reference
// their evidence by name and reason string only; the per-cycle arrays they
// were derived from live on the enclosing TimeframeMetrics.
type SignalScore struct {
	Name         string  `json:"name"`
	Weight       float64 `json:"weight"`
	Bias         Bias    `json:"bias"`
	Confidence   float64 `json:"confidence"`
	Contribution float64 `json:"contribution"`
	Reason       string  `json:"reason,omitempty"`
}

// MacroOverride records that the macro anchor vetoed the aggregated bias.
type MacroOverride struct {
	Triggered bool   `json:"triggered"`
	MacroBias Bias   `json:"macroBias,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Decision is the final verdict of one decision pass, per-timeframe or
// aggregated.
type Decision struct {
	Bias           Bias           `json:"bias"`
	Confidence     float64        `json:"confidence"`
	ConfidenceType ConfidenceType `json:"confidenceType"`
	Scores         Scores         `json:"scores"`
	Signals        []SignalScore  `json:"signals"`
	Reasoning      []string       `json:"reasoning"`
	TradeStance    TradeStance    `json:"tradeStance"`
	PrimaryRegime  string         `json:"primaryRegime"`
	RiskMode       RiskMode       `json:"riskMode"`
	MacroAnchored  bool           `json:"macroAnchored"`
	Warning        string         `json:"warning,omitempty"`
	MacroOverride  *MacroOverride `json:"macroOverride,omitempty"`
}
