package models

import (
	"encoding/json"
)

// BucketKind names a timeframe bucket.
type BucketKind string

const (
	BucketMacro    BucketKind = "MACRO"    // 1d, 4h
	BucketMicro    BucketKind = "MICRO"    // 4h, 1h
	BucketScalping BucketKind = "SCALPING" // 1h, 30m
)

// BucketMembers returns the member timeframes of a bucket, highest first.
func BucketMembers(kind BucketKind) []string {
	switch kind {
	case BucketMacro:
		return []string{"1d", "4h"}
	case BucketMicro:
		return []string{"4h", "1h"}
	case BucketScalping:
		return []string{"1h", "30m"}
	default:
		return nil
	}
}

// BucketBias is the three-way verdict of a bucket.
type BucketBias string

const (
	BucketBullish BucketBias = "BULLISH"
	BucketBearish BucketBias = "BEARISH"
	BucketNeutral BucketBias = "NEUTRAL"
)

// TimeframeBucket averages its member timeframes into one directional read.
type TimeframeBucket struct {
	Kind        BucketKind  `json:"kind"`
	Members     []string    `json:"members"`
	Bias        BucketBias  `json:"bias"`
	Confidence  float64     `json:"confidence"`
	Scores      Scores      `json:"scores"`
	TradeStance TradeStance `json:"tradeStance"`
	Summary     string      `json:"summary,omitempty"`
	Bullets     []string    `json:"bullets,omitempty"`
}

// OutcomeLabelKind is the post-hoc verdict on a persisted state.
type OutcomeLabelKind string

const (
	OutcomeContinuation OutcomeLabelKind = "CONTINUATION"
	OutcomeReversal     OutcomeLabelKind = "REVERSAL"
	OutcomeNoise        OutcomeLabelKind = "NOISE"
	OutcomePending      OutcomeLabelKind = "PENDING"
	OutcomeUnknown      OutcomeLabelKind = "UNKNOWN"
)

func ParseOutcomeLabel(s string) OutcomeLabelKind {
	switch OutcomeLabelKind(s) {
	case OutcomeContinuation, OutcomeReversal, OutcomeNoise, OutcomePending:
		return OutcomeLabelKind(s)
	default:
		return OutcomeUnknown
	}
}

// OutcomeLabel is written exactly once per state after its horizon expires.
type OutcomeLabel struct {
	Label        OutcomeLabelKind `json:"label"`
	Reason       string           `json:"reason"`
	Horizon      string           `json:"horizon"`
	FinalPrice   float64          `json:"finalPrice"`
	FinalMovePct float64          `json:"finalMovePct"`
	MFE          float64          `json:"mfe"`
	MAE          float64          `json:"mae"`
	LabeledAt    int64            `json:"labeledAt"`
}

// MarketState is the stable outbound contract of the pipeline: one full
// analysis pass over every timeframe, aggregated.
type MarketState struct {
	Timestamp        int64                           `json:"timestamp"`
	Symbol           string                          `json:"symbol"`
	PrimaryTimeframe string                          `json:"primaryTimeframe"`
	FinalDecision    *Decision                       `json:"finalDecision"`
	Timeframes       map[string]*TimeframeMetrics    `json:"timeframes"`
	TimeframeBuckets map[BucketKind]*TimeframeBucket `json:"timeframeBuckets"`
	DataQuality      DataQuality                     `json:"dataQuality"`
	Warnings         []string                        `json:"warnings,omitempty"`
	Raw              *MarketSnapshot                 `json:"raw,omitempty"`
	OutcomeLabel     *OutcomeLabel                   `json:"outcomeLabel,omitempty"`
}

// Primary returns the metrics block of the primary timeframe, nil when that
// timeframe was dropped.
func (s *MarketState) Primary() *TimeframeMetrics {
	return s.Timeframes[s.PrimaryTimeframe]
}

// TimeBucket floors a timestamp to the scan-cycle boundary used for state
// deduplication.
func TimeBucket(ts, scanCycleMs int64) int64 {
	if scanCycleMs <= 0 {
		return ts
	}
	return (ts / scanCycleMs) * scanCycleMs
}

// CanonicalJSON renders the state deterministically (encoding/json sorts map
// keys), so identical states are byte-identical.
func (s *MarketState) CanonicalJSON() ([]byte, error) {
	return json.Marshal(s)
}
