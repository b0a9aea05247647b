package configsvc

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/anvh2/market-intel/internal/models"
	"github.com/mitchellh/mapstructure"
)

const weightSumTolerance = 0.001

// Validate runs the structural pass: required tables present, enum keys
// known, signal weights summing to one.
func Validate(cfg *models.AnalyzerConfig) error {
	violations := []string{}

	if cfg == nil {
		return &models.ValidationError{Violations: []string{"config is nil"}}
	}

	if len(cfg.Thresholds.Timeframes) == 0 {
		violations = append(violations, "thresholds.timeframes is empty")
	}
	for interval, th := range cfg.Thresholds.Timeframes {
		if th.PriceNoisePct >= th.PriceStrongPct {
			violations = append(violations, fmt.Sprintf("thresholds.%s: noise >= strong", interval))
		}
		if th.OIQuietPct >= th.OIAggressivePct {
			violations = append(violations, fmt.Sprintf("thresholds.%s: quiet >= aggressive", interval))
		}
	}

	sum := 0.0
	for _, name := range models.SignalNames() {
		w, ok := cfg.Weights.Signals[name]
		if !ok {
			violations = append(violations, fmt.Sprintf("weights.signals.%s missing", name))
			continue
		}
		if w < 0 {
			violations = append(violations, fmt.Sprintf("weights.signals.%s negative", name))
		}
		sum += w
	}
	for name := range cfg.Weights.Signals {
		if !knownSignal(name) {
			violations = append(violations, fmt.Sprintf("weights.signals.%s unknown", name))
		}
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		violations = append(violations, fmt.Sprintf("weights.signals sum %.4f, want 1.0", sum))
	}

	if len(cfg.Weights.Timeframes) == 0 {
		violations = append(violations, "weights.timeframes is empty")
	}
	if len(cfg.Gates.CVDMinVolumeUSD) == 0 {
		violations = append(violations, "gates.cvdMinVolumeUsd is empty")
	}
	if cfg.Penalties.BiasBuffer <= 1 {
		violations = append(violations, "penalties.biasBuffer must exceed 1")
	}

	if len(violations) > 0 {
		return &models.ValidationError{Violations: violations}
	}
	return nil
}

// ValidateBounds checks every numeric field against its group's range.
func ValidateBounds(cfg *models.AnalyzerConfig) error {
	violations := []string{}

	for group, bound := range groupBounds(cfg) {
		for path, value := range flattenGroup(cfg, group) {
			if value < bound.Min || value > bound.Max {
				violations = append(violations,
					fmt.Sprintf("%s.%s = %g outside [%g, %g]", group, path, value, bound.Min, bound.Max))
			}
		}
	}

	if len(violations) > 0 {
		return &models.ValidationError{Violations: violations}
	}
	return nil
}

// ValidateDelta rejects saves whose stepwise change per field exceeds the
// group's maxStepPct of the old value.
func ValidateDelta(old, proposed *models.AnalyzerConfig) error {
	violations := []string{}

	for group, bound := range groupBounds(old) {
		if bound.MaxStepPct <= 0 {
			continue
		}
		oldFields := flattenGroup(old, group)
		newFields := flattenGroup(proposed, group)
		for path, oldValue := range oldFields {
			newValue, ok := newFields[path]
			if !ok || oldValue == 0 {
				continue
			}
			step := math.Abs(newValue-oldValue) / math.Abs(oldValue)
			if step > bound.MaxStepPct {
				violations = append(violations,
					fmt.Sprintf("%s.%s step %.2f exceeds %.2f", group, path, step, bound.MaxStepPct))
			}
		}
	}

	if len(violations) > 0 {
		return &models.ValidationError{Violations: violations}
	}
	return nil
}

func knownSignal(name string) bool {
	for _, s := range models.SignalNames() {
		if s == name {
			return true
		}
	}
	return false
}

func groupBounds(cfg *models.AnalyzerConfig) map[string]models.FieldBound {
	return map[string]models.FieldBound{
		"thresholds": cfg.Bounds.Thresholds,
		"weights":    cfg.Bounds.Weights,
		"gates":      cfg.Bounds.Gates,
		"penalties":  cfg.Bounds.Penalties,
	}
}

// flattenGroup renders one group to path -> numeric value via a JSON
// roundtrip, so new fields participate in validation without code changes.
func flattenGroup(cfg *models.AnalyzerConfig, group string) map[string]float64 {
	var section interface{}
	switch group {
	case "thresholds":
		section = cfg.Thresholds
	case "weights":
		section = cfg.Weights
	case "gates":
		section = cfg.Gates
	case "penalties":
		section = cfg.Penalties
	default:
		return nil
	}

	raw, err := json.Marshal(section)
	if err != nil {
		return nil
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil
	}

	out := make(map[string]float64)
	walk("", tree, out)
	return out
}

func walk(prefix string, node interface{}, out map[string]float64) {
	switch v := node.(type) {
	case map[string]interface{}:
		for key, child := range v {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			walk(path, child, out)
		}
	case float64:
		out[prefix] = v
	}
}

// deepCopy clones a config through mapstructure so snapshots never alias the
// active value.
func deepCopy(cfg *models.AnalyzerConfig) *models.AnalyzerConfig {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return cfg
	}

	out := &models.AnalyzerConfig{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return cfg
	}
	if err := decoder.Decode(tree); err != nil {
		return cfg
	}
	return out
}
