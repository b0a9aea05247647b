package alerting

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/anvh2/market-intel/internal/config"
	"github.com/anvh2/market-intel/internal/libs/logger"
	"github.com/anvh2/market-intel/internal/libs/priority"
	"github.com/anvh2/market-intel/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// History is the slice of the alert store the engine hydrates cooldowns
// from.
type History interface {
	LastEmitted(ctx context.Context, since int64) (map[models.AlertCategory]int64, error)
}

// Engine diffs successive MarketStates into alerts, at most one per category
// per cooldown window, ordered by priority.
type Engine struct {
	logger      *logger.Logger
	config      config.AlertingConfig
	cooldowns   *cooldowns
	oscillation *oscillation
	now         func() int64
}

func New(logger *logger.Logger, cfg config.AlertingConfig) *Engine {
	if cfg.AlertTTL == 0 {
		cfg.AlertTTL = 4 * time.Hour
	}
	if cfg.CooldownLookback == 0 {
		cfg.CooldownLookback = 4 * time.Hour
	}
	return &Engine{
		logger:      logger,
		config:      cfg,
		cooldowns:   newCooldowns(),
		oscillation: newOscillation(),
	}
}

// WithClock overrides the wall clock; tests pin it.
func (e *Engine) WithClock(now func() int64) *Engine {
	e.now = now
	return e
}

func (e *Engine) clock() int64 {
	if e.now != nil {
		return e.now()
	}
	return time.Now().UnixMilli()
}

// Hydrate seeds cooldown state from stored alert history within the
// lookback window.
func (e *Engine) Hydrate(ctx context.Context, history History) error {
	since := e.clock() - e.config.CooldownLookback.Milliseconds()
	last, err := history.LastEmitted(ctx, since)
	if err != nil {
		return err
	}
	e.cooldowns.hydrate(last)
	e.logger.Info("[Alerting] cooldowns hydrated", zap.Int("categories", len(last)))
	return nil
}

// Compare diffs current against previous and returns the alerts that
// survived cooldowns and suppression, highest priority first. previous may
// be nil on the first cycle; only entry-style triggers can fire then.
func (e *Engine) Compare(previous, current *models.MarketState) []*models.Alert {
	if current == nil || current.FinalDecision == nil {
		return nil
	}

	now := e.clock()
	e.oscillation.observe(current.FinalDecision.Bias)

	queue := priority.NewPriorityQueue()

	// MarketStateID is attached by the store once the state row exists.
	push := func(alert *models.Alert) {
		alert.ID = uuid.NewString()
		alert.Timestamp = now
		alert.ExpiresAt = now + e.config.AlertTTL.Milliseconds()
		queue.Push(&priority.Message{Priority: alert.Priority.Rank(), Data: alert})
	}

	if alert := e.biasShift(previous, current); alert != nil && e.cooldowns.ready(models.AlertBiasShift, now) {
		push(alert)
	}
	if alert := e.regimeChange(previous, current); alert != nil && e.cooldowns.ready(models.AlertRegimeChange, now) {
		push(alert)
	}
	if alert := e.confidenceSpike(previous, current); alert != nil && e.cooldowns.ready(models.AlertConfidenceSpike, now) {
		push(alert)
	}
	if alert := e.trapDetected(previous, current); alert != nil && e.cooldowns.ready(models.AlertTrapDetected, now) {
		push(alert)
	}
	if alert := e.squeezeActive(previous, current); alert != nil && e.cooldowns.ready(models.AlertSqueezeActive, now) {
		push(alert)
	}
	if alert := e.fundingExtreme(previous, current); alert != nil && e.cooldowns.ready(models.AlertFundingExtreme, now) {
		push(alert)
	}

	out := make([]*models.Alert, 0)
	for {
		msg := queue.Pop()
		if msg == nil {
			break
		}
		alert, ok := msg.Data.(*models.Alert)
		if !ok {
			continue
		}
		out = append(out, alert)
	}
	return out
}

func (e *Engine) biasShift(previous, current *models.MarketState) *models.Alert {
	if previous == nil || previous.FinalDecision == nil {
		return nil
	}
	prev := previous.FinalDecision.Bias
	cur := current.FinalDecision.Bias
	if prev == cur {
		return nil
	}
	if e.oscillation.suppressed() {
		e.logger.Debug("[Alerting] bias shift suppressed by oscillation",
			zap.String("from", string(prev)), zap.String("to", string(cur)))
		return nil
	}

	return &models.Alert{
		Category:    models.AlertBiasShift,
		Priority:    models.PriorityHigh,
		Title:       fmt.Sprintf("Bias shifted %s to %s", prev, cur),
		Description: fmt.Sprintf("Aggregated bias moved from %s to %s at confidence %.1f", prev, cur, current.FinalDecision.Confidence),
		Context: models.AlertContext{
			Previous:     string(prev),
			Current:      string(cur),
			TriggerEvent: "bias_changed",
		},
		ActionableInsight: insightFor(cur),
	}
}

func (e *Engine) regimeChange(previous, current *models.MarketState) *models.Alert {
	prevRegime := primaryRegime(previous)
	curRegime := primaryRegime(current)
	if prevRegime == "" || curRegime == "" || prevRegime == curRegime {
		return nil
	}

	return &models.Alert{
		Category:    models.AlertRegimeChange,
		Priority:    models.PriorityHigh,
		Title:       fmt.Sprintf("Regime changed to %s", curRegime),
		Description: fmt.Sprintf("Market regime moved from %s to %s", prevRegime, curRegime),
		Context: models.AlertContext{
			Previous:     prevRegime,
			Current:      curRegime,
			TriggerEvent: "regime_changed",
		},
	}
}

func (e *Engine) confidenceSpike(previous, current *models.MarketState) *models.Alert {
	if previous == nil || previous.FinalDecision == nil {
		return nil
	}
	prev := previous.FinalDecision.Confidence
	cur := current.FinalDecision.Confidence
	if cur-prev < 3 || cur < 7 {
		return nil
	}

	prio := models.PriorityMedium
	if cur >= 8 {
		prio = models.PriorityHigh
	}

	return &models.Alert{
		Category:    models.AlertConfidenceSpike,
		Priority:    prio,
		Title:       fmt.Sprintf("Confidence jumped to %.1f", cur),
		Description: fmt.Sprintf("Confidence rose %.1f points to %.1f on bias %s", cur-prev, cur, current.FinalDecision.Bias),
		Context: models.AlertContext{
			Previous:     fmt.Sprintf("%.1f", prev),
			Current:      fmt.Sprintf("%.1f", cur),
			TriggerEvent: "confidence_spike",
		},
	}
}

func (e *Engine) trapDetected(previous, current *models.MarketState) *models.Alert {
	prevSub := primarySubtype(previous)
	curSub := primarySubtype(current)
	isTrap := curSub == models.SubtypeLongTrap || curSub == models.SubtypeShortTrap
	if !isTrap || prevSub == curSub {
		return nil
	}

	return &models.Alert{
		Category:    models.AlertTrapDetected,
		Priority:    models.PriorityHigh,
		Title:       fmt.Sprintf("Trap detected: %s", curSub),
		Description: fmt.Sprintf("Regime entered %s; crowded side is paying to stay wrong", curSub),
		Context: models.AlertContext{
			Previous:     string(prevSub),
			Current:      string(curSub),
			TriggerEvent: "trap_entered",
		},
		ActionableInsight: "Stand aside or fade the crowded side with tight invalidation",
	}
}

func (e *Engine) squeezeActive(previous, current *models.MarketState) *models.Alert {
	prevSub := primarySubtype(previous)
	curSub := primarySubtype(current)
	isSqueeze := curSub == models.SubtypeLongSqueeze || curSub == models.SubtypeShortSqueeze
	if !isSqueeze || prevSub == curSub {
		return nil
	}

	return &models.Alert{
		Category:    models.AlertSqueezeActive,
		Priority:    models.PriorityMedium,
		Title:       fmt.Sprintf("Squeeze active: %s", curSub),
		Description: fmt.Sprintf("Open interest unwinding through %s", curSub),
		Context: models.AlertContext{
			Previous:     string(prevSub),
			Current:      string(curSub),
			TriggerEvent: "squeeze_entered",
		},
	}
}

func (e *Engine) fundingExtreme(previous, current *models.MarketState) *models.Alert {
	prevZ := fundingZ(previous)
	curZ := fundingZ(current)
	if math.Abs(curZ) < 2 || math.Abs(prevZ) >= 2 {
		return nil
	}

	return &models.Alert{
		Category:    models.AlertFundingExtreme,
		Priority:    models.PriorityMedium,
		Title:       fmt.Sprintf("Funding extreme, z=%.1f", curZ),
		Description: "Funding z-score crossed two sigmas; crowding risk elevated",
		Context: models.AlertContext{
			Previous:     fmt.Sprintf("%.2f", prevZ),
			Current:      fmt.Sprintf("%.2f", curZ),
			TriggerEvent: "funding_extreme",
		},
	}
}

func primaryRegime(state *models.MarketState) string {
	if state == nil {
		return ""
	}
	if metrics := state.Primary(); metrics != nil && metrics.MarketRegime != nil {
		return string(metrics.MarketRegime.Regime)
	}
	if state.FinalDecision != nil {
		return state.FinalDecision.PrimaryRegime
	}
	return ""
}

func primarySubtype(state *models.MarketState) models.RegimeSubtype {
	if state == nil {
		return models.SubtypeUnknown
	}
	if metrics := state.Primary(); metrics != nil && metrics.MarketRegime != nil {
		return metrics.MarketRegime.Subtype
	}
	return models.SubtypeUnknown
}

func fundingZ(state *models.MarketState) float64 {
	if state == nil {
		return 0
	}
	if metrics := state.Primary(); metrics != nil && metrics.FundingAdvanced != nil {
		return metrics.FundingAdvanced.ZScore
	}
	return 0
}

func insightFor(bias models.Bias) string {
	switch bias {
	case models.BiasLong:
		return "Look for long setups on pullbacks into support"
	case models.BiasShort:
		return "Look for short setups on retests of resistance"
	default:
		return "No edge; protect capital until the picture clears"
	}
}
