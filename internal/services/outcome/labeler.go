package outcome

import (
	"context"
	"time"

	"github.com/anvh2/market-intel/internal/libs/logger"
	"github.com/anvh2/market-intel/internal/libs/worker"
	"github.com/anvh2/market-intel/internal/metrics"
	"github.com/anvh2/market-intel/internal/models"
	"github.com/anvh2/market-intel/internal/storage/postgres"
	"go.uber.org/zap"
)

// Horizon maps a signal's primary timeframe onto the evaluation window and
// the move size that counts as significant.
type Horizon struct {
	Name         string
	Duration     time.Duration
	ThresholdPct float64
}

var horizons = map[string]Horizon{
	"30m": {Name: "1h", Duration: time.Hour, ThresholdPct: 0.5},
	"1h":  {Name: "1h", Duration: time.Hour, ThresholdPct: 0.5},
	"4h":  {Name: "4h", Duration: 4 * time.Hour, ThresholdPct: 1.0},
	"1d":  {Name: "24h", Duration: 24 * time.Hour, ThresholdPct: 2.0},
}

// maxHorizon gates the sweep: states younger than this stay pending.
const maxHorizon = 24 * time.Hour

// HorizonFor returns the horizon of a primary timeframe, defaulting to the
// 4h window.
func HorizonFor(primaryTimeframe string) Horizon {
	if h, ok := horizons[primaryTimeframe]; ok {
		return h
	}
	return horizons["4h"]
}

// States is the slice of the state store the labeler needs.
type States interface {
	Unlabeled(ctx context.Context, symbol string, now int64, maxAgeMs int64, limit int) ([]postgres.StateRef, error)
	SetOutcome(ctx context.Context, id string, outcome *models.OutcomeLabel) error
}

// Candles supplies the subsequent price series a label is judged against.
type Candles interface {
	Range(ctx context.Context, venue models.Venue, symbol, interval string, start, end int64) ([]models.Candle, error)
}

// Labeler grades persisted states after their horizon expires. Labels are
// deterministic and written exactly once.
type Labeler struct {
	logger  *logger.Logger
	states  States
	candles Candles
	symbol  string
	pool    *worker.Worker
	now     func() int64
}

func New(logger *logger.Logger, states States, candles Candles, symbol string) (*Labeler, error) {
	l := &Labeler{
		logger:  logger,
		states:  states,
		candles: candles,
		symbol:  symbol,
	}

	pool, err := worker.New(logger, &worker.PoolConfig{NumProcess: 2})
	if err != nil {
		return nil, err
	}
	l.pool = pool.WithProcess(l.process)

	return l, nil
}

// WithClock overrides the wall clock; tests pin it.
func (l *Labeler) WithClock(now func() int64) *Labeler {
	l.now = now
	return l
}

func (l *Labeler) clock() int64 {
	if l.now != nil {
		return l.now()
	}
	return time.Now().UnixMilli()
}

func (l *Labeler) Start() error { return l.pool.Start() }
func (l *Labeler) Stop()        { l.pool.Stop() }

// Sweep queues every labelable state onto the worker pool.
func (l *Labeler) Sweep(ctx context.Context, batch int) error {
	if batch <= 0 {
		batch = 50
	}

	refs, err := l.states.Unlabeled(ctx, l.symbol, l.clock(), maxHorizon.Milliseconds(), batch)
	if err != nil {
		return err
	}

	for i := range refs {
		l.pool.SendJob(ctx, refs[i])
	}

	if len(refs) > 0 {
		l.logger.Info("[Outcome] sweep queued", zap.Int("states", len(refs)))
	}
	return nil
}

func (l *Labeler) process(ctx context.Context, message interface{}) error {
	ref, ok := message.(postgres.StateRef)
	if !ok {
		return nil
	}

	horizon := HorizonFor(ref.PrimaryTimeframe)
	end := ref.Timestamp + horizon.Duration.Milliseconds()

	series, err := l.candles.Range(ctx, models.VenueBinance, ref.Symbol, "1h", ref.Timestamp, end+models.IntervalMs("1h"))
	if err != nil {
		return err
	}
	if len(series) == 0 || ref.Price == 0 {
		// Nothing to judge against yet; leave the state pending for the next
		// sweep.
		l.logger.Warn("[Outcome] no price series for state", zap.String("id", ref.ID))
		return nil
	}

	label := Evaluate(ref.Bias, ref.Price, series, horizon)
	label.LabeledAt = l.clock()

	if err := l.states.SetOutcome(ctx, ref.ID, label); err != nil {
		l.logger.Error("[Outcome] failed to write label", zap.String("id", ref.ID), zap.Error(err))
		return err
	}

	metrics.StatesLabeled.WithLabelValues(string(label.Label)).Inc()
	l.logger.Info("[Outcome] labeled",
		zap.String("id", ref.ID),
		zap.String("label", string(label.Label)),
		zap.Float64("move", label.FinalMovePct))
	return nil
}

// Evaluate grades one signal against the subsequent series. Directional
// states are judged by the signed move at the horizon; WAIT is judged by
// whether a trendy move it missed actually happened.
func Evaluate(bias models.Bias, signalPrice float64, series []models.Candle, horizon Horizon) *models.OutcomeLabel {
	final := series[len(series)-1].Close
	finalMovePct := (final - signalPrice) / signalPrice * 100

	high, low := signalPrice, signalPrice
	for _, c := range series {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}

	// Excursions signed by the trade direction.
	var mfe, mae float64
	switch bias {
	case models.BiasLong:
		mfe = (high - signalPrice) / signalPrice * 100
		mae = (low - signalPrice) / signalPrice * 100
	case models.BiasShort:
		mfe = (signalPrice - low) / signalPrice * 100
		mae = (signalPrice - high) / signalPrice * 100
	default:
		mfe = (high - signalPrice) / signalPrice * 100
		mae = (low - signalPrice) / signalPrice * 100
	}

	label := &models.OutcomeLabel{
		Horizon:      horizon.Name,
		FinalPrice:   final,
		FinalMovePct: finalMovePct,
		MFE:          mfe,
		MAE:          mae,
	}

	direction := 0.0
	switch bias {
	case models.BiasLong:
		direction = 1
	case models.BiasShort:
		direction = -1
	}

	if direction != 0 {
		directionalMove := finalMovePct * direction
		switch {
		case directionalMove >= horizon.ThresholdPct:
			label.Label = models.OutcomeContinuation
			label.Reason = "price continued with the signal"
		case directionalMove <= -horizon.ThresholdPct:
			label.Label = models.OutcomeReversal
			label.Reason = "price reversed against the signal"
		default:
			label.Label = models.OutcomeNoise
			label.Reason = "move stayed inside the significance band"
		}
		return label
	}

	// WAIT: a large, one-way move means the stand-aside call missed a trade.
	rangePct := (high - low) / signalPrice * 100
	directionality := 0.0
	if rangePct > 0 {
		directionality = abs(finalMovePct) / rangePct
	}
	if abs(finalMovePct) >= 1.5*horizon.ThresholdPct && directionality > 0.6 {
		label.Label = models.OutcomeContinuation
		label.Reason = "trend emerged while standing aside"
	} else {
		label.Label = models.OutcomeNoise
		label.Reason = "standing aside was correct"
	}
	return label
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
