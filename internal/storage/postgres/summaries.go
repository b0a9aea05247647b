package postgres

import (
	"context"
	"encoding/json"

	"github.com/anvh2/market-intel/internal/models"
)

// DailySummary is one UTC day of states, aggregated.
type DailySummary struct {
	Date               string             `json:"date"`
	Symbol             string             `json:"symbol"`
	AvgConfidence      float64            `json:"avgConfidence"`
	PredominantBias    models.Bias        `json:"predominantBias"`
	BiasPct            map[string]float64 `json:"biasPct"`
	RegimeDistribution map[string]int     `json:"regimeDistribution"`
	TotalAlerts        int64              `json:"totalAlerts"`
	HighPriorityAlerts int64              `json:"highPriorityAlerts"`
	Open               float64            `json:"open"`
	High               float64            `json:"high"`
	Low                float64            `json:"low"`
	Close              float64            `json:"close"`
	StateCount         int                `json:"stateCount"`
}

// SummariesRepo persists daily aggregates; they outlive detailed states.
type SummariesRepo struct {
	db *DB
}

func NewSummariesRepo(db *DB) *SummariesRepo {
	return &SummariesRepo{db: db}
}

// Upsert writes one day; reruns overwrite.
func (r *SummariesRepo) Upsert(ctx context.Context, s *DailySummary) error {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	regimeJSON, err := json.Marshal(s.RegimeDistribution)
	if err != nil {
		return &models.StorageError{Op: "marshal regimes", Err: err}
	}
	biasJSON, err := json.Marshal(s.BiasPct)
	if err != nil {
		return &models.StorageError{Op: "marshal bias pct", Err: err}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO daily_summaries
			(date, symbol, avg_confidence, predominant_bias, bias_pct_json,
			 regime_distribution_json, total_alerts, high_priority_alerts,
			 open, high, low, close, state_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (date) DO UPDATE SET
			avg_confidence = EXCLUDED.avg_confidence,
			predominant_bias = EXCLUDED.predominant_bias,
			bias_pct_json = EXCLUDED.bias_pct_json,
			regime_distribution_json = EXCLUDED.regime_distribution_json,
			total_alerts = EXCLUDED.total_alerts,
			high_priority_alerts = EXCLUDED.high_priority_alerts,
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			state_count = EXCLUDED.state_count`,
		s.Date, s.Symbol, s.AvgConfidence, string(s.PredominantBias), biasJSON,
		regimeJSON, s.TotalAlerts, s.HighPriorityAlerts,
		s.Open, s.High, s.Low, s.Close, s.StateCount)
	if err != nil {
		return &models.StorageError{Op: "upsert summary", Err: err}
	}
	return nil
}

func (r *SummariesRepo) DeleteOlderThan(ctx context.Context, cutoffDate string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM daily_summaries WHERE date < $1`, cutoffDate)
	if err != nil {
		return 0, &models.StorageError{Op: "delete summaries", Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}
