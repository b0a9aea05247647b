package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/anvh2/market-intel/internal/models"
	"github.com/google/uuid"
)

// StatesRepo persists MarketStates: indexed columns for querying, the full
// state as one JSON column so analyzer evolution needs no migrations.
type StatesRepo struct {
	db *DB
}

func NewStatesRepo(db *DB) *StatesRepo {
	return &StatesRepo{db: db}
}

type stateRow struct {
	ID            string         `db:"id"`
	Symbol        string         `db:"symbol"`
	Timestamp     int64          `db:"timestamp"`
	TimeBucket    int64          `db:"time_bucket"`
	Bias          string         `db:"bias"`
	Confidence    float64        `db:"confidence"`
	PrimaryRegime string         `db:"primary_regime"`
	Price         float64        `db:"price"`
	FullState     []byte         `db:"full_state_json"`
	OutcomeLabel  sql.NullString `db:"outcome_label"`
	OutcomeJSON   []byte         `db:"outcome_json"`
	CreatedAt     time.Time      `db:"created_at"`
}

// Insert writes a new state row. The unique (symbol, time_bucket) constraint
// is the second line of defence behind the dedup cache: a conflict returns
// the already-stored id instead of failing.
func (r *StatesRepo) Insert(ctx context.Context, state *models.MarketState, timeBucket int64) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	payload, err := json.Marshal(state)
	if err != nil {
		return "", false, &models.StorageError{Op: "marshal state", Err: err}
	}

	var price float64
	if state.Raw != nil {
		if leg := state.Raw.Leg(models.VenueBinance, state.PrimaryTimeframe); leg != nil {
			price = leg.Price
		}
	}

	var bias string
	var confidence float64
	var regime string
	if state.FinalDecision != nil {
		bias = string(state.FinalDecision.Bias)
		confidence = state.FinalDecision.Confidence
		regime = state.FinalDecision.PrimaryRegime
	}

	id := uuid.NewString()

	query := `
		INSERT INTO market_states
			(id, symbol, timestamp, time_bucket, bias, confidence, primary_regime, price, full_state_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, time_bucket) DO NOTHING
		RETURNING id`

	var inserted string
	err = r.db.QueryRowxContext(ctx, query,
		id, state.Symbol, state.Timestamp, timeBucket, bias, confidence, regime, price, payload).
		Scan(&inserted)

	if errors.Is(err, sql.ErrNoRows) {
		// Conflict: another writer owns this bucket. Hand back its id.
		existing, lookupErr := r.idForBucket(ctx, state.Symbol, timeBucket)
		if lookupErr != nil {
			return "", false, lookupErr
		}
		return existing, true, nil
	}
	if err != nil {
		return "", false, &models.StorageError{Op: "insert state", Err: err}
	}

	return inserted, false, nil
}

func (r *StatesRepo) idForBucket(ctx context.Context, symbol string, bucket int64) (string, error) {
	var id string
	err := r.db.QueryRowxContext(ctx,
		`SELECT id FROM market_states WHERE symbol = $1 AND time_bucket = $2`, symbol, bucket).
		Scan(&id)
	if err != nil {
		return "", &models.StorageError{Op: "lookup bucket", Err: err}
	}
	return id, nil
}

// Latest returns the newest state for the symbol, nil when none exists.
func (r *StatesRepo) Latest(ctx context.Context, symbol string) (*models.MarketState, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	var row stateRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, symbol, timestamp, time_bucket, bias, confidence, primary_regime, price,
		       full_state_json, outcome_label, outcome_json, created_at
		FROM market_states
		WHERE symbol = $1
		ORDER BY timestamp DESC
		LIMIT 1`, symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.StorageError{Op: "latest state", Err: err}
	}

	return decodeState(&row)
}

// RecentBuckets returns (time_bucket -> id) for rows newer than since, used
// to rehydrate the dedup cache on startup.
func (r *StatesRepo) RecentBuckets(ctx context.Context, symbol string, since int64) (map[int64]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, time_bucket FROM market_states
		WHERE symbol = $1 AND timestamp >= $2`, symbol, since)
	if err != nil {
		return nil, &models.StorageError{Op: "recent buckets", Err: err}
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var id string
		var bucket int64
		if err := rows.Scan(&id, &bucket); err != nil {
			return nil, &models.StorageError{Op: "scan bucket", Err: err}
		}
		out[bucket] = id
	}
	return out, rows.Err()
}

// StateRef is the slim handle the labeling job works from.
type StateRef struct {
	ID               string
	Symbol           string
	Timestamp        int64
	Bias             models.Bias
	Price            float64
	PrimaryTimeframe string
}

// Unlabeled returns states older than maxAgeMs with no outcome yet, oldest
// first.
func (r *StatesRepo) Unlabeled(ctx context.Context, symbol string, now int64, maxAgeMs int64, limit int) ([]StateRef, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, symbol, timestamp, bias, price,
		       COALESCE(full_state_json->>'primaryTimeframe', '') AS primary_timeframe
		FROM market_states
		WHERE symbol = $1 AND outcome_label IS NULL AND timestamp <= $2
		ORDER BY timestamp ASC
		LIMIT $3`, symbol, now-maxAgeMs, limit)
	if err != nil {
		return nil, &models.StorageError{Op: "unlabeled states", Err: err}
	}
	defer rows.Close()

	out := make([]StateRef, 0)
	for rows.Next() {
		var ref StateRef
		var bias string
		if err := rows.Scan(&ref.ID, &ref.Symbol, &ref.Timestamp, &bias, &ref.Price, &ref.PrimaryTimeframe); err != nil {
			return nil, &models.StorageError{Op: "scan unlabeled", Err: err}
		}
		ref.Bias = models.ParseBias(bias)
		out = append(out, ref)
	}
	return out, rows.Err()
}

// SetOutcome writes the label exactly once; a second write is a no-op.
func (r *StatesRepo) SetOutcome(ctx context.Context, id string, outcome *models.OutcomeLabel) error {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	payload, err := json.Marshal(outcome)
	if err != nil {
		return &models.StorageError{Op: "marshal outcome", Err: err}
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE market_states
		SET outcome_label = $2, outcome_json = $3
		WHERE id = $1 AND outcome_label IS NULL`, id, string(outcome.Label), payload)
	if err != nil {
		return &models.StorageError{Op: "set outcome", Err: err}
	}
	return nil
}

// DayRow is one state's indexed view used by the daily summary job.
type DayRow struct {
	Timestamp  int64   `db:"timestamp"`
	Bias       string  `db:"bias"`
	Confidence float64 `db:"confidence"`
	Regime     string  `db:"primary_regime"`
	Price      float64 `db:"price"`
}

// Day returns the indexed rows of one UTC day, ascending.
func (r *StatesRepo) Day(ctx context.Context, symbol string, dayStart, dayEnd int64) ([]DayRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	var out []DayRow
	err := r.db.SelectContext(ctx, &out, `
		SELECT timestamp, bias, confidence, primary_regime, price
		FROM market_states
		WHERE symbol = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp ASC`, symbol, dayStart, dayEnd)
	if err != nil {
		return nil, &models.StorageError{Op: "day states", Err: err}
	}
	return out, nil
}

// DeleteOlderThan removes detailed rows past retention. Returns rows removed.
func (r *StatesRepo) DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM market_states WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, &models.StorageError{Op: "delete states", Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func decodeState(row *stateRow) (*models.MarketState, error) {
	state := &models.MarketState{}
	if err := json.Unmarshal(row.FullState, state); err != nil {
		return nil, &models.StorageError{Op: "decode state", Err: err}
	}
	if row.OutcomeLabel.Valid && state.OutcomeLabel == nil && len(row.OutcomeJSON) > 0 {
		outcome := &models.OutcomeLabel{}
		if err := json.Unmarshal(row.OutcomeJSON, outcome); err == nil {
			state.OutcomeLabel = outcome
		}
	}
	return state, nil
}
