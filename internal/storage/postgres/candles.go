package postgres

import (
	"context"

	"github.com/anvh2/market-intel/internal/models"
)

// CandlesRepo is the durable historical-candle store. Rows are append-only:
// writes upsert on the (venue, symbol, timeframe, timestamp) key and never
// delete recorded fields.
type CandlesRepo struct {
	db *DB
}

func NewCandlesRepo(db *DB) *CandlesRepo {
	return &CandlesRepo{db: db}
}

// UpsertBatch writes candles in one transaction. COALESCE keeps previously
// recorded optional fields when a later fetch lacks them.
func (r *CandlesRepo) UpsertBatch(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return &models.StorageError{Op: "begin candles tx", Err: err}
	}
	defer tx.Rollback()

	query := `
		INSERT INTO historical_candles
			(venue, symbol, timeframe, timestamp, open, high, low, close, volume,
			 oi, funding_rate, buy_volume, sell_volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (venue, symbol, timeframe, timestamp) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			oi = COALESCE(EXCLUDED.oi, historical_candles.oi),
			funding_rate = COALESCE(EXCLUDED.funding_rate, historical_candles.funding_rate),
			buy_volume = COALESCE(EXCLUDED.buy_volume, historical_candles.buy_volume),
			sell_volume = COALESCE(EXCLUDED.sell_volume, historical_candles.sell_volume)`

	for _, c := range candles {
		if _, err := tx.ExecContext(ctx, query,
			string(c.Venue), c.Symbol, c.Interval, c.Timestamp,
			c.Open, c.High, c.Low, c.Close, c.Volume,
			c.OI, c.FundingRate, c.BuyVolume, c.SellVolume); err != nil {
			return &models.StorageError{Op: "upsert candle", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &models.StorageError{Op: "commit candles", Err: err}
	}
	return nil
}

type candleRow struct {
	Venue       string   `db:"venue"`
	Symbol      string   `db:"symbol"`
	Timeframe   string   `db:"timeframe"`
	Timestamp   int64    `db:"timestamp"`
	Open        float64  `db:"open"`
	High        float64  `db:"high"`
	Low         float64  `db:"low"`
	Close       float64  `db:"close"`
	Volume      float64  `db:"volume"`
	OI          *float64 `db:"oi"`
	FundingRate *float64 `db:"funding_rate"`
	BuyVolume   *float64 `db:"buy_volume"`
	SellVolume  *float64 `db:"sell_volume"`
}

// Range returns candles with start <= timestamp < end, ascending.
func (r *CandlesRepo) Range(ctx context.Context, venue models.Venue, symbol, interval string, start, end int64) ([]models.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	var rows []candleRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT venue, symbol, timeframe, timestamp, open, high, low, close, volume,
		       oi, funding_rate, buy_volume, sell_volume
		FROM historical_candles
		WHERE venue = $1 AND symbol = $2 AND timeframe = $3
		  AND timestamp >= $4 AND timestamp < $5
		ORDER BY timestamp ASC`, string(venue), symbol, interval, start, end)
	if err != nil {
		return nil, &models.StorageError{Op: "range candles", Err: err}
	}

	out := make([]models.Candle, len(rows))
	for i, row := range rows {
		out[i] = models.Candle{
			Venue:       models.Venue(row.Venue),
			Symbol:      row.Symbol,
			Interval:    row.Timeframe,
			Timestamp:   row.Timestamp,
			Open:        row.Open,
			High:        row.High,
			Low:         row.Low,
			Close:       row.Close,
			Volume:      row.Volume,
			OI:          row.OI,
			FundingRate: row.FundingRate,
			BuyVolume:   row.BuyVolume,
			SellVolume:  row.SellVolume,
		}
	}
	return out, nil
}

// Count reports how many rows the store holds for the range.
func (r *CandlesRepo) Count(ctx context.Context, venue models.Venue, symbol, interval string, start, end int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	var n int
	err := r.db.QueryRowxContext(ctx, `
		SELECT COUNT(*) FROM historical_candles
		WHERE venue = $1 AND symbol = $2 AND timeframe = $3
		  AND timestamp >= $4 AND timestamp < $5`,
		string(venue), symbol, interval, start, end).Scan(&n)
	if err != nil {
		return 0, &models.StorageError{Op: "count candles", Err: err}
	}
	return n, nil
}

// Recent returns the newest limit rows, ascending, for startup cache
// hydration.
func (r *CandlesRepo) Recent(ctx context.Context, venue models.Venue, symbol, interval string, limit int) ([]models.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	var rows []candleRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM (
			SELECT venue, symbol, timeframe, timestamp, open, high, low, close, volume,
			       oi, funding_rate, buy_volume, sell_volume
			FROM historical_candles
			WHERE venue = $1 AND symbol = $2 AND timeframe = $3
			ORDER BY timestamp DESC
			LIMIT $4
		) recent ORDER BY timestamp ASC`, string(venue), symbol, interval, limit)
	if err != nil {
		return nil, &models.StorageError{Op: "recent candles", Err: err}
	}

	out := make([]models.Candle, len(rows))
	for i, row := range rows {
		out[i] = models.Candle{
			Venue:       models.Venue(row.Venue),
			Symbol:      row.Symbol,
			Interval:    row.Timeframe,
			Timestamp:   row.Timestamp,
			Open:        row.Open,
			High:        row.High,
			Low:         row.Low,
			Close:       row.Close,
			Volume:      row.Volume,
			OI:          row.OI,
			FundingRate: row.FundingRate,
			BuyVolume:   row.BuyVolume,
			SellVolume:  row.SellVolume,
		}
	}
	return out, nil
}
