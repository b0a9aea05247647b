package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/anvh2/market-intel/internal/models"
)

// AlertsRepo persists emitted alerts with a reference to the state that
// produced them.
type AlertsRepo struct {
	db *DB
}

func NewAlertsRepo(db *DB) *AlertsRepo {
	return &AlertsRepo{db: db}
}

func (r *AlertsRepo) Insert(ctx context.Context, alert *models.Alert) error {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	contextJSON, err := json.Marshal(alert.Context)
	if err != nil {
		return &models.StorageError{Op: "marshal alert context", Err: err}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO alerts
			(id, timestamp, alert_type, priority, title, description, context_json, market_state_id, acknowledged)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), false)
		ON CONFLICT (id) DO NOTHING`,
		alert.ID, alert.Timestamp, string(alert.Category), string(alert.Priority),
		alert.Title, alert.Description, contextJSON, alert.MarketStateID)
	if err != nil {
		return &models.StorageError{Op: "insert alert", Err: err}
	}
	return nil
}

// LastEmitted returns (category -> newest timestamp) for alerts newer than
// since; the alert engine hydrates its cooldown table from this on startup.
func (r *AlertsRepo) LastEmitted(ctx context.Context, since int64) (map[models.AlertCategory]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT alert_type, MAX(timestamp) FROM alerts
		WHERE timestamp >= $1
		GROUP BY alert_type`, since)
	if err != nil {
		return nil, &models.StorageError{Op: "last emitted", Err: err}
	}
	defer rows.Close()

	out := make(map[models.AlertCategory]int64)
	for rows.Next() {
		var category string
		var ts int64
		if err := rows.Scan(&category, &ts); err != nil {
			return nil, &models.StorageError{Op: "scan last emitted", Err: err}
		}
		out[models.ParseAlertCategory(category)] = ts
	}
	return out, rows.Err()
}

// CountsSince returns total and high-priority alert counts for the window,
// used by the daily summary.
func (r *AlertsRepo) CountsSince(ctx context.Context, start, end int64) (total, high int64, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	err = r.db.QueryRowxContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE priority IN ('high', 'critical'))
		FROM alerts
		WHERE timestamp >= $1 AND timestamp < $2`, start, end).Scan(&total, &high)
	if err != nil {
		return 0, 0, &models.StorageError{Op: "alert counts", Err: err}
	}
	return total, high, nil
}

// Acknowledge marks an alert as seen by an operator.
func (r *AlertsRepo) Acknowledge(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET acknowledged = true, acknowledged_at = $2
		WHERE id = $1 AND NOT acknowledged`, id, time.Now().UnixMilli())
	if err != nil {
		return &models.StorageError{Op: "acknowledge alert", Err: err}
	}
	return nil
}

func (r *AlertsRepo) DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, &models.StorageError{Op: "delete alerts", Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}
