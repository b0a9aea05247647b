package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/anvh2/market-intel/internal/models"
)

// ConfigsRepo holds the single active analyzer config row plus its
// append-only history.
type ConfigsRepo struct {
	db *DB
}

func NewConfigsRepo(db *DB) *ConfigsRepo {
	return &ConfigsRepo{db: db}
}

// LoadActive returns the stored active config, nil when the table is empty
// (first boot).
func (r *ConfigsRepo) LoadActive(ctx context.Context) (*models.AnalyzerConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	var payload []byte
	err := r.db.QueryRowxContext(ctx, `SELECT config_json FROM analyzer_config WHERE singleton = true`).
		Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.StorageError{Op: "load config", Err: err}
	}

	cfg := &models.AnalyzerConfig{}
	if err := json.Unmarshal(payload, cfg); err != nil {
		return nil, &models.StorageError{Op: "decode config", Err: err}
	}
	return cfg, nil
}

// SaveActive writes the active row and its history entry atomically.
// History is append-only; the active row is a plain overwrite of the
// singleton.
func (r *ConfigsRepo) SaveActive(ctx context.Context, cfg *models.AnalyzerConfig) error {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	payload, err := json.Marshal(cfg)
	if err != nil {
		return &models.StorageError{Op: "marshal config", Err: err}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return &models.StorageError{Op: "begin config tx", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO analyzer_config (singleton, version, config_json, updated_at)
		VALUES (true, $1, $2, $3)
		ON CONFLICT (singleton) DO UPDATE SET
			version = EXCLUDED.version,
			config_json = EXCLUDED.config_json,
			updated_at = EXCLUDED.updated_at`,
		cfg.Meta.Version, payload, time.Now().UTC()); err != nil {
		return &models.StorageError{Op: "upsert active config", Err: err}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO analyzer_config_history (version, modified_by, notes, config_json, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		cfg.Meta.Version, cfg.Meta.ModifiedBy, cfg.Meta.Notes, payload, time.Now().UTC()); err != nil {
		return &models.StorageError{Op: "append config history", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &models.StorageError{Op: "commit config", Err: err}
	}
	return nil
}

// LoadVersion fetches one historical version, nil when absent.
func (r *ConfigsRepo) LoadVersion(ctx context.Context, version string) (*models.AnalyzerConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	var payload []byte
	err := r.db.QueryRowxContext(ctx, `
		SELECT config_json FROM analyzer_config_history
		WHERE version = $1
		ORDER BY created_at DESC
		LIMIT 1`, version).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.StorageError{Op: "load config version", Err: err}
	}

	cfg := &models.AnalyzerConfig{}
	if err := json.Unmarshal(payload, cfg); err != nil {
		return nil, &models.StorageError{Op: "decode config version", Err: err}
	}
	return cfg, nil
}

// History lists stored versions, newest first.
func (r *ConfigsRepo) History(ctx context.Context, limit int) ([]models.ConfigMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, r.db.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT version, modified_by, notes, created_at FROM analyzer_config_history
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, &models.StorageError{Op: "config history", Err: err}
	}
	defer rows.Close()

	out := make([]models.ConfigMeta, 0, limit)
	for rows.Next() {
		var meta models.ConfigMeta
		var createdAt time.Time
		if err := rows.Scan(&meta.Version, &meta.ModifiedBy, &meta.Notes, &createdAt); err != nil {
			return nil, &models.StorageError{Op: "scan config history", Err: err}
		}
		meta.ModifiedAt = createdAt.UnixMilli()
		out = append(out, meta)
	}
	return out, rows.Err()
}
