package postgres

import (
	"time"

	"github.com/anvh2/market-intel/internal/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const defaultQueryTimeout = 10 * time.Second

// DB bundles the connection pool with the query timeout every repository
// applies.
type DB struct {
	*sqlx.DB
	timeout time.Duration
}

// Connect opens the durable store. The DSN comes from SUPABASE_URL or any
// equivalent postgres endpoint.
func Connect(cfg config.StorageConfig) (*DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	timeout := cfg.QueryTimeout
	if timeout == 0 {
		timeout = defaultQueryTimeout
	}

	return &DB{DB: db, timeout: timeout}, nil
}
