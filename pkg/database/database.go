package database

import (
	"context"
	"fmt"
	"time"

	"github.com/hoddukzoa12/openclaw/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Database wraps the PostgreSQL connection pool
type Database struct {
	Pool *pgxpool.Pool
}

// NewDatabase creates a new database connection
func NewDatabase(cfg config.DatabaseConfig) (*Database, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
		cfg.MaxOpenConns,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Database{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *Database) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Health checks database health
func (db *Database) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// EnsureSchema creates the payment tables if they do not exist yet.
func (db *Database) EnsureSchema(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			session_key        TEXT PRIMARY KEY,
			channel            TEXT NOT NULL,
			user_id            TEXT NOT NULL,
			message_count      BIGINT NOT NULL DEFAULT 0,
			paid_message_count BIGINT NOT NULL DEFAULT 0,
			last_tx_ref        TEXT,
			last_paid_at       TIMESTAMPTZ,
			pending_payment_id TEXT,
			wallet_address     TEXT,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS payment_requests (
			id            TEXT PRIMARY KEY,
			session_key   TEXT NOT NULL,
			amount_micros BIGINT NOT NULL,
			network       TEXT NOT NULL,
			pay_to        TEXT NOT NULL,
			status        TEXT NOT NULL,
			tx_ref        TEXT,
			created_at    TIMESTAMPTZ NOT NULL,
			expires_at    TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_payment_requests_session
			ON payment_requests (session_key);

		CREATE TABLE IF NOT EXISTS allowances (
			user_id           TEXT NOT NULL,
			wallet_address    TEXT NOT NULL,
			authorized_micros BIGINT NOT NULL,
			spent_micros      BIGINT NOT NULL DEFAULT 0,
			permit_signature  TEXT,
			created_at        TIMESTAMPTZ NOT NULL,
			expires_at        TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, wallet_address)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
