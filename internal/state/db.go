// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (cfg DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// schemaSQL creates every table the service uses. Amounts are u64 and live in
// NUMERIC(20,0) columns.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS baskets (
		basket_id TEXT PRIMARY KEY,
		address TEXT NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		authority TEXT NOT NULL,
		governance_mint TEXT NOT NULL,
		threshold NUMERIC(20, 0) NOT NULL CHECK (threshold > 0),
		strategy SMALLINT NOT NULL,
		eligible_assets TEXT[] NOT NULL DEFAULT '{}',
		quorum_percentage SMALLINT NOT NULL CHECK (quorum_percentage BETWEEN 0 AND 100),
		cooldown_seconds NUMERIC(20, 0) NOT NULL,
		base_reward NUMERIC(20, 0) NOT NULL,
		lamport_reward NUMERIC(20, 0) NOT NULL,
		slash_factor NUMERIC(20, 0) NOT NULL CHECK (slash_factor > 0),
		last_rebalance_ts BIGINT NOT NULL DEFAULT 0,
		whitelist TEXT[] NOT NULL DEFAULT '{}',
		mint_authority TEXT NOT NULL,
		treasury TEXT NOT NULL,
		created_at BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS proposals (
		proposal_id TEXT PRIMARY KEY,
		basket_id TEXT NOT NULL REFERENCES baskets(basket_id),
		kind VARCHAR(20) NOT NULL,
		proposer TEXT NOT NULL,
		proposed_threshold NUMERIC(20, 0) NOT NULL DEFAULT 0,
		proposed_strategy SMALLINT NOT NULL DEFAULT 0,
		proposed_assets TEXT[] NOT NULL DEFAULT '{}',
		yes_votes NUMERIC(20, 0) NOT NULL DEFAULT 0,
		no_votes NUMERIC(20, 0) NOT NULL DEFAULT 0,
		snapshot_supply NUMERIC(20, 0) NOT NULL,
		quorum_percentage SMALLINT NOT NULL,
		expiration BIGINT NOT NULL,
		voters TEXT[] NOT NULL DEFAULT '{}',
		status VARCHAR(20) NOT NULL,
		created_at BIGINT NOT NULL,
		finalized_at BIGINT NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_proposals_basket_created ON proposals(basket_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS rebalance_receipts (
		receipt_id BIGSERIAL PRIMARY KEY,
		basket_id TEXT NOT NULL REFERENCES baskets(basket_id),
		bot TEXT NOT NULL,
		current_deviation NUMERIC(20, 0) NOT NULL,
		token_reward NUMERIC(20, 0) NOT NULL,
		lamport_reward NUMERIC(20, 0) NOT NULL,
		slashed BOOLEAN NOT NULL,
		executed_at BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rebalance_receipts_basket ON rebalance_receipts(basket_id, receipt_id DESC);

	CREATE TABLE IF NOT EXISTS event_log (
		event_id BIGSERIAL PRIMARY KEY,
		event_name VARCHAR(50) NOT NULL,
		basket_id TEXT NOT NULL,
		payload JSONB NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_event_log_basket ON event_log(basket_id, event_id DESC);

	CREATE TABLE IF NOT EXISTS ledger_mints (
		denom TEXT PRIMARY KEY,
		authority TEXT NOT NULL,
		supply NUMERIC(20, 0) NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS ledger_token_accounts (
		address TEXT PRIMARY KEY,
		mint TEXT NOT NULL REFERENCES ledger_mints(denom),
		owner TEXT NOT NULL,
		amount NUMERIC(20, 0) NOT NULL DEFAULT 0 CHECK (amount >= 0)
	);

	CREATE TABLE IF NOT EXISTS ledger_native (
		address TEXT PRIMARY KEY,
		lamports NUMERIC(20, 0) NOT NULL DEFAULT 0 CHECK (lamports >= 0)
	);

	-- Cycle counter table for persistent keeper cycle tracking
	CREATE TABLE IF NOT EXISTS cycle_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_cycle INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);

	INSERT INTO cycle_counter (id, current_cycle)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING;
`

// dropSQL lists tables in dependency order for DropSchema.
const dropSQL = `
	DROP TABLE IF EXISTS rebalance_receipts CASCADE;
	DROP TABLE IF EXISTS proposals CASCADE;
	DROP TABLE IF EXISTS baskets CASCADE;
	DROP TABLE IF EXISTS event_log CASCADE;
	DROP TABLE IF EXISTS ledger_token_accounts CASCADE;
	DROP TABLE IF EXISTS ledger_native CASCADE;
	DROP TABLE IF EXISTS ledger_mints CASCADE;
	DROP TABLE IF EXISTS cycle_counter CASCADE;
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return ErrDBNotReady
	}
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every table created by EnsureSchema.
func DropSchema() error {
	if DB == nil {
		return ErrDBNotReady
	}
	if _, err := DB.Exec(dropSQL); err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}
	log.Warn().Msg("Database schema dropped.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
