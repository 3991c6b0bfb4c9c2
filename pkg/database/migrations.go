package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alim08/treasury_line/pkg/logger"
	"go.uber.org/zap"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
}

// Migrations holds all database migrations
var Migrations = []Migration{
	{
		Version:     1,
		Description: "Create bonds and trades",
		UpSQL: `
			CREATE TABLE IF NOT EXISTS treasury_bonds (
				cusip VARCHAR(9) PRIMARY KEY,
				maturity VARCHAR(3) NOT NULL,
				yield DOUBLE PRECISION NOT NULL,
				price DOUBLE PRECISION NOT NULL CHECK (price > 0),
				coupon DOUBLE PRECISION NOT NULL,
				price_change DOUBLE PRECISION NOT NULL DEFAULT 0,
				yield_change DOUBLE PRECISION NOT NULL DEFAULT 0,
				bid_price DOUBLE PRECISION NOT NULL,
				ask_price DOUBLE PRECISION NOT NULL,
				volume BIGINT NOT NULL DEFAULT 0,
				last_updated TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS trades (
				id BIGSERIAL PRIMARY KEY,
				cusip VARCHAR(9) NOT NULL,
				maturity VARCHAR(3),
				side VARCHAR(4) NOT NULL CHECK (side IN ('BUY', 'SELL')),
				quantity BIGINT NOT NULL CHECK (quantity >= 1000),
				price NUMERIC(12,6) NOT NULL,
				yield NUMERIC(10,6) NOT NULL,
				counterparty VARCHAR(50) NOT NULL,
				trader VARCHAR(50) NOT NULL,
				timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
				status VARCHAR(10) NOT NULL,
				settlement_date DATE,
				commission NUMERIC(12,2) NOT NULL DEFAULT 0
			);

			CREATE INDEX IF NOT EXISTS idx_trades_cusip ON trades(cusip);
			CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
			CREATE INDEX IF NOT EXISTS idx_trades_trader ON trades(trader);
			CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp DESC);
		`,
		DownSQL: `
			DROP TABLE IF EXISTS trades;
			DROP TABLE IF EXISTS treasury_bonds;
		`,
	},
	{
		Version:     2,
		Description: "Index trades by counterparty",
		UpSQL: `
			CREATE INDEX IF NOT EXISTS idx_trades_counterparty ON trades(counterparty);
		`,
		DownSQL: `
			DROP INDEX IF EXISTS idx_trades_counterparty;
		`,
	},
}

// MigrationStatus reports whether a migration has been applied.
type MigrationStatus struct {
	Version     int       `json:"version"`
	Applied     bool      `json:"applied"`
	AppliedAt   time.Time `json:"applied_at,omitempty"`
	Description string    `json:"description"`
}

// RunMigrations applies every pending migration in version order.
func (db *DB) RunMigrations(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	pending := 0
	for _, m := range Migrations {
		if _, ok := applied[m.Version]; ok {
			continue
		}
		logger.Log.Info("applying migration",
			zap.Int("version", m.Version),
			zap.String("description", m.Description))

		err := db.Transaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration SQL: %w", err)
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`,
				m.Version, m.Description)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
		}
		pending++
	}

	logger.Log.Info("database migrations completed", zap.Int("applied", pending))
	return nil
}

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);
`

// appliedMigrations maps applied versions to the time they ran.
func (db *DB) appliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// MigrationStatus lists every known migration and whether it has run.
func (db *DB) MigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	return migrationStatus(applied), nil
}

func migrationStatus(applied map[int]time.Time) []MigrationStatus {
	status := make([]MigrationStatus, 0, len(Migrations))
	for _, m := range Migrations {
		at, ok := applied[m.Version]
		status = append(status, MigrationStatus{
			Version:     m.Version,
			Applied:     ok,
			AppliedAt:   at,
			Description: m.Description,
		})
	}
	return status
}

// RollbackMigration reverts the most recently applied migration.
func (db *DB) RollbackMigration(ctx context.Context) error {
	var version int
	err := db.QueryRowContext(ctx, `SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version)
	if err != nil {
		return fmt.Errorf("no migrations to rollback: %w", err)
	}

	m, ok := findMigration(version)
	if !ok {
		return fmt.Errorf("migration version %d not found", version)
	}

	logger.Log.Info("rolling back migration",
		zap.Int("version", m.Version),
		zap.String("description", m.Description))

	return db.Transaction(ctx, func(tx *sql.Tx) error {
		if m.DownSQL != "" {
			if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
				return fmt.Errorf("failed to execute rollback SQL: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, version); err != nil {
			return fmt.Errorf("failed to remove migration record: %w", err)
		}
		return nil
	})
}

func findMigration(version int) (Migration, bool) {
	for _, m := range Migrations {
		if m.Version == version {
			return m, true
		}
	}
	return Migration{}, false
}
