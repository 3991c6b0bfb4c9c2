package database

import (
	"context"
	"fmt"
	"time"

	"github.com/alim08/treasury_line/pkg/logger"
)

// Store backend names.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Store bundles the repositories a process works with. DB is nil for the
// memory backend.
type Store struct {
	Bonds  BondRepository
	Trades TradeRepository
	DB     *DB
}

// OpenStore opens backend. Postgres is configured from DB_* variables and
// migrated before returning.
func OpenStore(ctx context.Context, backend string) (*Store, error) {
	switch backend {
	case BackendMemory:
		logger.Log.Warn("using in-memory store; trades are lost on restart")
		return &Store{
			Bonds:  NewMemoryBondRepository(),
			Trades: NewMemoryTradeRepository(),
		}, nil

	case BackendPostgres:
		db, err := New(NewConfig())
		if err != nil {
			return nil, err
		}
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := db.RunMigrations(migrateCtx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		logger.Log.Info("database migrations completed")
		return &Store{Bonds: NewBondRepository(db), Trades: NewTradeRepository(db), DB: db}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// Close releases the database connection, if any.
func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
