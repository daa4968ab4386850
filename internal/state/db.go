package state

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/yieldvault/rebalancer/internal/logger"
)

var dbLogger = logger.GetForComponent("state_postgres")

// DBConfig holds database connection parameters.
type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresStore is the Postgres-backed Repository.
type PostgresStore struct {
	db *sqlx.DB
}

// OpenPostgres opens and pings the connection pool.
func OpenPostgres(cfg DBConfig) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, 25))
	db.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, 25))
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dbLogger.Info().Msg("Successfully connected to the PostgreSQL database!")
	return &PostgresStore{db: db}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	dbLogger.Info().Msg("Closing database connection...")
	return s.db.Close()
}

// Ping checks the connection with a short timeout.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction, rolling back on error or panic.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	if s.db == nil {
		return ErrNotInitialized
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				dbLogger.Error().Err(rbErr).Msg("Rollback failed")
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
