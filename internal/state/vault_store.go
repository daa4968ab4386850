package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yieldvault/rebalancer/internal/types"
)

const vaultColumns = `id, name, balance, token, protocol, apy, auto_mode`
const transactionColumns = `id, vault_id, kind, amount, gas_cost, timestamp`

func (s *PostgresStore) ListVaults(ctx context.Context) ([]types.Vault, error) {
	var vaults []types.Vault
	if err := s.db.SelectContext(ctx, &vaults, `SELECT `+vaultColumns+` FROM vaults ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list vaults: %w", err)
	}
	return vaults, nil
}

func (s *PostgresStore) GetVault(ctx context.Context, id int64) (*types.Vault, error) {
	return getVault(ctx, s.db, id, false)
}

func getVault(ctx context.Context, q sqlx.QueryerContext, id int64, forUpdate bool) (*types.Vault, error) {
	query := `SELECT ` + vaultColumns + ` FROM vaults WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var vault types.Vault
	err := sqlx.GetContext(ctx, q, &vault, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vault %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vault %d: %w", id, err)
	}
	return &vault, nil
}

func (s *PostgresStore) CreateVault(ctx context.Context, v types.Vault) (*types.Vault, error) {
	query := `
		INSERT INTO vaults (name, balance, token, protocol, apy, auto_mode)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := s.db.QueryRowContext(ctx, query, v.Name, v.Balance, v.Token, v.Protocol, v.APY, v.AutoMode).Scan(&v.ID); err != nil {
		return nil, fmt.Errorf("failed to create vault %q: %w", v.Name, err)
	}
	return &v, nil
}

func (s *PostgresStore) UpdateVault(ctx context.Context, id int64, update types.VaultUpdate) (*types.Vault, error) {
	var updated types.Vault
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		current, err := getVault(ctx, tx, id, true)
		if err != nil {
			return err
		}
		updated = update.Apply(*current)
		return writeVault(ctx, tx, updated)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func writeVault(ctx context.Context, tx *sqlx.Tx, v types.Vault) error {
	query := `
		UPDATE vaults SET name = $2, balance = $3, token = $4, protocol = $5, apy = $6, auto_mode = $7
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, v.ID, v.Name, v.Balance, v.Token, v.Protocol, v.APY, v.AutoMode); err != nil {
		return fmt.Errorf("failed to update vault %d: %w", v.ID, err)
	}
	return nil
}

// CommitRebalance locks the vault row, checks it is still on the evaluated
// protocol, inserts the rebalance transaction and switches the vault.
// Either both writes commit or neither does.
func (s *PostgresStore) CommitRebalance(ctx context.Context, c RebalanceCommit) (*types.Vault, *types.Transaction, error) {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}

	var (
		vault types.Vault
		txn   types.Transaction
	)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		current, err := getVault(ctx, tx, c.VaultID, true)
		if err != nil {
			return err
		}
		if current.Protocol != c.ExpectedProtocol {
			return fmt.Errorf("%w: vault %d is on %q, expected %q", ErrStaleVault, c.VaultID, current.Protocol, c.ExpectedProtocol)
		}

		txn = types.Transaction{
			VaultID:   c.VaultID,
			Kind:      types.TransactionKindRebalance,
			Amount:    c.Amount,
			GasCost:   c.GasCostUSD,
			Timestamp: c.Timestamp,
		}
		if err := insertTransaction(ctx, tx, &txn); err != nil {
			return err
		}

		vault = *current
		vault.Protocol = c.NewProtocol
		vault.APY = c.NewAPY
		return writeVault(ctx, tx, vault)
	})
	if err != nil {
		return nil, nil, err
	}

	dbLogger.Info().
		Int64("vaultId", vault.ID).
		Int64("transactionId", txn.ID).
		Str("fromProtocol", c.ExpectedProtocol).
		Str("toProtocol", c.NewProtocol).
		Float64("gasCostUsd", c.GasCostUSD).
		Msg("Rebalance committed")
	return &vault, &txn, nil
}

func (s *PostgresStore) CreateTransaction(ctx context.Context, t types.Transaction) (*types.Transaction, error) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := getVault(ctx, tx, t.VaultID, false); err != nil {
			return err
		}
		return insertTransaction(ctx, tx, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func insertTransaction(ctx context.Context, tx *sqlx.Tx, t *types.Transaction) error {
	query := `
		INSERT INTO transactions (vault_id, kind, amount, gas_cost, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := tx.QueryRowContext(ctx, query, t.VaultID, string(t.Kind), t.Amount, t.GasCost, t.Timestamp).Scan(&t.ID); err != nil {
		return fmt.Errorf("failed to insert transaction for vault %d: %w", t.VaultID, err)
	}
	return nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, vaultID int64) ([]types.Transaction, error) {
	var txns []types.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE vault_id = $1 ORDER BY timestamp DESC, id DESC`
	if err := s.db.SelectContext(ctx, &txns, query, vaultID); err != nil {
		return nil, fmt.Errorf("failed to list transactions for vault %d: %w", vaultID, err)
	}
	return txns, nil
}
