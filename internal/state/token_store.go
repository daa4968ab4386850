package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/yieldvault/rebalancer/internal/types"
)

const tokenColumns = `symbol, name, category, decimals, base_gas_limit, active`

func (s *PostgresStore) ListTokens(ctx context.Context) ([]types.Token, error) {
	var tokens []types.Token
	if err := s.db.SelectContext(ctx, &tokens, `SELECT `+tokenColumns+` FROM tokens ORDER BY symbol`); err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	return tokens, nil
}

func (s *PostgresStore) ListActiveTokens(ctx context.Context) ([]types.Token, error) {
	var tokens []types.Token
	if err := s.db.SelectContext(ctx, &tokens, `SELECT `+tokenColumns+` FROM tokens WHERE active = TRUE ORDER BY symbol`); err != nil {
		return nil, fmt.Errorf("failed to list active tokens: %w", err)
	}
	return tokens, nil
}

func (s *PostgresStore) GetToken(ctx context.Context, symbol string) (*types.Token, error) {
	var token types.Token
	err := s.db.GetContext(ctx, &token, `SELECT `+tokenColumns+` FROM tokens WHERE symbol = $1`, symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("token %q: %w", symbol, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token %q: %w", symbol, err)
	}
	return &token, nil
}

func (s *PostgresStore) CreateToken(ctx context.Context, token types.Token) (*types.Token, error) {
	query := `
		INSERT INTO tokens (` + tokenColumns + `)
		VALUES (:symbol, :name, :category, :decimals, :base_gas_limit, :active)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name, category = EXCLUDED.category, decimals = EXCLUDED.decimals,
			base_gas_limit = EXCLUDED.base_gas_limit, active = EXCLUDED.active`
	if _, err := s.db.NamedExecContext(ctx, query, token); err != nil {
		return nil, fmt.Errorf("failed to create token %q: %w", token.Symbol, err)
	}
	return &token, nil
}
