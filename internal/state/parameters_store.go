package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yieldvault/rebalancer/internal/types"
)

// SavePolicyParameters saves a new version of the policy, optionally making it
// the only active version for configName.
func (s *PostgresStore) SavePolicyParameters(ctx context.Context, params types.PolicyParameters, configName string, version int, makeActive bool) (int64, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal policy parameters: %w", err)
	}

	var paramsID int64
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		if makeActive {
			stmtDeactivate := `UPDATE policy_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE`
			if _, err := tx.ExecContext(ctx, stmtDeactivate, configName); err != nil {
				return fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
			}
		}

		now := time.Now().UTC()
		stmt := `
			INSERT INTO policy_parameters (version, config_name, is_active, activated_at, created_at, params)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING params_id`
		if err := tx.QueryRowContext(ctx, stmt, version, configName, makeActive, now, now, paramsJSON).Scan(&paramsID); err != nil {
			return fmt.Errorf("failed to insert policy parameters: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	dbLogger.Info().
		Int("version", version).
		Str("config", configName).
		Int64("paramsId", paramsID).
		Bool("active", makeActive).
		Msg("Saved policy parameters")
	return paramsID, nil
}

// LoadActivePolicyParameters loads the currently active policy for configName.
func (s *PostgresStore) LoadActivePolicyParameters(ctx context.Context, configName string) (*types.PolicyParameters, error) {
	query := `
		SELECT params FROM policy_parameters
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1`

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, configName).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no active policy parameters for config '%s': %w", configName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active policy parameters for config '%s': %w", configName, err)
	}

	var p types.PolicyParameters
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy parameters for config '%s': %w", configName, err)
	}
	dbLogger.Info().Str("config", configName).Msg("Loaded active policy parameters")
	return &p, nil
}
