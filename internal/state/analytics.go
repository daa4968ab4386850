package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yieldvault/rebalancer/internal/types"
)

// DecisionSummary aggregates the decision log and the rebalance ledger.
func (s *PostgresStore) DecisionSummary(ctx context.Context) (*types.DecisionSummary, error) {
	summary := &types.DecisionSummary{NoChangeByReason: map[types.NoChangeReason]int{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome, reason, COUNT(*)
		FROM decisions
		GROUP BY outcome, reason`)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var outcome, reason string
		var count int
		if err := rows.Scan(&outcome, &reason, &count); err != nil {
			dbLogger.Error().Err(err).Msg("Failed to scan decision count row")
			continue
		}
		summary.TotalEvaluations += count
		if types.EvaluationState(outcome) == types.StateRebalancing {
			summary.Rebalances += count
		} else {
			summary.NoChangeByReason[types.NoChangeReason(reason)] += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decision counts: %w", err)
	}

	var lastEval sql.NullTime
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(evaluated_at) FROM decisions`).Scan(&lastEval); err != nil {
		return nil, fmt.Errorf("failed to query last evaluation time: %w", err)
	}
	if lastEval.Valid {
		t := lastEval.Time
		summary.LastEvaluationAt = &t
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(gas_cost), 0), COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE kind = 'rebalance'`).Scan(&summary.TotalGasSpentUSD, &summary.TotalRebalancedAmt)
	if err != nil {
		return nil, fmt.Errorf("failed to query rebalance totals: %w", err)
	}

	return summary, nil
}
