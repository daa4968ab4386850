package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yieldvault/rebalancer/internal/types"
)

type decisionRow struct {
	ID             int64         `db:"id"`
	EvaluationID   string        `db:"evaluation_id"`
	VaultID        int64         `db:"vault_id"`
	Outcome        string        `db:"outcome"`
	Reason         string        `db:"reason"`
	FromProtocol   string        `db:"from_protocol"`
	ToProtocol     string        `db:"to_protocol"`
	TransactionID  sql.NullInt64 `db:"transaction_id"`
	Analysis       []byte        `db:"analysis"`
	EvaluatedAt    time.Time     `db:"evaluated_at"`
	DurationMillis int64         `db:"duration_ms"`
}

// RecordDecision appends one evaluation outcome to the decision log.
func (s *PostgresStore) RecordDecision(ctx context.Context, d types.DecisionRecord) (int64, error) {
	var analysisJSON []byte
	if d.Analysis != nil {
		var err error
		analysisJSON, err = json.Marshal(d.Analysis)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal analysis: %w", err)
		}
	}
	var txID sql.NullInt64
	if d.TransactionID != nil {
		txID = sql.NullInt64{Int64: *d.TransactionID, Valid: true}
	}

	query := `
		INSERT INTO decisions (
			evaluation_id, vault_id, outcome, reason, from_protocol, to_protocol,
			transaction_id, analysis, evaluated_at, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		d.EvaluationID, d.VaultID, string(d.Outcome), string(d.Reason), d.FromProtocol, d.ToProtocol,
		txID, analysisJSON, d.EvaluatedAt, d.DurationMillis,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save decision: %w", err)
	}

	dbLogger.Debug().
		Int64("decisionId", id).
		Int64("vaultId", d.VaultID).
		Str("outcome", string(d.Outcome)).
		Str("reason", string(d.Reason)).
		Msg("Decision saved to database")
	return id, nil
}

func (s *PostgresStore) ListDecisions(ctx context.Context, vaultID int64, limit int) ([]types.DecisionRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `
		SELECT id, evaluation_id, vault_id, outcome, reason, from_protocol, to_protocol,
			transaction_id, analysis, evaluated_at, duration_ms
		FROM decisions
		WHERE vault_id = $1
		ORDER BY evaluated_at DESC, id DESC
		LIMIT $2`

	var rows []decisionRow
	if err := s.db.SelectContext(ctx, &rows, query, vaultID, limit); err != nil {
		return nil, fmt.Errorf("failed to query decisions for vault %d: %w", vaultID, err)
	}

	records := make([]types.DecisionRecord, 0, len(rows))
	for _, r := range rows {
		rec := types.DecisionRecord{
			ID:             r.ID,
			EvaluationID:   r.EvaluationID,
			VaultID:        r.VaultID,
			Outcome:        types.EvaluationState(r.Outcome),
			Reason:         types.NoChangeReason(r.Reason),
			FromProtocol:   r.FromProtocol,
			ToProtocol:     r.ToProtocol,
			EvaluatedAt:    r.EvaluatedAt,
			DurationMillis: r.DurationMillis,
		}
		if r.TransactionID.Valid {
			id := r.TransactionID.Int64
			rec.TransactionID = &id
		}
		if len(r.Analysis) > 0 {
			var a types.Analysis
			if err := json.Unmarshal(r.Analysis, &a); err != nil {
				dbLogger.Error().Err(err).Int64("decisionId", r.ID).Msg("Failed to unmarshal decision analysis")
			} else {
				rec.Analysis = &a
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
