package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/yieldvault/rebalancer/internal/types"
)

const protocolColumns = `
	id, name, kind, apy, tvl, active, supported_tokens, gas_overhead,
	health_score, tvl_change_24h, tvl_change_7d, last_update,
	slashing_risk, node_count, avg_uptime_percent, security_score, risk_category`

// protocolRow mirrors the protocols table; AVS columns are NULL for other kinds.
type protocolRow struct {
	ID               int64           `db:"id"`
	Name             string          `db:"name"`
	Kind             string          `db:"kind"`
	APY              float64         `db:"apy"`
	TVL              float64         `db:"tvl"`
	Active           bool            `db:"active"`
	SupportedTokens  pq.StringArray  `db:"supported_tokens"`
	GasOverhead      int64           `db:"gas_overhead"`
	HealthScore      float64         `db:"health_score"`
	TVLChange24h     float64         `db:"tvl_change_24h"`
	TVLChange7d      float64         `db:"tvl_change_7d"`
	LastUpdate       time.Time       `db:"last_update"`
	SlashingRisk     sql.NullFloat64 `db:"slashing_risk"`
	NodeCount        sql.NullInt64   `db:"node_count"`
	AvgUptimePercent sql.NullFloat64 `db:"avg_uptime_percent"`
	SecurityScore    sql.NullFloat64 `db:"security_score"`
	RiskCategory     sql.NullString  `db:"risk_category"`
}

func (r protocolRow) toProtocol() types.Protocol {
	p := types.Protocol{
		ID:              r.ID,
		Name:            r.Name,
		Kind:            types.ProtocolKind(r.Kind),
		APY:             r.APY,
		TVL:             r.TVL,
		Active:          r.Active,
		SupportedTokens: []string(r.SupportedTokens),
		GasOverhead:     uint64(r.GasOverhead),
		HealthScore:     r.HealthScore,
		TVLChange24h:    r.TVLChange24h,
		TVLChange7d:     r.TVLChange7d,
		LastUpdate:      r.LastUpdate,
	}
	if p.SupportedTokens == nil {
		p.SupportedTokens = []string{}
	}
	if r.SlashingRisk.Valid {
		p.AVS = &types.AVSMetrics{
			SlashingRisk:     r.SlashingRisk.Float64,
			NodeCount:        int(r.NodeCount.Int64),
			AvgUptimePercent: r.AvgUptimePercent.Float64,
			SecurityScore:    r.SecurityScore.Float64,
			RiskCategory:     types.RiskCategory(r.RiskCategory.String),
		}
	}
	return p
}

func avsArgs(m *types.AVSMetrics) []any {
	if m == nil {
		return []any{nil, nil, nil, nil, nil}
	}
	return []any{m.SlashingRisk, m.NodeCount, m.AvgUptimePercent, m.SecurityScore, string(m.RiskCategory)}
}

func (s *PostgresStore) selectProtocols(ctx context.Context, where string, args ...any) ([]types.Protocol, error) {
	var rows []protocolRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+protocolColumns+` FROM protocols `+where+` ORDER BY id`, args...); err != nil {
		return nil, err
	}
	protocols := make([]types.Protocol, 0, len(rows))
	for _, r := range rows {
		protocols = append(protocols, r.toProtocol())
	}
	return protocols, nil
}

func (s *PostgresStore) ListProtocols(ctx context.Context) ([]types.Protocol, error) {
	protocols, err := s.selectProtocols(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list protocols: %w", err)
	}
	return protocols, nil
}

func (s *PostgresStore) ListActiveProtocols(ctx context.Context) ([]types.Protocol, error) {
	protocols, err := s.selectProtocols(ctx, "WHERE active = TRUE")
	if err != nil {
		return nil, fmt.Errorf("failed to list active protocols: %w", err)
	}
	return protocols, nil
}

func (s *PostgresStore) GetProtocol(ctx context.Context, id int64) (*types.Protocol, error) {
	return getProtocol(ctx, s.db, id, false)
}

func getProtocol(ctx context.Context, q sqlx.QueryerContext, id int64, forUpdate bool) (*types.Protocol, error) {
	query := `SELECT ` + protocolColumns + ` FROM protocols WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var row protocolRow
	err := sqlx.GetContext(ctx, q, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("protocol %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get protocol %d: %w", id, err)
	}
	p := row.toProtocol()
	return &p, nil
}

func (s *PostgresStore) CreateProtocol(ctx context.Context, p types.Protocol) (*types.Protocol, error) {
	if p.LastUpdate.IsZero() {
		p.LastUpdate = time.Now().UTC()
	}
	args := []any{
		p.Name, string(p.Kind), p.APY, p.TVL, p.Active, pq.Array(p.SupportedTokens), int64(p.GasOverhead),
		p.HealthScore, p.TVLChange24h, p.TVLChange7d, p.LastUpdate,
	}
	args = append(args, avsArgs(p.AVS)...)

	query := `
		INSERT INTO protocols (
			name, kind, apy, tvl, active, supported_tokens, gas_overhead,
			health_score, tvl_change_24h, tvl_change_7d, last_update,
			slashing_risk, node_count, avg_uptime_percent, security_score, risk_category
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&p.ID); err != nil {
		return nil, fmt.Errorf("failed to create protocol %q: %w", p.Name, err)
	}
	return &p, nil
}

// UpdateProtocol applies a partial update under a row lock.
func (s *PostgresStore) UpdateProtocol(ctx context.Context, id int64, update types.ProtocolUpdate) (*types.Protocol, error) {
	var updated types.Protocol
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		current, err := getProtocol(ctx, tx, id, true)
		if err != nil {
			return err
		}
		updated = update.Apply(*current)
		return writeProtocol(ctx, tx, updated)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ToggleProtocol flips the active flag.
func (s *PostgresStore) ToggleProtocol(ctx context.Context, id int64) (*types.Protocol, error) {
	var updated types.Protocol
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		current, err := getProtocol(ctx, tx, id, true)
		if err != nil {
			return err
		}
		updated = *current
		updated.Active = !updated.Active
		return writeProtocol(ctx, tx, updated)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func writeProtocol(ctx context.Context, tx *sqlx.Tx, p types.Protocol) error {
	args := []any{
		p.ID, p.Name, string(p.Kind), p.APY, p.TVL, p.Active, pq.Array(p.SupportedTokens), int64(p.GasOverhead),
		p.HealthScore, p.TVLChange24h, p.TVLChange7d, p.LastUpdate,
	}
	args = append(args, avsArgs(p.AVS)...)

	query := `
		UPDATE protocols SET
			name = $2, kind = $3, apy = $4, tvl = $5, active = $6, supported_tokens = $7, gas_overhead = $8,
			health_score = $9, tvl_change_24h = $10, tvl_change_7d = $11, last_update = $12,
			slashing_risk = $13, node_count = $14, avg_uptime_percent = $15, security_score = $16, risk_category = $17
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update protocol %d: %w", p.ID, err)
	}
	return nil
}
