package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yieldvault/rebalancer/internal/datafetcher"
	"github.com/yieldvault/rebalancer/internal/logger"
	"github.com/yieldvault/rebalancer/internal/state"
	"github.com/yieldvault/rebalancer/internal/types"
	"github.com/yieldvault/rebalancer/internal/utils"
)

var protocolLogger = logger.GetForComponent("protocol_refresher")

// HealthSource is the subset of the DefiLlama client the refresher needs.
type HealthSource interface {
	ProtocolHealth(ctx context.Context, slug string) (*datafetcher.ProtocolHealth, error)
}

// PoolSource lists the DefiLlama yield pools of a project.
type PoolSource interface {
	PoolsForProtocol(ctx context.Context, project string) ([]datafetcher.Pool, error)
}

// ProtocolRefresher copies TVL and health from DefiLlama onto each active
// protocol. With a pool source attached, APY is also synced for non-AVS
// protocols. The AVS block is always operator-managed.
type ProtocolRefresher struct {
	source HealthSource
	pools  PoolSource
	store  state.ProtocolStore
	now    func() time.Time
}

func NewProtocolRefresher(source HealthSource, store state.ProtocolStore) *ProtocolRefresher {
	return &ProtocolRefresher{source: source, store: store, now: time.Now}
}

// WithPools enables APY sync from the project's yield pools.
func (r *ProtocolRefresher) WithPools(pools PoolSource) *ProtocolRefresher {
	r.pools = pools
	return r
}

func (r *ProtocolRefresher) Name() string { return "protocol_refresh" }

// Run refreshes every active protocol. One protocol failing does not stop the
// others.
func (r *ProtocolRefresher) Run(ctx context.Context) error {
	protocols, err := r.store.ListActiveProtocols(ctx)
	if err != nil {
		return fmt.Errorf("failed to list protocols: %w", err)
	}

	var errs []error
	updated := 0
	for _, p := range protocols {
		if err := ctx.Err(); err != nil {
			return err
		}
		slug := datafetcher.ProtocolSlug(p.Name)
		health, err := r.source.ProtocolHealth(ctx, slug)
		if err != nil {
			protocolLogger.Warn().Err(err).Str("protocol", p.Name).Str("slug", slug).Msg("Keeping last known metrics")
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
			continue
		}

		now := r.now().UTC()
		update := types.ProtocolUpdate{
			TVL:          &health.TVL,
			HealthScore:  &health.RiskScore,
			TVLChange24h: &health.TVLChange24h,
			TVLChange7d:  &health.TVLChange7d,
			LastUpdate:   &now,
		}
		if r.pools != nil && !p.IsAVS() {
			if apy, ok := r.poolAPY(ctx, slug, p); ok {
				update.APY = &apy
			}
		}
		if _, err := r.store.UpdateProtocol(ctx, p.ID, update); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
			continue
		}
		updated++
	}

	protocolLogger.Info().Int("protocols", len(protocols)).Int("updated", updated).Msg("Protocol metrics refreshed")
	return errors.Join(errs...)
}

// poolAPY is the TVL-weighted APY of the project's pools whose symbol names
// one of the protocol's supported tokens.
func (r *ProtocolRefresher) poolAPY(ctx context.Context, slug string, p types.Protocol) (float64, bool) {
	pools, err := r.pools.PoolsForProtocol(ctx, slug)
	if err != nil {
		protocolLogger.Warn().Err(err).Str("protocol", p.Name).Msg("Keeping last known APY")
		return 0, false
	}

	var weighted, tvl float64
	for _, pool := range pools {
		if pool.TVLUsd <= 0 || !utils.IsFinite(pool.APY) || pool.APY < 0 || !matchesToken(pool.Symbol, p.SupportedTokens) {
			continue
		}
		weighted += pool.APY * pool.TVLUsd
		tvl += pool.TVLUsd
	}
	if tvl == 0 {
		return 0, false
	}
	return weighted / tvl, true
}

func matchesToken(poolSymbol string, tokens []string) bool {
	for _, part := range strings.FieldsFunc(strings.ToUpper(poolSymbol), func(r rune) bool { return r == '-' || r == '/' }) {
		for _, t := range tokens {
			if part == strings.ToUpper(t) {
				return true
			}
		}
	}
	return false
}
