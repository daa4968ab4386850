package optimizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/yieldvault/rebalancer/internal/analyzer"
	"github.com/yieldvault/rebalancer/internal/state"
	"github.com/yieldvault/rebalancer/internal/types"
)

var ErrNoCompatibleProtocols = errors.New("no compatible protocols")

// OptimalPosition picks the best active protocol for a fresh deposit of
// amount units of tokenSymbol, ranked by apy×0.4 + health×0.3 + (100 − |tvl24h|)×0.3.
func (e *Engine) OptimalPosition(ctx context.Context, tokenSymbol string, amount float64) (*types.OptimalPosition, error) {
	if _, err := e.repo.GetToken(ctx, tokenSymbol); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, tokenSymbol)
		}
		return nil, fmt.Errorf("failed to load token %s: %w", tokenSymbol, err)
	}

	candidates, err := e.compatibleProtocols(ctx, tokenSymbol)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoCompatibleProtocols, tokenSymbol)
	}

	best := candidates[0]
	bestScore := analyzer.CalculatePositionScore(best)
	for _, p := range candidates[1:] {
		s := analyzer.CalculatePositionScore(p)
		if s > bestScore || (s == bestScore && p.ID < best.ID) {
			best, bestScore = p, s
		}
	}

	return &types.OptimalPosition{
		Protocol:    best,
		ExpectedAPY: best.APY,
		Risk:        analyzer.CalculateRiskLevel(best),
		Score:       bestScore,
		Amount:      amount,
		YearlyYield: amount * best.APY / 100,
	}, nil
}
