/*

This file contains the default policy for the rebalance decision engine.

These values are used when no active policy version is stored in the database.
Each value is a business policy, not a protocol constant, and can be replaced
by saving a new policy version.

*/

package config

import (
	"maps"

	"github.com/yieldvault/rebalancer/internal/types"
)

// DefaultPolicyParameters provides the baseline policy for the decision engine.
var DefaultPolicyParameters = types.PolicyParameters{
	// --- Eligibility ---
	MinBalance: map[types.TokenCategory]float64{
		types.TokenCategoryStablecoin: 1000,
		types.TokenCategoryLSD:        500,
		types.TokenCategoryGovernance: 2000,
		types.TokenCategoryOther:      1000,
	},
	// Rationale: small vaults cannot amortize a protocol switch. Governance tokens
	// need a larger floor because their yields are thin and volatile.

	// --- Profitability ---
	ThresholdMultiplier: map[types.TokenCategory]float64{
		types.TokenCategoryLSD:        1.5,
		types.TokenCategoryGovernance: 3,
		types.TokenCategoryStablecoin: 2,
		types.TokenCategoryOther:      2,
	},
	// Rationale: LSD yields are high and sticky so a lower bar is acceptable.
	// A bad governance token move is costlier to correct, so the bar is higher.

	// --- Market Context ---
	BaselineEthPriceUSD: 3000, // ETH price at which the price ratio is neutral.
	DefaultEthPriceUSD:  3000, // Used until the first price is observed.
	DefaultGasPriceGwei: 30,   // Used when the gas price source is unavailable.
	TrendWeight:         0.5,  // Half of the recent price trend feeds into the score.

	PriceTrendWindowMinutes: 60, // Matches the one hour CoinGecko backfill.
	ReferenceAsset:          "ethereum",

	// --- AVS Adjustment ---
	SecurityBonusCap: 1.5, // A perfect security score can lift an AVS score by at most 50%.
}

// PolicyWithOverrides returns a deep copy of base with the non-zero env overrides applied.
func PolicyWithOverrides(base types.PolicyParameters, overrides PolicyConfig) types.PolicyParameters {
	out := base
	out.MinBalance = maps.Clone(base.MinBalance)
	out.ThresholdMultiplier = maps.Clone(base.ThresholdMultiplier)
	if overrides.DefaultEthPriceUSD > 0 {
		out.DefaultEthPriceUSD = overrides.DefaultEthPriceUSD
	}
	if overrides.ReferenceAsset != "" {
		out.ReferenceAsset = overrides.ReferenceAsset
	}
	return out
}
