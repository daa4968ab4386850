/*

This file contains the tunable policy for the rebalance decision engine.

*/

package types

import "fmt"

// PolicyParameters holds the thresholds and weights used by the decision engine
// and the gas estimator. Versions are stored in the policy_parameters table.
type PolicyParameters struct {
	// --- Eligibility ---
	MinBalance map[TokenCategory]float64 `json:"min_balance"` // Vaults below this balance (token units) are never moved.

	// --- Profitability ---
	ThresholdMultiplier map[TokenCategory]float64 `json:"threshold_multiplier"` // Required yearly benefit as a multiple of gas cost.

	// --- Market Context ---
	BaselineEthPriceUSD     float64 `json:"baseline_eth_price_usd"`     // ETH price at which the price ratio is 1.
	DefaultEthPriceUSD      float64 `json:"default_eth_price_usd"`      // Used when no price has been observed yet.
	DefaultGasPriceGwei     float64 `json:"default_gas_price_gwei"`     // Used when the gas price source fails.
	TrendWeight             float64 `json:"trend_weight"`               // Weight of the recent price trend in the score.
	PriceTrendWindowMinutes int     `json:"price_trend_window_minutes"` // Lookback for the price trend.
	ReferenceAsset          string  `json:"reference_asset"`            // Asset whose price drives gas and trend, e.g. "ethereum".

	// --- AVS Adjustment ---
	SecurityBonusCap float64 `json:"security_bonus_cap"` // Upper bound of the security multiplier.
}

// MinBalanceFor returns the balance floor for a category, falling back to "other".
func (p PolicyParameters) MinBalanceFor(c TokenCategory) float64 {
	if v, ok := p.MinBalance[c]; ok {
		return v
	}
	return p.MinBalance[TokenCategoryOther]
}

// ThresholdMultiplierFor returns the benefit multiplier for a category, falling back to "other".
func (p PolicyParameters) ThresholdMultiplierFor(c TokenCategory) float64 {
	if v, ok := p.ThresholdMultiplier[c]; ok {
		return v
	}
	return p.ThresholdMultiplier[TokenCategoryOther]
}

// Validate checks that the parameters can drive an evaluation.
func (p PolicyParameters) Validate() error {
	if p.BaselineEthPriceUSD <= 0 {
		return fmt.Errorf("baseline ETH price must be positive, got %f", p.BaselineEthPriceUSD)
	}
	if p.DefaultEthPriceUSD <= 0 {
		return fmt.Errorf("default ETH price must be positive, got %f", p.DefaultEthPriceUSD)
	}
	if p.DefaultGasPriceGwei <= 0 {
		return fmt.Errorf("default gas price must be positive, got %f", p.DefaultGasPriceGwei)
	}
	if p.SecurityBonusCap <= 0 {
		return fmt.Errorf("security bonus cap must be positive, got %f", p.SecurityBonusCap)
	}
	if p.PriceTrendWindowMinutes <= 0 {
		return fmt.Errorf("price trend window must be positive, got %d", p.PriceTrendWindowMinutes)
	}
	if p.ReferenceAsset == "" {
		return fmt.Errorf("reference asset cannot be empty")
	}
	if _, ok := p.MinBalance[TokenCategoryOther]; !ok {
		return fmt.Errorf("min balance for category %q is required", TokenCategoryOther)
	}
	if _, ok := p.ThresholdMultiplier[TokenCategoryOther]; !ok {
		return fmt.Errorf("threshold multiplier for category %q is required", TokenCategoryOther)
	}
	for c, m := range p.ThresholdMultiplier {
		if m < 0 {
			return fmt.Errorf("threshold multiplier for %q cannot be negative", c)
		}
	}
	return nil
}
