/*

This file contains the reference data loaded into an empty store.

*/

package config

import "github.com/yieldvault/rebalancer/internal/types"

var SeedTokens = []types.Token{
	{Symbol: "wstETH", Name: "Wrapped Liquid Staked Ether", Category: types.TokenCategoryLSD, Decimals: 18, BaseGasLimit: 65000, Active: true},
	{Symbol: "rETH", Name: "Rocket Pool ETH", Category: types.TokenCategoryLSD, Decimals: 18, BaseGasLimit: 70000, Active: true},
	{Symbol: "USDC", Name: "USD Coin", Category: types.TokenCategoryStablecoin, Decimals: 6, BaseGasLimit: 45000, Active: true},
	{Symbol: "DAI", Name: "Dai Stablecoin", Category: types.TokenCategoryStablecoin, Decimals: 18, BaseGasLimit: 48000, Active: true},
	{Symbol: "UNI", Name: "Uniswap", Category: types.TokenCategoryGovernance, Decimals: 18, BaseGasLimit: 55000, Active: true},
	{Symbol: "AAVE", Name: "Aave Token", Category: types.TokenCategoryGovernance, Decimals: 18, BaseGasLimit: 52000, Active: true},
}

var SeedProtocols = []types.Protocol{
	{
		Name: "AAVE", Kind: types.ProtocolKindLending, APY: 4.5, TVL: 10_000_000, Active: true,
		SupportedTokens: []string{"wstETH", "rETH", "USDC", "DAI", "UNI", "AAVE"},
		GasOverhead:     220000, HealthScore: 85, TVLChange24h: 2.5, TVLChange7d: 5.8,
	},
	{
		Name: "Compound", Kind: types.ProtocolKindLending, APY: 3.8, TVL: 8_500_000, Active: true,
		SupportedTokens: []string{"USDC", "DAI"},
		GasOverhead:     180000, HealthScore: 82, TVLChange24h: 1.2, TVLChange7d: 3.4,
	},
	{
		Name: "Morpho", Kind: types.ProtocolKindLending, APY: 4.2, TVL: 7_000_000, Active: true,
		SupportedTokens: []string{"wstETH", "USDC", "DAI"},
		GasOverhead:     250000, HealthScore: 78, TVLChange24h: -0.8, TVLChange7d: 4.1,
	},
	{
		Name: "EigenDA", Kind: types.ProtocolKindAVS, APY: 6.2, TVL: 12_000_000, Active: true,
		SupportedTokens: []string{"wstETH", "rETH"},
		GasOverhead:     300000, HealthScore: 80,
		AVS: &types.AVSMetrics{SlashingRisk: 0.02, NodeCount: 240, AvgUptimePercent: 99.9, SecurityScore: 90, RiskCategory: types.RiskCategoryLow},
	},
	{
		Name: "Witness Chain", Kind: types.ProtocolKindAVS, APY: 8.1, TVL: 3_200_000, Active: true,
		SupportedTokens: []string{"wstETH", "rETH"},
		GasOverhead:     320000, HealthScore: 70,
		AVS: &types.AVSMetrics{SlashingRisk: 0.06, NodeCount: 120, AvgUptimePercent: 99.2, SecurityScore: 72, RiskCategory: types.RiskCategoryMedium},
	},
	{
		Name: "Lagrange", Kind: types.ProtocolKindAVS, APY: 11.4, TVL: 1_500_000, Active: true,
		SupportedTokens: []string{"wstETH"},
		GasOverhead:     340000, HealthScore: 62,
		AVS: &types.AVSMetrics{SlashingRisk: 0.12, NodeCount: 60, AvgUptimePercent: 98.1, SecurityScore: 55, RiskCategory: types.RiskCategoryHigh},
	},
}

var SeedVaults = []types.Vault{
	{Name: "Stablecoin Vault", Balance: 10000, Token: "USDC", Protocol: "Compound", APY: 3.8, AutoMode: true},
}
