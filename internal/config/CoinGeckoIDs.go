/*

CoinGecko is used for the reference asset price series and token spot prices.

This file maps token symbols to CoinGecko coin ids. Symbols missing here fall back
to the lowercased symbol, which works for most large caps.

*/

package config

import "strings"

var (
	CoinGeckoIDs = map[string]string{
		"ETH":    "ethereum",
		"WETH":   "ethereum",
		"WSTETH": "wrapped-steth",
		"RETH":   "rocket-pool-eth",
		"USDC":   "usd-coin",
		"DAI":    "dai",
		"USDT":   "tether",
		"UNI":    "uniswap",
		"AAVE":   "aave",
		"WBTC":   "wrapped-bitcoin",
	}
)

// CoinGeckoID resolves a token symbol or asset name to a CoinGecko id.
func CoinGeckoID(symbol string) string {
	if id, ok := CoinGeckoIDs[strings.ToUpper(symbol)]; ok {
		return id
	}
	return strings.ToLower(symbol)
}
