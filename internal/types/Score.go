/*

This file contains the result types of protocol scoring.

*/

package types

// ScoreComponents breaks a protocol score into its multiplicative factors.
type ScoreComponents struct {
	BaseAPY         float64 `json:"base_apy"`
	EthPriceRatio   float64 `json:"eth_price_ratio"`
	TrendMultiplier float64 `json:"trend_multiplier"`
	AVSMultiplier   float64 `json:"avs_multiplier"` // 1 for non-AVS protocols
}

type ProtocolScoreResult struct {
	ProtocolID   int64           `json:"protocol_id"`
	ProtocolName string          `json:"protocol_name"`
	Score        float64         `json:"score"`
	Components   ScoreComponents `json:"components"`
}

// MarketContext is the point-in-time market snapshot used for one decision.
type MarketContext struct {
	EthPriceUSD   float64 `json:"eth_price_usd"`
	EthPriceRatio float64 `json:"eth_price_ratio"`
	PriceTrend    float64 `json:"price_trend"` // fraction, e.g. 0.02 for +2%
}

// OptimalPosition is the best protocol for a fresh deposit of a token.
type OptimalPosition struct {
	Protocol    Protocol `json:"protocol"`
	ExpectedAPY float64  `json:"expectedApy"`
	Risk        string   `json:"risk"`
	Score       float64  `json:"score"`
	Amount      float64  `json:"amount"`
	YearlyYield float64  `json:"yearlyYield"`
}
