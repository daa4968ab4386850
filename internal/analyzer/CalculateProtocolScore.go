/*

This file contains the scoring function that ranks protocols for a rebalance decision.

*/

package analyzer

import (
	"errors"
	"fmt"
	"math"

	"github.com/yieldvault/rebalancer/internal/logger"
	"github.com/yieldvault/rebalancer/internal/types"
	"github.com/yieldvault/rebalancer/internal/utils"
)

var ErrInvalidProtocolData = errors.New("invalid protocol data")
var ErrInvalidMarketContext = errors.New("invalid market context")
var scoreLogger = logger.GetForComponent("protocol_scorer")

// Defaults for AVS protocols that have not reported metrics yet.
const (
	defaultSecurityScore    = 50.0
	defaultAvgUptimePercent = 99.0
)

// NewMarketContext builds the market snapshot for one decision. A non-positive
// ETH price falls back to the policy default.
func NewMarketContext(ethPriceUSD, trend float64, params types.PolicyParameters) types.MarketContext {
	if ethPriceUSD <= 0 || !utils.IsFinite(ethPriceUSD) {
		ethPriceUSD = params.DefaultEthPriceUSD
	}
	if !utils.IsFinite(trend) {
		trend = 0
	}
	return types.MarketContext{
		EthPriceUSD:   ethPriceUSD,
		EthPriceRatio: ethPriceUSD / params.BaselineEthPriceUSD,
		PriceTrend:    trend,
	}
}

// CalculateProtocolScore computes
//
//	score = apy × ethPriceRatio × (1 + trendWeight × trend)
//
// and, for AVS protocols, multiplies by
//
//	(1 − slashingRisk) × min(cap, securityScore/100 × cap) × (avgUptimePercent/100).
func CalculateProtocolScore(protocol types.Protocol, market types.MarketContext, params types.PolicyParameters) (types.ProtocolScoreResult, error) {
	if err := ValidateProtocolData(protocol); err != nil {
		scoreLogger.Error().
			Int64("protocolID", protocol.ID).
			Str("protocol", protocol.Name).
			Err(err).
			Msg("Protocol data validation failed")
		return types.ProtocolScoreResult{}, errors.Join(ErrInvalidProtocolData, err)
	}
	if !utils.IsFinite(market.EthPriceRatio, market.PriceTrend) || market.EthPriceRatio <= 0 {
		return types.ProtocolScoreResult{}, fmt.Errorf("%w: ratio=%f trend=%f", ErrInvalidMarketContext, market.EthPriceRatio, market.PriceTrend)
	}

	result := types.ProtocolScoreResult{
		ProtocolID:   protocol.ID,
		ProtocolName: protocol.Name,
		Components: types.ScoreComponents{
			BaseAPY:         protocol.APY,
			EthPriceRatio:   market.EthPriceRatio,
			TrendMultiplier: 1 + params.TrendWeight*market.PriceTrend,
			AVSMultiplier:   1,
		},
	}

	if protocol.IsAVS() {
		result.Components.AVSMultiplier = CalculateAVSMultiplier(protocol, params)
	}

	c := result.Components
	result.Score = c.BaseAPY * c.EthPriceRatio * c.TrendMultiplier * c.AVSMultiplier

	if math.IsNaN(result.Score) || math.IsInf(result.Score, 0) {
		return types.ProtocolScoreResult{}, fmt.Errorf("%w: score for protocol %d is not finite", ErrInvalidProtocolData, protocol.ID)
	}

	scoreLogger.Debug().
		Int64("protocolID", protocol.ID).
		Str("protocol", protocol.Name).
		Float64("apy", c.BaseAPY).
		Float64("ethPriceRatio", c.EthPriceRatio).
		Float64("trendMultiplier", c.TrendMultiplier).
		Float64("avsMultiplier", c.AVSMultiplier).
		Float64("score", result.Score).
		Msg("Protocol scored")

	return result, nil
}

// CalculateAVSMultiplier returns the risk adjustment applied to an AVS protocol's score.
func CalculateAVSMultiplier(protocol types.Protocol, params types.PolicyParameters) float64 {
	m := AVSMetricsOrDefault(protocol)
	security := math.Min(params.SecurityBonusCap, m.SecurityScore/100*params.SecurityBonusCap)
	return (1 - m.SlashingRisk) * security * (m.AvgUptimePercent / 100)
}

// AVSMetricsOrDefault returns the protocol's AVS metrics, or neutral defaults
// when none have been reported.
func AVSMetricsOrDefault(protocol types.Protocol) types.AVSMetrics {
	if protocol.AVS != nil {
		return *protocol.AVS
	}
	return types.AVSMetrics{
		SecurityScore:    defaultSecurityScore,
		AvgUptimePercent: defaultAvgUptimePercent,
	}
}

// ValidateProtocolData checks the fields the scoring function depends on.
func ValidateProtocolData(protocol types.Protocol) error {
	if !utils.IsFinite(protocol.APY) {
		return fmt.Errorf("apy is not finite: %f", protocol.APY)
	}
	if protocol.APY < 0 {
		return fmt.Errorf("apy cannot be negative: %f", protocol.APY)
	}
	if protocol.AVS == nil {
		return nil
	}
	m := protocol.AVS
	if !utils.IsFinite(m.SlashingRisk, m.SecurityScore, m.AvgUptimePercent) {
		return errors.New("avs metrics are not finite")
	}
	if m.SlashingRisk < 0 || m.SlashingRisk > 1 {
		return fmt.Errorf("slashing risk must be within [0, 1], got %f", m.SlashingRisk)
	}
	if m.SecurityScore < 0 || m.SecurityScore > 100 {
		return fmt.Errorf("security score must be within [0, 100], got %f", m.SecurityScore)
	}
	if m.AvgUptimePercent < 0 || m.AvgUptimePercent > 100 {
		return fmt.Errorf("uptime must be within [0, 100], got %f", m.AvgUptimePercent)
	}
	if m.NodeCount < 0 {
		return fmt.Errorf("node count cannot be negative, got %d", m.NodeCount)
	}
	return nil
}
