package analyzer

import (
	"math"

	"github.com/yieldvault/rebalancer/internal/types"
)

const (
	RiskLevelLow    = "Low"
	RiskLevelMedium = "Medium"
	RiskLevelHigh   = "High"
)

// CalculatePositionScore ranks protocols for a fresh deposit:
// apy×0.4 + health×0.3 + (100 − |tvl24h|)×0.3.
func CalculatePositionScore(p types.Protocol) float64 {
	return p.APY*0.4 + p.HealthScore*0.3 + (100-math.Abs(p.TVLChange24h))*0.3
}

// CalculateRiskLevel buckets a protocol by health and TVL stability.
func CalculateRiskLevel(p types.Protocol) string {
	riskScore := p.HealthScore*0.4 +
		(100-math.Abs(p.TVLChange24h))*0.3 +
		(100-math.Abs(p.TVLChange7d))*0.3

	switch {
	case riskScore >= 80:
		return RiskLevelLow
	case riskScore >= 60:
		return RiskLevelMedium
	default:
		return RiskLevelHigh
	}
}
