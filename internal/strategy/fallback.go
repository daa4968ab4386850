package strategy

import (
	"math"
	"strings"

	"github.com/yieldvault/rebalancer/internal/analyzer"
	"github.com/yieldvault/rebalancer/internal/types"
)

var (
	aggressiveKeywords   = []string{"aggressive", "high risk", "maximum yield", "growth"}
	conservativeKeywords = []string{"conservative", "safe", "stable", "minimum risk"}
)

const basicScoreReason = "Score calculated using basic metrics due to analysis error"

// KeywordPreference maps strategy text to a preference without any external call.
// Aggressive keywords win over conservative ones.
func KeywordPreference(text string) types.StrategyPreference {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, aggressiveKeywords):
		return types.StrategyPreference{
			RiskTolerance: 0.8, YieldPreference: 0.7, SecurityPreference: 0.3,
			Description: "Aggressive strategy focused on yield and growth",
			Source:      types.PreferenceSourceFallback,
		}
	case containsAny(lower, conservativeKeywords):
		return types.StrategyPreference{
			RiskTolerance: 0.2, YieldPreference: 0.3, SecurityPreference: 0.8,
			Description: "Conservative strategy focused on capital preservation",
			Source:      types.PreferenceSourceFallback,
		}
	default:
		return types.StrategyPreference{
			RiskTolerance: 0.5, YieldPreference: 0.5, SecurityPreference: 0.5,
			Description: "Balanced strategy",
			Source:      types.PreferenceSourceFallback,
		}
	}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// BasicScore is the deterministic protocol score used when the model cannot
// score a protocol:
//
//	( apy/100 × yield + (1 − slashing) × (1 − risk)
//	  + min(1.5, security/100 × 1.5) × securityPref
//	  + (uptime/100 + min(1, nodes/1000)) / 2 ) / 4
//
// clamped to [0, 1].
func BasicScore(p types.Protocol, pref types.StrategyPreference) float64 {
	m := analyzer.AVSMetricsOrDefault(p)

	slashingPenalty := 1 - m.SlashingRisk
	securityBonus := math.Min(1.5, m.SecurityScore/100*1.5)
	uptime := m.AvgUptimePercent / 100
	nodes := math.Min(1, float64(m.NodeCount)/1000)

	score := (p.APY/100*pref.YieldPreference +
		slashingPenalty*(1-pref.RiskTolerance) +
		securityBonus*pref.SecurityPreference +
		(uptime+nodes)/2) / 4

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
