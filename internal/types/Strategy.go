package types

// PreferenceSource records which path produced a StrategyPreference.
type PreferenceSource string

const (
	PreferenceSourceLLM      PreferenceSource = "llm"
	PreferenceSourceFallback PreferenceSource = "fallback"
)

// StrategyPreference is derived from free text and never persisted.
type StrategyPreference struct {
	RiskTolerance      float64          `json:"riskTolerance"`
	YieldPreference    float64          `json:"yieldPreference"`
	SecurityPreference float64          `json:"securityPreference"`
	Description        string           `json:"description"`
	Source             PreferenceSource `json:"source"`
}

type RankedProtocol struct {
	Protocol  Protocol `json:"protocol"`
	Score     float64  `json:"score"` // 0-1
	Reasoning []string `json:"reasoning"`
	Fallback  bool     `json:"fallback"`
}

type Allocation struct {
	Protocol RankedProtocol `json:"protocol"`
	Percent  float64        `json:"percent"`
}
