/*

This file contains the protocol registry types. AVS protocols carry an extra risk block.

*/

package types

import (
	"slices"
	"time"
)

type ProtocolKind string

const (
	ProtocolKindLending         ProtocolKind = "lending"
	ProtocolKindDEX             ProtocolKind = "dex"
	ProtocolKindYieldAggregator ProtocolKind = "yield-aggregator"
	ProtocolKindAVS             ProtocolKind = "avs"
	ProtocolKindOther           ProtocolKind = "other"
)

func (k ProtocolKind) Valid() bool {
	switch k {
	case ProtocolKindLending, ProtocolKindDEX, ProtocolKindYieldAggregator, ProtocolKindAVS, ProtocolKindOther:
		return true
	}
	return false
}

type RiskCategory string

const (
	RiskCategoryLow    RiskCategory = "low"
	RiskCategoryMedium RiskCategory = "medium"
	RiskCategoryHigh   RiskCategory = "high"
)

// AVSMetrics holds the restaking specific attributes of an AVS protocol.
type AVSMetrics struct {
	SlashingRisk     float64      `json:"slashingRisk"`     // fraction 0-1
	NodeCount        int          `json:"nodeCount"`
	AvgUptimePercent float64      `json:"avgUptimePercent"` // 0-100
	SecurityScore    float64      `json:"securityScore"`    // 0-100
	RiskCategory     RiskCategory `json:"riskCategory"`
}

type Protocol struct {
	ID              int64        `json:"id"`
	Name            string       `json:"name"`
	Kind            ProtocolKind `json:"type"`
	APY             float64      `json:"apy"` // percent
	TVL             float64      `json:"tvl"` // USD
	Active          bool         `json:"active"`
	SupportedTokens []string     `json:"supportedTokens"`
	GasOverhead     uint64       `json:"gasOverhead"`
	HealthScore     float64      `json:"healthScore"`
	TVLChange24h    float64      `json:"tvlChange24h"`
	TVLChange7d     float64      `json:"tvlChange7d"`
	LastUpdate      time.Time    `json:"lastUpdate"`
	AVS             *AVSMetrics  `json:"avs,omitempty"`
}

// Supports reports whether the protocol accepts the given token symbol.
func (p Protocol) Supports(symbol string) bool {
	return slices.Contains(p.SupportedTokens, symbol)
}

func (p Protocol) IsAVS() bool {
	return p.Kind == ProtocolKindAVS
}

// ProtocolUpdate is a partial update; nil fields are left untouched.
type ProtocolUpdate struct {
	Name            *string     `json:"name,omitempty"`
	APY             *float64    `json:"apy,omitempty"`
	TVL             *float64    `json:"tvl,omitempty"`
	Active          *bool       `json:"active,omitempty"`
	SupportedTokens []string    `json:"supportedTokens,omitempty"`
	GasOverhead     *uint64     `json:"gasOverhead,omitempty"`
	HealthScore     *float64    `json:"healthScore,omitempty"`
	TVLChange24h    *float64    `json:"tvlChange24h,omitempty"`
	TVLChange7d     *float64    `json:"tvlChange7d,omitempty"`
	LastUpdate      *time.Time  `json:"lastUpdate,omitempty"`
	AVS             *AVSMetrics `json:"avs,omitempty"`
}

// Apply returns a copy of p with the non-nil fields of u applied.
func (u ProtocolUpdate) Apply(p Protocol) Protocol {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.APY != nil {
		p.APY = *u.APY
	}
	if u.TVL != nil {
		p.TVL = *u.TVL
	}
	if u.Active != nil {
		p.Active = *u.Active
	}
	if u.SupportedTokens != nil {
		p.SupportedTokens = slices.Clone(u.SupportedTokens)
	}
	if u.GasOverhead != nil {
		p.GasOverhead = *u.GasOverhead
	}
	if u.HealthScore != nil {
		p.HealthScore = *u.HealthScore
	}
	if u.TVLChange24h != nil {
		p.TVLChange24h = *u.TVLChange24h
	}
	if u.TVLChange7d != nil {
		p.TVLChange7d = *u.TVLChange7d
	}
	if u.LastUpdate != nil {
		p.LastUpdate = *u.LastUpdate
	}
	if u.AVS != nil {
		avs := *u.AVS
		p.AVS = &avs
	}
	return p
}
