/*

This file contains the result types produced by the rebalance decision engine.

*/

package types

import "time"

// EvaluationState is the per-invocation state of the decision engine.
type EvaluationState string

const (
	StateIdle        EvaluationState = "IDLE"
	StateEvaluating  EvaluationState = "EVALUATING"
	StateNoChange    EvaluationState = "NO_CHANGE"
	StateRebalancing EvaluationState = "REBALANCING"
)

// NoChangeReason explains a NO_CHANGE outcome.
type NoChangeReason string

const (
	ReasonAutoModeDisabled      NoChangeReason = "auto mode disabled"
	ReasonBelowMinBalance       NoChangeReason = "balance below minimum"
	ReasonNoCompatibleProtocols NoChangeReason = "no compatible protocols"
	ReasonAlreadyOptimal        NoChangeReason = "current protocol is optimal"
	ReasonBelowThreshold        NoChangeReason = "below profitability threshold"
)

// NoChangeMessage is returned to callers for every NO_CHANGE outcome.
const NoChangeMessage = "no profitable rebalancing opportunity found"

type GasDetails struct {
	GasLimit  uint64  `json:"gasLimit"`
	GasPrice  float64 `json:"gasPrice"` // gwei
	CostInEth float64 `json:"costInEth"`
}

// AVSRiskDetails is attached to the analysis when the target is an AVS protocol.
type AVSRiskDetails struct {
	SlashingRisk     float64      `json:"slashingRisk"`
	SecurityScore    float64      `json:"securityScore"`
	AvgUptimePercent float64      `json:"avgUptimePercent"`
	NodeCount        int          `json:"nodeCount"`
	RiskCategory     RiskCategory `json:"riskCategory"`
	ScoreMultiplier  float64      `json:"scoreMultiplier"`
}

type Analysis struct {
	TargetProtocol     string          `json:"targetProtocol"`
	PriceChangePercent float64         `json:"priceChangePercent"`
	CurrentYield       float64         `json:"currentYield"`
	ProjectedYield     float64         `json:"projectedYield"`
	YearlyBenefit      float64         `json:"yearlyBenefit"`
	Threshold          float64         `json:"threshold"`
	GasCost            float64         `json:"gasCost"`
	NetBenefit         float64         `json:"netBenefit"`
	TokenCategory      TokenCategory   `json:"tokenCategory"`
	AVSRisk            *AVSRiskDetails `json:"avsRisk,omitempty"`
	GasDetails         GasDetails      `json:"gasDetails"`
}

// EvaluationResult is the outcome of one evaluation of one vault.
type EvaluationResult struct {
	EvaluationID string          `json:"evaluationId"`
	Outcome      EvaluationState `json:"outcome"`
	Reason       NoChangeReason  `json:"reason,omitempty"`
	Message      string          `json:"message,omitempty"`
	Vault        *Vault          `json:"vault,omitempty"`
	Transaction  *Transaction    `json:"transaction,omitempty"`
	Analysis     *Analysis       `json:"analysis,omitempty"`
	Committed    bool            `json:"committed"`
}

func (r EvaluationResult) Rebalanced() bool {
	return r.Outcome == StateRebalancing
}

// DecisionRecord is one row of the decision log.
type DecisionRecord struct {
	ID             int64           `json:"id"`
	EvaluationID   string          `json:"evaluationId"`
	VaultID        int64           `json:"vaultId"`
	Outcome        EvaluationState `json:"outcome"`
	Reason         NoChangeReason  `json:"reason,omitempty"`
	FromProtocol   string          `json:"fromProtocol"`
	ToProtocol     string          `json:"toProtocol,omitempty"`
	TransactionID  *int64          `json:"transactionId,omitempty"`
	Analysis       *Analysis       `json:"analysis,omitempty"`
	EvaluatedAt    time.Time       `json:"evaluatedAt"`
	DurationMillis int64           `json:"durationMillis"`
}

// DecisionSummary aggregates the decision log and the rebalance ledger.
type DecisionSummary struct {
	TotalEvaluations   int                    `json:"totalEvaluations"`
	Rebalances         int                    `json:"rebalances"`
	NoChangeByReason   map[NoChangeReason]int `json:"noChangeByReason"`
	TotalGasSpentUSD   float64                `json:"totalGasSpentUsd"`
	TotalRebalancedAmt float64                `json:"totalRebalancedAmount"`
	LastEvaluationAt   *time.Time             `json:"lastEvaluationAt,omitempty"`
}
