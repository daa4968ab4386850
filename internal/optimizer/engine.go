package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yieldvault/rebalancer/internal/analyzer"
	"github.com/yieldvault/rebalancer/internal/logger"
	"github.com/yieldvault/rebalancer/internal/metrics"
	"github.com/yieldvault/rebalancer/internal/state"
	"github.com/yieldvault/rebalancer/internal/types"
	"github.com/yieldvault/rebalancer/internal/utils"
)

var (
	ErrVaultNotFound = errors.New("vault not found")
	ErrTokenNotFound = errors.New("token not found")
)

// Engine decides, per vault, whether moving funds to another protocol pays
// for its gas.
type Engine struct {
	logger        zerolog.Logger
	repo          state.Repository
	market        MarketData
	gas           GasPriceSource
	params        types.PolicyParameters
	policyName    string
	policyVersion int
	now           func() time.Time
}

// Config holds the configuration for creating a new Engine.
type Config struct {
	Repository    state.Repository
	Market        MarketData
	GasPrice      GasPriceSource
	Params        *types.PolicyParameters
	PolicyName    string
	PolicyVersion int
	Now           func() time.Time // defaults to time.Now
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := validateEngineConfig(cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		logger:        logger.GetForComponent("decision_engine"),
		repo:          cfg.Repository,
		market:        cfg.Market,
		gas:           cfg.GasPrice,
		params:        *cfg.Params,
		policyName:    cfg.PolicyName,
		policyVersion: cfg.PolicyVersion,
		now:           now,
	}

	e.logger.Info().
		Str("policyName", e.policyName).
		Int("policyVersion", e.policyVersion).
		Str("referenceAsset", e.params.ReferenceAsset).
		Msg("Decision engine created")
	return e, nil
}

func validateEngineConfig(cfg Config) error {
	if cfg.Repository == nil {
		return fmt.Errorf("repository cannot be nil")
	}
	if cfg.Market == nil {
		return fmt.Errorf("market data source cannot be nil")
	}
	if cfg.GasPrice == nil {
		return fmt.Errorf("gas price source cannot be nil")
	}
	if cfg.Params == nil {
		return fmt.Errorf("policy parameters cannot be nil")
	}
	if err := cfg.Params.Validate(); err != nil {
		return fmt.Errorf("invalid policy parameters: %w", err)
	}
	if cfg.PolicyName == "" {
		return fmt.Errorf("policy name cannot be empty")
	}
	if cfg.PolicyVersion <= 0 {
		return fmt.Errorf("policy version must be positive")
	}
	return nil
}

// Evaluate runs one evaluation of a vault and commits a rebalance when it is
// profitable. NO_CHANGE outcomes are results, not errors.
func (e *Engine) Evaluate(ctx context.Context, vaultID int64) (*types.EvaluationResult, error) {
	return e.evaluate(ctx, vaultID, true)
}

// Preview reports what Evaluate would decide without writing anything.
func (e *Engine) Preview(ctx context.Context, vaultID int64) (*types.EvaluationResult, error) {
	return e.evaluate(ctx, vaultID, false)
}

// evaluation carries one invocation through the state machine.
type evaluation struct {
	id      string
	started time.Time
	log     zerolog.Logger
	state   types.EvaluationState
	vault   *types.Vault
	commit  bool
}

func (ev *evaluation) transition(to types.EvaluationState) {
	ev.log.Debug().
		Str("from", string(ev.state)).
		Str("to", string(to)).
		Msg("State transition")
	ev.state = to
}

func (e *Engine) evaluate(ctx context.Context, vaultID int64, commit bool) (*types.EvaluationResult, error) {
	ev := &evaluation{
		id:      uuid.New().String(),
		started: e.now(),
		state:   types.StateIdle,
		commit:  commit,
	}
	ev.log = e.logger.With().
		Str("evaluationId", ev.id).
		Int64("vaultId", vaultID).
		Bool("preview", !commit).
		Logger()

	ev.log.Info().Msg("--- Starting vault evaluation ---")
	ev.transition(types.StateEvaluating)

	// --- Step 1: Preconditions ---
	vault, err := e.repo.GetVault(ctx, vaultID)
	if err != nil {
		ev.transition(types.StateIdle)
		if errors.Is(err, state.ErrNotFound) {
			ev.log.Warn().Msg("Evaluation aborted: vault not found")
			return nil, fmt.Errorf("%w: %d", ErrVaultNotFound, vaultID)
		}
		ev.log.Error().Err(err).Msg("Evaluation aborted: failed to load vault")
		return nil, fmt.Errorf("failed to load vault %d: %w", vaultID, err)
	}
	ev.vault = vault

	if !vault.AutoMode {
		return e.noChange(ctx, ev, types.ReasonAutoModeDisabled, nil), nil
	}

	token, err := e.repo.GetToken(ctx, vault.Token)
	if err != nil {
		ev.transition(types.StateIdle)
		if errors.Is(err, state.ErrNotFound) {
			ev.log.Warn().Str("token", vault.Token).Msg("Evaluation aborted: token not found")
			return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, vault.Token)
		}
		ev.log.Error().Err(err).Msg("Evaluation aborted: failed to load token")
		return nil, fmt.Errorf("failed to load token %s: %w", vault.Token, err)
	}

	minBalance := e.params.MinBalanceFor(token.Category)
	if vault.Balance < minBalance {
		ev.log.Info().
			Float64("balance", vault.Balance).
			Float64("minBalance", minBalance).
			Str("category", string(token.Category)).
			Msg("Balance below category minimum")
		return e.noChange(ctx, ev, types.ReasonBelowMinBalance, nil), nil
	}

	// --- Step 2: Candidates and market snapshot ---
	candidates, err := e.compatibleProtocols(ctx, vault.Token)
	if err != nil {
		ev.transition(types.StateIdle)
		ev.log.Error().Err(err).Msg("Evaluation aborted: failed to load protocols")
		return nil, err
	}
	if len(candidates) == 0 {
		return e.noChange(ctx, ev, types.ReasonNoCompatibleProtocols, nil), nil
	}

	market := e.marketSnapshot(ctx, ev.log)

	// --- Step 3: Scoring ---
	scored := make([]types.ProtocolScoreResult, 0, len(candidates))
	byID := make(map[int64]types.Protocol, len(candidates))
	for _, p := range candidates {
		s, err := analyzer.CalculateProtocolScore(p, market, e.params)
		if err != nil {
			ev.log.Warn().Err(err).Int64("protocolID", p.ID).Msg("Skipping protocol with invalid data")
			continue
		}
		scored = append(scored, s)
		byID[p.ID] = p
	}
	best, err := analyzer.SelectBestProtocol(scored)
	if err != nil {
		if errors.Is(err, analyzer.ErrNoCandidates) {
			return e.noChange(ctx, ev, types.ReasonNoCompatibleProtocols, nil), nil
		}
		ev.transition(types.StateIdle)
		return nil, fmt.Errorf("failed to select protocol: %w", err)
	}
	winner := byID[best.ProtocolID]

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		for i, s := range analyzer.RankProtocolScores(scored) {
			ev.log.Debug().
				Int("rank", i+1).
				Str("protocol", s.ProtocolName).
				Float64("score", s.Score).
				Msg("Candidate")
		}
	}

	ev.log.Info().
		Str("current", vault.Protocol).
		Str("winner", winner.Name).
		Float64("score", best.Score).
		Int("candidates", len(scored)).
		Msg("Protocols scored")

	if winner.Name == vault.Protocol {
		return e.noChange(ctx, ev, types.ReasonAlreadyOptimal, nil), nil
	}

	// --- Step 4: Profitability ---
	analysis := e.analyze(ctx, ev, vault, token, winner, best, market)
	if !analysis.profitable {
		ev.log.Info().
			Float64("yearlyBenefit", analysis.YearlyBenefit).
			Float64("threshold", analysis.Threshold).
			Float64("gasCost", analysis.GasCost).
			Msg("Benefit does not cover threshold")
		return e.noChange(ctx, ev, types.ReasonBelowThreshold, &analysis.Analysis), nil
	}

	// --- Step 5: Commit ---
	ev.transition(types.StateRebalancing)
	if !ev.commit {
		ev.transition(types.StateIdle)
		return &types.EvaluationResult{
			EvaluationID: ev.id,
			Outcome:      types.StateRebalancing,
			Vault:        vault,
			Analysis:     &analysis.Analysis,
		}, nil
	}

	updated, txn, err := e.repo.CommitRebalance(ctx, state.RebalanceCommit{
		VaultID:          vault.ID,
		ExpectedProtocol: vault.Protocol,
		NewProtocol:      winner.Name,
		NewAPY:           winner.APY,
		Amount:           vault.Balance,
		GasCostUSD:       analysis.GasCost,
		Timestamp:        e.now().UTC(),
	})
	if err != nil {
		ev.transition(types.StateIdle)
		ev.log.Error().Err(err).Str("toProtocol", winner.Name).Msg("Rebalance commit failed, nothing applied")
		return nil, fmt.Errorf("failed to commit rebalance of vault %d: %w", vault.ID, err)
	}

	ev.log.Info().
		Str("fromProtocol", vault.Protocol).
		Str("toProtocol", winner.Name).
		Int64("transactionId", txn.ID).
		Float64("netBenefit", analysis.NetBenefit).
		Msg("Vault rebalanced")

	result := &types.EvaluationResult{
		EvaluationID: ev.id,
		Outcome:      types.StateRebalancing,
		Vault:        updated,
		Transaction:  txn,
		Analysis:     &analysis.Analysis,
		Committed:    true,
	}
	metrics.ObserveRebalance(analysis.GasCost)
	e.finish(ctx, ev, result, winner.Name)
	return result, nil
}

func (e *Engine) compatibleProtocols(ctx context.Context, tokenSymbol string) ([]types.Protocol, error) {
	active, err := e.repo.ListActiveProtocols(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active protocols: %w", err)
	}
	var out []types.Protocol
	for _, p := range active {
		if p.Active && p.Supports(tokenSymbol) {
			out = append(out, p)
		}
	}
	return out, nil
}

// marketSnapshot reads the reference price and trend. Missing data degrades to
// the policy default price and a zero trend.
func (e *Engine) marketSnapshot(ctx context.Context, log zerolog.Logger) types.MarketContext {
	asset := e.params.ReferenceAsset

	price, err := e.market.LatestPrice(ctx, asset)
	if err != nil {
		log.Warn().Err(err).Str("asset", asset).Msg("No reference price, using default")
		price = 0
	}

	trend := 0.0
	since := e.now().Add(-time.Duration(e.params.PriceTrendWindowMinutes) * time.Minute)
	history, err := e.market.PriceHistory(ctx, asset, since)
	if err != nil {
		log.Warn().Err(err).Str("asset", asset).Msg("No price history, trend set to 0")
	} else if t, err := analyzer.CalculatePriceTrend(history); err == nil {
		trend = t
	} else if !errors.Is(err, analyzer.ErrInsufficientData) {
		log.Warn().Err(err).Msg("Invalid price history, trend set to 0")
	}

	market := analyzer.NewMarketContext(price, trend, e.params)
	log.Debug().
		Float64("ethPriceUSD", market.EthPriceUSD).
		Float64("ethPriceRatio", market.EthPriceRatio).
		Float64("priceTrend", market.PriceTrend).
		Int("historyPoints", len(history)).
		Msg("Market snapshot")
	return market
}

type profitability struct {
	types.Analysis
	profitable bool
}

// analyze computes the gas cost and the yearly benefit of moving to winner.
// Money is compared in fixed point so the threshold decision is exact.
func (e *Engine) analyze(ctx context.Context, ev *evaluation, vault *types.Vault, token *types.Token, winner types.Protocol, best types.ProtocolScoreResult, market types.MarketContext) profitability {
	gwei, err := e.gas.GasPriceGwei(ctx)
	if err != nil {
		ev.log.Warn().Err(err).Float64("defaultGwei", e.params.DefaultGasPriceGwei).Msg("Gas price unavailable, using default")
		gwei = 0
	}
	gas := analyzer.EstimateGasCost(analyzer.GasInput{
		BaseGasUnits: token.BaseGasLimit,
		GasOverhead:  winner.GasOverhead,
		GasPriceGwei: gwei,
		EthPriceUSD:  market.EthPriceUSD,
	}, e.params)

	hundred := sdkmath.LegacyNewDec(100)
	balance := decOrZero(vault.Balance)
	currentYield := balance.Mul(decOrZero(vault.APY)).Quo(hundred)
	projectedYield := balance.Mul(decOrZero(winner.APY)).Quo(hundred)
	benefit := projectedYield.Sub(currentYield)
	threshold := gas.CostUSD.Mul(decOrZero(e.params.ThresholdMultiplierFor(token.Category)))

	a := types.Analysis{
		TargetProtocol:     winner.Name,
		PriceChangePercent: market.PriceTrend * 100,
		CurrentYield:       utils.MustDecToFloat64(currentYield),
		ProjectedYield:     utils.MustDecToFloat64(projectedYield),
		YearlyBenefit:      utils.MustDecToFloat64(benefit),
		Threshold:          utils.MustDecToFloat64(threshold),
		GasCost:            gas.CostUSDFloat(),
		NetBenefit:         utils.MustDecToFloat64(benefit.Sub(gas.CostUSD)),
		TokenCategory:      token.Category,
		GasDetails:         gas.Details(),
	}
	if winner.IsAVS() {
		m := analyzer.AVSMetricsOrDefault(winner)
		a.AVSRisk = &types.AVSRiskDetails{
			SlashingRisk:     m.SlashingRisk,
			SecurityScore:    m.SecurityScore,
			AvgUptimePercent: m.AvgUptimePercent,
			NodeCount:        m.NodeCount,
			RiskCategory:     m.RiskCategory,
			ScoreMultiplier:  best.Components.AVSMultiplier,
		}
	}
	return profitability{Analysis: a, profitable: benefit.GT(threshold)}
}

func decOrZero(v float64) sdkmath.LegacyDec {
	d, err := utils.Float64ToDec(v)
	if err != nil {
		return sdkmath.LegacyZeroDec()
	}
	return d
}

func (e *Engine) noChange(ctx context.Context, ev *evaluation, reason types.NoChangeReason, analysis *types.Analysis) *types.EvaluationResult {
	ev.transition(types.StateNoChange)
	ev.log.Info().Str("reason", string(reason)).Msg(types.NoChangeMessage)

	result := &types.EvaluationResult{
		EvaluationID: ev.id,
		Outcome:      types.StateNoChange,
		Reason:       reason,
		Message:      types.NoChangeMessage,
		Vault:        ev.vault,
		Analysis:     analysis,
	}
	e.finish(ctx, ev, result, "")
	return result
}

// finish records committed evaluations in the decision log and metrics, then
// returns the machine to IDLE. Previews leave no trace.
func (e *Engine) finish(ctx context.Context, ev *evaluation, result *types.EvaluationResult, toProtocol string) {
	defer ev.transition(types.StateIdle)

	elapsed := e.now().Sub(ev.started)
	if !ev.commit {
		return
	}
	metrics.ObserveEvaluation(string(result.Outcome), string(result.Reason), elapsed.Seconds())

	rec := types.DecisionRecord{
		EvaluationID:   ev.id,
		VaultID:        ev.vault.ID,
		Outcome:        result.Outcome,
		Reason:         result.Reason,
		FromProtocol:   ev.vault.Protocol,
		ToProtocol:     toProtocol,
		Analysis:       result.Analysis,
		EvaluatedAt:    ev.started.UTC(),
		DurationMillis: elapsed.Milliseconds(),
	}
	if result.Transaction != nil {
		id := result.Transaction.ID
		rec.TransactionID = &id
	}
	if _, err := e.repo.RecordDecision(context.WithoutCancel(ctx), rec); err != nil {
		ev.log.Error().Err(err).Msg("Failed to record decision")
	}

	ev.log.Info().
		Str("outcome", string(result.Outcome)).
		Dur("duration", elapsed).
		Msg("--- Vault evaluation completed ---")
}
