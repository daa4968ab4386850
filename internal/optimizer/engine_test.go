package optimizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldvault/rebalancer/internal/config"
	"github.com/yieldvault/rebalancer/internal/state"
	"github.com/yieldvault/rebalancer/internal/types"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *state.MemoryStore
	engine *Engine
}

func scenarioData() state.SeedData {
	return state.SeedData{
		Tokens: []types.Token{
			{Symbol: "USDC", Name: "USD Coin", Category: types.TokenCategoryStablecoin, Decimals: 6, BaseGasLimit: 45000, Active: true},
			{Symbol: "wstETH", Name: "Wrapped stETH", Category: types.TokenCategoryLSD, Decimals: 18, BaseGasLimit: 65000, Active: true},
		},
		Protocols: []types.Protocol{
			{Name: "AAVE", Kind: types.ProtocolKindLending, APY: 4.5, Active: true, SupportedTokens: []string{"USDC"}, GasOverhead: 220000, HealthScore: 85, TVLChange24h: 2.5, TVLChange7d: 5.8},
			{Name: "Compound", Kind: types.ProtocolKindLending, APY: 3.8, Active: true, SupportedTokens: []string{"USDC"}, GasOverhead: 180000, HealthScore: 82, TVLChange24h: 1.2, TVLChange7d: 3.4},
		},
		Vaults: []types.Vault{
			{Name: "Stablecoin Vault", Balance: 10000, Token: "USDC", Protocol: "Compound", APY: 3.8, AutoMode: true},
		},
	}
}

func newFixture(t *testing.T, repo state.Repository, store *state.MemoryStore, data state.SeedData, gas GasPriceSource) fixture {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, state.Seed(ctx, store, data))
	_, err := store.CreatePrice(ctx, types.PricePoint{Asset: "ethereum", Price: 3000, Timestamp: testNow.Add(-time.Minute)})
	require.NoError(t, err)

	params := config.DefaultPolicyParameters
	engine, err := NewEngine(Config{
		Repository:    repo,
		Market:        StoredMarketData{Prices: store},
		GasPrice:      gas,
		Params:        &params,
		PolicyName:    "test_policy",
		PolicyVersion: 1,
		Now:           func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return fixture{store: store, engine: engine}
}

func newScenarioFixture(t *testing.T) fixture {
	store := state.NewMemoryStore()
	return newFixture(t, store, store, scenarioData(), StaticGasPrice(30))
}

func TestNewEngineValidatesConfig(t *testing.T) {
	_, err := NewEngine(Config{})
	assert.Error(t, err)

	params := config.DefaultPolicyParameters
	params.BaselineEthPriceUSD = 0
	store := state.NewMemoryStore()
	_, err = NewEngine(Config{
		Repository: store, Market: StoredMarketData{Prices: store}, GasPrice: StaticGasPrice(30),
		Params: &params, PolicyName: "p", PolicyVersion: 1,
	})
	assert.Error(t, err)
}

func TestEvaluateScenarioARebalances(t *testing.T) {
	f := newScenarioFixture(t)
	ctx := context.Background()

	result, err := f.engine.Evaluate(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, types.StateRebalancing, result.Outcome)
	assert.True(t, result.Committed)
	require.NotNil(t, result.Vault)
	assert.Equal(t, "AAVE", result.Vault.Protocol)
	assert.Equal(t, 4.5, result.Vault.APY)

	require.NotNil(t, result.Transaction)
	assert.Equal(t, types.TransactionKindRebalance, result.Transaction.Kind)
	assert.Equal(t, 10000.0, result.Transaction.Amount)
	assert.InDelta(t, 23.85, result.Transaction.GasCost, 1e-9)

	a := result.Analysis
	require.NotNil(t, a)
	assert.Equal(t, "AAVE", a.TargetProtocol)
	assert.InDelta(t, 380, a.CurrentYield, 1e-9)
	assert.InDelta(t, 450, a.ProjectedYield, 1e-9)
	assert.InDelta(t, 70, a.YearlyBenefit, 1e-9)
	assert.InDelta(t, 47.70, a.Threshold, 1e-9)
	assert.InDelta(t, 23.85, a.GasCost, 1e-9)
	assert.InDelta(t, 46.15, a.NetBenefit, 1e-9)
	assert.Equal(t, types.TokenCategoryStablecoin, a.TokenCategory)
	assert.Equal(t, uint64(265000), a.GasDetails.GasLimit)
	assert.Nil(t, a.AVSRisk)

	txns, err := f.store.ListTransactions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, txns, 1)

	decisions, err := f.store.ListDecisions(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, types.StateRebalancing, decisions[0].Outcome)
	assert.Equal(t, "Compound", decisions[0].FromProtocol)
	assert.Equal(t, "AAVE", decisions[0].ToProtocol)
	require.NotNil(t, decisions[0].TransactionID)
	assert.Equal(t, result.Transaction.ID, *decisions[0].TransactionID)

	// The vault is now on the winner, so a second evaluation changes nothing.
	again, err := f.engine.Evaluate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.StateNoChange, again.Outcome)
	assert.Equal(t, types.ReasonAlreadyOptimal, again.Reason)
}

func TestEvaluateScenarioBBelowThreshold(t *testing.T) {
	data := scenarioData()
	data.Protocols[0].APY = 3.9
	store := state.NewMemoryStore()
	f := newFixture(t, store, store, data, StaticGasPrice(30))
	ctx := context.Background()

	result, err := f.engine.Evaluate(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, types.StateNoChange, result.Outcome)
	assert.Equal(t, types.ReasonBelowThreshold, result.Reason)
	assert.Equal(t, types.NoChangeMessage, result.Message)
	assert.Nil(t, result.Transaction)
	require.NotNil(t, result.Analysis)
	assert.InDelta(t, 10, result.Analysis.YearlyBenefit, 1e-9)

	txns, err := f.store.ListTransactions(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, txns)

	vault, err := f.store.GetVault(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Compound", vault.Protocol)
}

func TestEvaluateNeverSelectsInactiveProtocol(t *testing.T) {
	data := scenarioData()
	data.Protocols = append(data.Protocols, types.Protocol{
		Name: "Turbo", Kind: types.ProtocolKindLending, APY: 50, Active: false,
		SupportedTokens: []string{"USDC"}, GasOverhead: 100000,
	})
	store := state.NewMemoryStore()
	f := newFixture(t, store, store, data, StaticGasPrice(30))

	result, err := f.engine.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, types.StateRebalancing, result.Outcome)
	assert.Equal(t, "AAVE", result.Analysis.TargetProtocol)
}

func TestEvaluateAutoModeDisabled(t *testing.T) {
	data := scenarioData()
	data.Vaults[0].AutoMode = false
	data.Vaults[0].Token = "MISSING"
	store := state.NewMemoryStore()
	f := newFixture(t, store, store, data, StaticGasPrice(30))

	result, err := f.engine.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, types.StateNoChange, result.Outcome)
	assert.Equal(t, types.ReasonAutoModeDisabled, result.Reason)
}

func TestEvaluateBelowMinBalance(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		balance float64
		want    types.NoChangeReason
	}{
		{"stablecoin under 1000", "USDC", 999.99, types.ReasonBelowMinBalance},
		{"stablecoin at 1000", "USDC", 1000, types.ReasonBelowThreshold},
		{"lsd under 500", "wstETH", 499, types.ReasonBelowMinBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := scenarioData()
			data.Vaults[0].Token = tt.token
			data.Vaults[0].Balance = tt.balance
			store := state.NewMemoryStore()
			f := newFixture(t, store, store, data, StaticGasPrice(30))

			result, err := f.engine.Evaluate(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, types.StateNoChange, result.Outcome)
			assert.Equal(t, tt.want, result.Reason)
		})
	}
}

func TestEvaluateNoCompatibleProtocols(t *testing.T) {
	data := scenarioData()
	data.Vaults[0].Token = "wstETH"
	data.Vaults[0].Balance = 5000
	store := state.NewMemoryStore()
	f := newFixture(t, store, store, data, StaticGasPrice(30))

	result, err := f.engine.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, types.StateNoChange, result.Outcome)
	assert.Equal(t, types.ReasonNoCompatibleProtocols, result.Reason)
}

func TestEvaluateNotFoundErrors(t *testing.T) {
	f := newScenarioFixture(t)
	ctx := context.Background()

	_, err := f.engine.Evaluate(ctx, 99)
	assert.ErrorIs(t, err, ErrVaultNotFound)

	_, err = f.store.UpdateVault(ctx, 1, types.VaultUpdate{Token: ptr("NOPE")})
	require.NoError(t, err)
	_, err = f.engine.Evaluate(ctx, 1)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestPreviewIsIdempotentAndWritesNothing(t *testing.T) {
	f := newScenarioFixture(t)
	ctx := context.Background()

	first, err := f.engine.Preview(ctx, 1)
	require.NoError(t, err)
	second, err := f.engine.Preview(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, types.StateRebalancing, first.Outcome)
	assert.False(t, first.Committed)
	assert.Equal(t, first.Outcome, second.Outcome)
	assert.Equal(t, first.Analysis, second.Analysis)

	vault, err := f.store.GetVault(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Compound", vault.Protocol)

	txns, err := f.store.ListTransactions(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, txns)

	decisions, err := f.store.ListDecisions(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, decisions)
}

func TestEvaluateUsesPriceTrend(t *testing.T) {
	f := newScenarioFixture(t)
	ctx := context.Background()
	_, err := f.store.CreatePrice(ctx, types.PricePoint{Asset: "ethereum", Price: 3300, Timestamp: testNow})
	require.NoError(t, err)
	// Outside the 60 minute window.
	_, err = f.store.CreatePrice(ctx, types.PricePoint{Asset: "ethereum", Price: 1000, Timestamp: testNow.Add(-2 * time.Hour)})
	require.NoError(t, err)

	result, err := f.engine.Preview(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 10, result.Analysis.PriceChangePercent, 1e-9)
	// Gas is priced at the latest ETH price.
	assert.InDelta(t, 265000*30/1e9*3300, result.Analysis.GasCost, 1e-9)
}

type failingGas struct{}

func (failingGas) GasPriceGwei(ctx context.Context) (float64, error) {
	return 0, errors.New("rpc down")
}

func TestEvaluateGasSourceFailureUsesDefault(t *testing.T) {
	store := state.NewMemoryStore()
	f := newFixture(t, store, store, scenarioData(), failingGas{})

	result, err := f.engine.Preview(context.Background(), 1)
	require.NoError(t, err)
	assert.InDelta(t, 23.85, result.Analysis.GasCost, 1e-9)
}

// commitFailingRepo fails every rebalance commit.
type commitFailingRepo struct {
	*state.MemoryStore
}

func (r commitFailingRepo) CommitRebalance(ctx context.Context, c state.RebalanceCommit) (*types.Vault, *types.Transaction, error) {
	return nil, nil, errors.New("disk full")
}

func TestEvaluateCommitFailureAppliesNothing(t *testing.T) {
	store := state.NewMemoryStore()
	f := newFixture(t, commitFailingRepo{store}, store, scenarioData(), StaticGasPrice(30))
	ctx := context.Background()

	_, err := f.engine.Evaluate(ctx, 1)
	require.Error(t, err)

	vault, err := store.GetVault(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Compound", vault.Protocol)
	assert.Equal(t, 3.8, vault.APY)

	txns, err := store.ListTransactions(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestEvaluateAVSWinnerCarriesRiskDetails(t *testing.T) {
	data := state.SeedData{
		Tokens: []types.Token{
			{Symbol: "wstETH", Category: types.TokenCategoryLSD, BaseGasLimit: 65000, Active: true},
		},
		Protocols: []types.Protocol{
			{Name: "AAVE", Kind: types.ProtocolKindLending, APY: 3, Active: true, SupportedTokens: []string{"wstETH"}, GasOverhead: 220000},
			{
				Name: "EigenDA", Kind: types.ProtocolKindAVS, APY: 6.2, Active: true, SupportedTokens: []string{"wstETH"}, GasOverhead: 300000,
				AVS: &types.AVSMetrics{SlashingRisk: 0.02, NodeCount: 240, AvgUptimePercent: 99.9, SecurityScore: 90, RiskCategory: types.RiskCategoryLow},
			},
		},
		Vaults: []types.Vault{
			{Name: "LSD Vault", Balance: 100000, Token: "wstETH", Protocol: "AAVE", APY: 3, AutoMode: true},
		},
	}
	store := state.NewMemoryStore()
	f := newFixture(t, store, store, data, StaticGasPrice(30))

	result, err := f.engine.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, types.StateRebalancing, result.Outcome)
	require.NotNil(t, result.Analysis.AVSRisk)
	assert.Equal(t, 0.02, result.Analysis.AVSRisk.SlashingRisk)
	assert.InDelta(t, 0.98*1.35*0.999, result.Analysis.AVSRisk.ScoreMultiplier, 1e-9)
	assert.Equal(t, types.TokenCategoryLSD, result.Analysis.TokenCategory)
}

func TestEvaluateAllContinuesPastFailures(t *testing.T) {
	data := scenarioData()
	data.Vaults = append(data.Vaults,
		types.Vault{Name: "Manual", Balance: 50000, Token: "USDC", Protocol: "Compound", APY: 3.8, AutoMode: false},
		types.Vault{Name: "Broken", Balance: 50000, Token: "GHOST", Protocol: "Compound", APY: 3.8, AutoMode: true},
		types.Vault{Name: "Second", Balance: 20000, Token: "USDC", Protocol: "Compound", APY: 3.8, AutoMode: true},
	)
	store := state.NewMemoryStore()
	f := newFixture(t, store, store, data, StaticGasPrice(30))

	sweep, err := f.engine.EvaluateAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	assert.Equal(t, 3, sweep.Evaluated)
	assert.Equal(t, 1, sweep.Failed)
	assert.Equal(t, 2, sweep.Rebalanced)
	assert.Len(t, sweep.Results, 2)

	manual, err := store.GetVault(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Compound", manual.Protocol)
}

func TestOptimalPosition(t *testing.T) {
	f := newScenarioFixture(t)
	ctx := context.Background()

	pos, err := f.engine.OptimalPosition(ctx, "USDC", 5000)
	require.NoError(t, err)
	// AAVE: 4.5×0.4 + 85×0.3 + 97.5×0.3 = 56.55; Compound: 3.8×0.4 + 82×0.3 + 98.8×0.3 = 55.76
	assert.Equal(t, "AAVE", pos.Protocol.Name)
	assert.InDelta(t, 56.55, pos.Score, 1e-9)
	assert.Equal(t, 4.5, pos.ExpectedAPY)
	assert.InDelta(t, 225, pos.YearlyYield, 1e-9)
	assert.Equal(t, "Low", pos.Risk)

	_, err = f.engine.OptimalPosition(ctx, "NOPE", 1)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	_, err = f.engine.OptimalPosition(ctx, "wstETH", 1)
	assert.ErrorIs(t, err, ErrNoCompatibleProtocols)
}

func ptr[T any](v T) *T { return &v }
