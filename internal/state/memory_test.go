package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldvault/rebalancer/internal/config"
	"github.com/yieldvault/rebalancer/internal/logger"
	"github.com/yieldvault/rebalancer/internal/types"
)

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	err := Seed(context.Background(), store, SeedData{
		Tokens:    config.SeedTokens,
		Protocols: config.SeedProtocols,
		Vaults:    config.SeedVaults,
	})
	require.NoError(t, err)
	return store
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)

	require.NoError(t, Seed(ctx, store, SeedData{
		Tokens:    config.SeedTokens,
		Protocols: config.SeedProtocols,
		Vaults:    config.SeedVaults,
	}))

	protocols, err := store.ListProtocols(ctx)
	require.NoError(t, err)
	assert.Len(t, protocols, len(config.SeedProtocols))

	vaults, err := store.ListVaults(ctx)
	require.NoError(t, err)
	assert.Len(t, vaults, len(config.SeedVaults))
}

func TestSeedLogsUnderItsOwnComponent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.log")
	closer, err := logger.Initialize(logger.Options{Level: "info", Format: "json", File: path})
	require.NoError(t, err)
	t.Cleanup(func() {
		logger.Initialize(logger.Options{Level: "info"})
		closer.Close()
	})

	seededStore(t)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"state_seed"`)
	assert.Contains(t, string(data), `"message":"Seeded tokens"`)
	assert.NotContains(t, string(data), `"component":"state_postgres"`)
}

func TestMemoryStoreTokens(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)

	usdc, err := store.GetToken(ctx, "USDC")
	require.NoError(t, err)
	assert.Equal(t, types.TokenCategoryStablecoin, usdc.Category)
	assert.Equal(t, uint64(45000), usdc.BaseGasLimit)

	_, err = store.GetToken(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)

	inactive := *usdc
	inactive.Active = false
	_, err = store.CreateToken(ctx, inactive)
	require.NoError(t, err)

	active, err := store.ListActiveTokens(ctx)
	require.NoError(t, err)
	for _, tok := range active {
		assert.NotEqual(t, "USDC", tok.Symbol)
	}
}

func TestMemoryStoreProtocolCopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)

	p, err := store.GetProtocol(ctx, 1)
	require.NoError(t, err)
	p.SupportedTokens[0] = "MUTATED"

	again, err := store.GetProtocol(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, "MUTATED", again.SupportedTokens[0])
}

func TestMemoryStoreToggleAndUpdateProtocol(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)

	toggled, err := store.ToggleProtocol(ctx, 1)
	require.NoError(t, err)
	assert.False(t, toggled.Active)

	active, err := store.ListActiveProtocols(ctx)
	require.NoError(t, err)
	for _, p := range active {
		assert.NotEqual(t, int64(1), p.ID)
	}

	apy := 9.9
	updated, err := store.UpdateProtocol(ctx, 2, types.ProtocolUpdate{APY: &apy})
	require.NoError(t, err)
	assert.Equal(t, 9.9, updated.APY)
	assert.Equal(t, "Compound", updated.Name)

	_, err = store.ToggleProtocol(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCommitRebalance(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)

	vault, txn, err := store.CommitRebalance(ctx, RebalanceCommit{
		VaultID:          1,
		ExpectedProtocol: "Compound",
		NewProtocol:      "AAVE",
		NewAPY:           4.5,
		Amount:           10000,
		GasCostUSD:       23.85,
	})
	require.NoError(t, err)
	assert.Equal(t, "AAVE", vault.Protocol)
	assert.Equal(t, 4.5, vault.APY)
	assert.Equal(t, types.TransactionKindRebalance, txn.Kind)
	assert.Equal(t, 23.85, txn.GasCost)
	assert.False(t, txn.Timestamp.IsZero())

	// A second commit evaluated against the old protocol must be refused.
	_, _, err = store.CommitRebalance(ctx, RebalanceCommit{
		VaultID:          1,
		ExpectedProtocol: "Compound",
		NewProtocol:      "Morpho",
		NewAPY:           4.2,
		Amount:           10000,
	})
	assert.ErrorIs(t, err, ErrStaleVault)

	txns, err := store.ListTransactions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, txns, 1)

	stored, err := store.GetVault(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "AAVE", stored.Protocol)
}

func TestMemoryStoreConcurrentCommitsOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		refused int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := store.CommitRebalance(ctx, RebalanceCommit{
				VaultID: 1, ExpectedProtocol: "Compound", NewProtocol: "AAVE", NewAPY: 4.5, Amount: 10000,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, ErrStaleVault) {
				refused++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 7, refused)
}

func TestMemoryStoreTransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, kind := range []types.TransactionKind{types.TransactionKindDeposit, types.TransactionKindWithdraw, types.TransactionKindDeposit} {
		_, err := store.CreateTransaction(ctx, types.Transaction{
			VaultID: 1, Kind: kind, Amount: float64(100 * (i + 1)), Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	txns, err := store.ListTransactions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.Equal(t, 300.0, txns[0].Amount)
	assert.Equal(t, 100.0, txns[2].Amount)

	_, err = store.CreateTransaction(ctx, types.Transaction{VaultID: 42, Kind: types.TransactionKindDeposit, Amount: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorePricesWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()

	for i, price := range []float64{3000, 3050, 3100} {
		_, err := store.CreatePrice(ctx, types.PricePoint{
			Asset: "ethereum", Price: price, Timestamp: now.Add(time.Duration(i-2) * 40 * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err := store.CreatePrice(ctx, types.PricePoint{Asset: "bitcoin", Price: 60000, Timestamp: now})
	require.NoError(t, err)

	window, err := store.ListPrices(ctx, "ethereum", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, 3050.0, window[0].Price)
	assert.Equal(t, 3100.0, window[1].Price)

	latest, err := store.GetLatestPrice(ctx, "ethereum")
	require.NoError(t, err)
	assert.Equal(t, 3100.0, latest.Price)

	_, err = store.GetLatestPrice(ctx, "dogecoin")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDecisionsAndSummary(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	_, _, err := store.CommitRebalance(ctx, RebalanceCommit{
		VaultID: 1, ExpectedProtocol: "Compound", NewProtocol: "AAVE", NewAPY: 4.5, Amount: 10000, GasCostUSD: 23.85,
	})
	require.NoError(t, err)

	records := []types.DecisionRecord{
		{EvaluationID: "a", VaultID: 1, Outcome: types.StateRebalancing, EvaluatedAt: base},
		{EvaluationID: "b", VaultID: 1, Outcome: types.StateNoChange, Reason: types.ReasonAlreadyOptimal, EvaluatedAt: base.Add(time.Minute)},
		{EvaluationID: "c", VaultID: 1, Outcome: types.StateNoChange, Reason: types.ReasonAlreadyOptimal, EvaluatedAt: base.Add(2 * time.Minute)},
		{EvaluationID: "d", VaultID: 2, Outcome: types.StateNoChange, Reason: types.ReasonBelowMinBalance, EvaluatedAt: base.Add(3 * time.Minute)},
	}
	for _, r := range records {
		_, err := store.RecordDecision(ctx, r)
		require.NoError(t, err)
	}

	list, err := store.ListDecisions(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].EvaluationID)
	assert.Equal(t, "b", list[1].EvaluationID)

	summary, err := store.DecisionSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.TotalEvaluations)
	assert.Equal(t, 1, summary.Rebalances)
	assert.Equal(t, 2, summary.NoChangeByReason[types.ReasonAlreadyOptimal])
	assert.Equal(t, 1, summary.NoChangeByReason[types.ReasonBelowMinBalance])
	assert.InDelta(t, 23.85, summary.TotalGasSpentUSD, 1e-9)
	assert.InDelta(t, 10000, summary.TotalRebalancedAmt, 1e-9)
	require.NotNil(t, summary.LastEvaluationAt)
	assert.True(t, summary.LastEvaluationAt.Equal(base.Add(3*time.Minute)))
}

func TestEnsurePolicyStoresDefaultOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	params, err := EnsurePolicy(ctx, store, "default_rebalance_policy", 1, config.DefaultPolicyParameters)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultPolicyParameters.BaselineEthPriceUSD, params.BaselineEthPriceUSD)

	custom := config.DefaultPolicyParameters
	custom.TrendWeight = 0.25
	_, err = store.SavePolicyParameters(ctx, custom, "default_rebalance_policy", 2, true)
	require.NoError(t, err)

	params, err = EnsurePolicy(ctx, store, "default_rebalance_policy", 1, config.DefaultPolicyParameters)
	require.NoError(t, err)
	assert.Equal(t, 0.25, params.TrendWeight)

	_, err = store.LoadActivePolicyParameters(ctx, "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreLatestPriceHonoursCancellation(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.CreatePrice(context.Background(), types.PricePoint{Asset: "ethereum", Price: 3000})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.GetLatestPrice(ctx, "ethereum")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrNotFound))

	_, err = store.GetLatestPrice(context.Background(), "bitcoin")
	assert.ErrorIs(t, err, ErrNotFound)
}
