package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldvault/rebalancer/internal/types"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "none")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, StorageDriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 10*time.Second, cfg.Feeds.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Workers.PriceRefreshInterval)
	assert.Equal(t, 5*time.Minute, cfg.Workers.ProtocolRefreshInterval)
	assert.Equal(t, 30.0, cfg.Feeds.GasPriceGwei)
}

func TestLoadRejectsMissingProviderKey(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "none")
	t.Setenv("STORAGE_DRIVER", "sqlite")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_DRIVER")
}

func TestDefaultPolicyIsValid(t *testing.T) {
	require.NoError(t, DefaultPolicyParameters.Validate())
	assert.Equal(t, 1000.0, DefaultPolicyParameters.MinBalanceFor(types.TokenCategoryStablecoin))
	assert.Equal(t, 1.5, DefaultPolicyParameters.ThresholdMultiplierFor(types.TokenCategoryLSD))
	assert.Equal(t, 2.0, DefaultPolicyParameters.ThresholdMultiplierFor(types.TokenCategory("unknown")))
}

func TestPolicyWithOverridesCopiesMaps(t *testing.T) {
	out := PolicyWithOverrides(DefaultPolicyParameters, PolicyConfig{DefaultEthPriceUSD: 2500})
	out.MinBalance[types.TokenCategoryLSD] = 1

	assert.Equal(t, 2500.0, out.DefaultEthPriceUSD)
	assert.Equal(t, 500.0, DefaultPolicyParameters.MinBalance[types.TokenCategoryLSD])
}

func TestCoinGeckoID(t *testing.T) {
	assert.Equal(t, "usd-coin", CoinGeckoID("usdc"))
	assert.Equal(t, "ethereum", CoinGeckoID("ethereum"))
	assert.Equal(t, "lido-dao", CoinGeckoID("LIDO-DAO"))
}
