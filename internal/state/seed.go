package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/yieldvault/rebalancer/internal/logger"
	"github.com/yieldvault/rebalancer/internal/types"
)

var seedLogger = logger.GetForComponent("state_seed")

// SeedData is the reference data written into an empty store.
type SeedData struct {
	Tokens    []types.Token
	Protocols []types.Protocol
	Vaults    []types.Vault
}

// Seed fills each empty table from data. Tables that already hold rows are left alone.
func Seed(ctx context.Context, repo Repository, data SeedData) error {
	tokens, err := repo.ListTokens(ctx)
	if err != nil {
		return fmt.Errorf("seed: list tokens: %w", err)
	}
	if len(tokens) == 0 {
		for _, t := range data.Tokens {
			if _, err := repo.CreateToken(ctx, t); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
		}
		seedLogger.Info().Int("count", len(data.Tokens)).Msg("Seeded tokens")
	}

	protocols, err := repo.ListProtocols(ctx)
	if err != nil {
		return fmt.Errorf("seed: list protocols: %w", err)
	}
	if len(protocols) == 0 {
		for _, p := range data.Protocols {
			if _, err := repo.CreateProtocol(ctx, p); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
		}
		seedLogger.Info().Int("count", len(data.Protocols)).Msg("Seeded protocols")
	}

	vaults, err := repo.ListVaults(ctx)
	if err != nil {
		return fmt.Errorf("seed: list vaults: %w", err)
	}
	if len(vaults) == 0 {
		for _, v := range data.Vaults {
			if _, err := repo.CreateVault(ctx, v); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
		}
		seedLogger.Info().Int("count", len(data.Vaults)).Msg("Seeded vaults")
	}
	return nil
}

// EnsurePolicy returns the active policy for configName, saving fallback as
// version 1 when none is stored yet.
func EnsurePolicy(ctx context.Context, store PolicyStore, configName string, version int, fallback types.PolicyParameters) (types.PolicyParameters, error) {
	active, err := store.LoadActivePolicyParameters(ctx, configName)
	if err == nil {
		return *active, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return types.PolicyParameters{}, err
	}
	if _, err := store.SavePolicyParameters(ctx, fallback, configName, version, true); err != nil {
		return types.PolicyParameters{}, fmt.Errorf("failed to save default policy: %w", err)
	}
	seedLogger.Info().Str("config", configName).Int("version", version).Msg("Stored default policy parameters")
	return fallback, nil
}
