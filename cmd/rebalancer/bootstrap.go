package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/yieldvault/rebalancer/internal/config"
	"github.com/yieldvault/rebalancer/internal/llm"
	"github.com/yieldvault/rebalancer/internal/logger"
	"github.com/yieldvault/rebalancer/internal/optimizer"
	"github.com/yieldvault/rebalancer/internal/state"
	"github.com/yieldvault/rebalancer/internal/strategy"
	"github.com/yieldvault/rebalancer/internal/types"
)

var errMemoryDriver = errors.New("command requires STORAGE_DRIVER=postgres")

// app holds what every command needs: configuration, logging and storage.
type app struct {
	cfg       *config.Config
	repo      state.Repository
	pg        *state.PostgresStore
	logCloser io.Closer
	params    *types.PolicyParameters
}

// bootstrap loads configuration, sets up logging and opens the repository.
// The memory driver is always seeded since it starts empty; with migrate set,
// Postgres is migrated before use.
func bootstrap(ctx context.Context, migrate bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	closer, err := logger.Initialize(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{cfg: cfg, logCloser: closer}

	switch cfg.Database.Driver {
	case config.StorageDriverMemory:
		log.Warn().Msg("Using in-memory storage. Data is lost on exit.")
		a.repo = state.NewMemoryStore()
		if err := a.seed(ctx); err != nil {
			a.Close()
			return nil, err
		}
	default:
		pg, err := state.OpenPostgres(state.DBConfig{
			DSN:             cfg.Database.DSN(),
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.pg, a.repo = pg, pg
		if migrate {
			if err := pg.Migrate(); err != nil {
				a.Close()
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}
	}
	return a, nil
}

func (a *app) Close() {
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close repository")
		}
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}

func (a *app) postgres() (*state.PostgresStore, error) {
	if a.pg == nil {
		return nil, errMemoryDriver
	}
	return a.pg, nil
}

func (a *app) seed(ctx context.Context) error {
	return state.Seed(ctx, a.repo, state.SeedData{
		Tokens:    config.SeedTokens,
		Protocols: config.SeedProtocols,
		Vaults:    config.SeedVaults,
	})
}

// policy returns the active stored policy with the env overrides applied,
// saving the defaults as the first version when none is stored.
func (a *app) policy(ctx context.Context) (*types.PolicyParameters, error) {
	if a.params != nil {
		return a.params, nil
	}
	stored, err := state.EnsurePolicy(ctx, a.repo, a.cfg.Policy.Name, a.cfg.Policy.Version, config.DefaultPolicyParameters)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy parameters: %w", err)
	}
	params := config.PolicyWithOverrides(stored, a.cfg.Policy)
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy parameters: %w", err)
	}
	log.Info().
		Str("policyName", a.cfg.Policy.Name).
		Str("referenceAsset", params.ReferenceAsset).
		Msg("Policy parameters loaded successfully.")
	a.params = &params
	return a.params, nil
}

// newEngine builds the decision engine. live may be nil.
func (a *app) newEngine(ctx context.Context, live optimizer.PriceQuoter) (*optimizer.Engine, error) {
	params, err := a.policy(ctx)
	if err != nil {
		return nil, err
	}
	return optimizer.NewEngine(optimizer.Config{
		Repository:    a.repo,
		Market:        optimizer.StoredMarketData{Prices: a.repo, Live: live},
		GasPrice:      optimizer.StaticGasPrice(a.cfg.Feeds.GasPriceGwei),
		Params:        params,
		PolicyName:    a.cfg.Policy.Name,
		PolicyVersion: a.cfg.Policy.Version,
	})
}

func (a *app) newScorer() (*strategy.Scorer, error) {
	provider, err := llm.NewProvider(a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	log.Info().Str("provider", provider.Name()).Msg("Strategy scorer provider selected")
	return strategy.NewScorer(strategy.Config{
		Provider:    provider,
		Protocols:   a.repo,
		Timeout:     a.cfg.LLM.Timeout,
		MaxTokens:   a.cfg.LLM.MaxTokens,
		Temperature: a.cfg.LLM.Temperature,
		CacheTTL:    a.cfg.LLM.CacheTTL,
	})
}
