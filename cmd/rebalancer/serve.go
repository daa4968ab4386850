package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yieldvault/rebalancer/internal/datafetcher"
	"github.com/yieldvault/rebalancer/internal/web"
	"github.com/yieldvault/rebalancer/internal/workers"
)

func runServe(ctx context.Context) error {
	a, err := bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	log.Info().Msg("Rebalancer starting...")

	if err := a.seed(ctx); err != nil {
		return err
	}

	coinGecko := datafetcher.NewCoinGeckoClient(cfg.Feeds)
	defiLlama, err := datafetcher.NewDefiLlamaClient(cfg.Feeds)
	if err != nil {
		return err
	}
	defer defiLlama.Close()

	engine, err := a.newEngine(ctx, coinGecko)
	if err != nil {
		return err
	}
	scorer, err := a.newScorer()
	if err != nil {
		return err
	}
	defer scorer.Close()

	// --- Workers ---
	prices := workers.NewPriceRefresher(coinGecko, a.repo, a.params.ReferenceAsset)
	if cfg.Workers.BackfillPriceHistory {
		window := time.Duration(a.params.PriceTrendWindowMinutes) * time.Minute
		if err := prices.Backfill(ctx, window); err != nil {
			log.Warn().Err(err).Msg("Price history backfill failed, trend starts empty")
		}
	}
	protocols := workers.NewProtocolRefresher(defiLlama, a.repo)
	if cfg.Workers.SyncAPYFromPools {
		protocols.WithPools(defiLlama)
	}

	var group workers.Group
	group.Add(
		workers.NewPeriodicWorker(prices, cfg.Workers.PriceRefreshInterval),
		workers.NewPeriodicWorker(protocols, cfg.Workers.ProtocolRefreshInterval),
	)
	if cfg.Workers.EvaluationEnabled {
		group.Add(workers.NewPeriodicWorker(workers.NewEvaluationSweep(engine), cfg.Workers.EvaluationInterval))
	} else {
		log.Warn().Msg("Automatic evaluation disabled; vaults are only evaluated on request")
	}
	group.Start(ctx)
	log.Info().Int("workers", group.Len()).Msg("Background workers started")

	// --- Web server ---
	server := web.NewWebServer(cfg.Server, web.Deps{Repo: a.repo, Engine: engine, Strategy: scorer})
	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("url", "http://localhost:"+cfg.Server.Port).Msg("Starting rebalancer API")
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err = <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("Web server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Workers.StopTimeout)
	defer cancel()
	var errs []error
	errs = append(errs, err)
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		errs = append(errs, shutdownErr)
	}
	if stopErr := group.Stop(cfg.Workers.StopTimeout); stopErr != nil {
		errs = append(errs, stopErr)
	}
	log.Info().Msg("Rebalancer stopped")
	return errors.Join(errs...)
}
