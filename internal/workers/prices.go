package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yieldvault/rebalancer/internal/config"
	"github.com/yieldvault/rebalancer/internal/logger"
	"github.com/yieldvault/rebalancer/internal/state"
	"github.com/yieldvault/rebalancer/internal/types"
)

var priceLogger = logger.GetForComponent("price_refresher")

// PriceSource is the subset of the CoinGecko client the refresher needs.
type PriceSource interface {
	SimplePrices(ctx context.Context, ids ...string) (map[string]float64, error)
	PriceRange(ctx context.Context, asset string, from, to time.Time) ([]types.PricePoint, error)
}

// PriceRefresher appends the current USD price of each asset to the stored
// series. A failed fetch writes nothing, so readers keep the last good point.
type PriceRefresher struct {
	source PriceSource
	store  state.PriceStore
	ids    []string
	now    func() time.Time
}

// NewPriceRefresher tracks assets, given as symbols or CoinGecko ids.
func NewPriceRefresher(source PriceSource, store state.PriceStore, assets ...string) *PriceRefresher {
	seen := make(map[string]bool, len(assets))
	var ids []string
	for _, a := range assets {
		id := config.CoinGeckoID(a)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return &PriceRefresher{source: source, store: store, ids: ids, now: time.Now}
}

func (r *PriceRefresher) Name() string { return "price_refresh" }

func (r *PriceRefresher) Run(ctx context.Context) error {
	prices, err := r.source.SimplePrices(ctx, r.ids...)
	if err != nil {
		return fmt.Errorf("failed to fetch prices: %w", err)
	}

	ts := r.now().UTC()
	var errs []error
	for _, id := range r.ids {
		price, ok := prices[id]
		if !ok {
			priceLogger.Warn().Str("asset", id).Msg("No price returned for asset")
			continue
		}
		if _, err := r.store.CreatePrice(ctx, types.PricePoint{Asset: id, Price: price, Timestamp: ts}); err != nil {
			errs = append(errs, fmt.Errorf("store price for %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Backfill loads the last window of history for each asset that has no
// points inside it yet, so the trend is available right after startup.
func (r *PriceRefresher) Backfill(ctx context.Context, window time.Duration) error {
	to := r.now().UTC()
	from := to.Add(-window)

	var errs []error
	for _, id := range r.ids {
		existing, err := r.store.ListPrices(ctx, id, from)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(existing) >= 2 {
			continue
		}

		points, err := r.source.PriceRange(ctx, id, from, to)
		if err != nil {
			errs = append(errs, fmt.Errorf("backfill %s: %w", id, err))
			continue
		}
		for _, p := range points {
			if _, err := r.store.CreatePrice(ctx, p); err != nil {
				errs = append(errs, fmt.Errorf("backfill %s: %w", id, err))
				break
			}
		}
		priceLogger.Info().Str("asset", id).Int("points", len(points)).Msg("Backfilled price history")
	}
	return errors.Join(errs...)
}
