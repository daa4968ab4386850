package optimizer

import (
	"context"
	"errors"
	"time"

	"github.com/yieldvault/rebalancer/internal/state"
	"github.com/yieldvault/rebalancer/internal/types"
)

// MarketData is the engine's view of the reference asset price series.
type MarketData interface {
	LatestPrice(ctx context.Context, asset string) (float64, error)
	// PriceHistory returns points at or after since, oldest first.
	PriceHistory(ctx context.Context, asset string, since time.Time) ([]types.PricePoint, error)
}

// GasPriceSource supplies the current gas price in gwei.
type GasPriceSource interface {
	GasPriceGwei(ctx context.Context) (float64, error)
}

// StaticGasPrice is a fixed gas price, e.g. from GAS_PRICE_GWEI.
type StaticGasPrice float64

func (g StaticGasPrice) GasPriceGwei(ctx context.Context) (float64, error) {
	return float64(g), nil
}

// PriceQuoter fetches a live spot price.
type PriceQuoter interface {
	LatestPrice(ctx context.Context, asset string) (float64, error)
}

// StoredMarketData serves market data from the persisted price series, which
// the price refresher keeps current. A failed refresh leaves the last good
// points in place. Live, when set, is only asked while the series is empty.
type StoredMarketData struct {
	Prices state.PriceStore
	Live   PriceQuoter
}

func (m StoredMarketData) LatestPrice(ctx context.Context, asset string) (float64, error) {
	p, err := m.Prices.GetLatestPrice(ctx, asset)
	if errors.Is(err, state.ErrNotFound) && m.Live != nil {
		return m.Live.LatestPrice(ctx, asset)
	}
	if err != nil {
		return 0, err
	}
	return p.Price, nil
}

func (m StoredMarketData) PriceHistory(ctx context.Context, asset string, since time.Time) ([]types.PricePoint, error) {
	return m.Prices.ListPrices(ctx, asset, since)
}
