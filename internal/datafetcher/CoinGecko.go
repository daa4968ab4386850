/*
This file fetches spot prices and short price ranges from the CoinGecko API.

Prices are validated before they reach the price series: a zero, negative or
non-finite price is an upstream error, never a data point.
*/

package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/yieldvault/rebalancer/internal/config"
	"github.com/yieldvault/rebalancer/internal/logger"
	"github.com/yieldvault/rebalancer/internal/metrics"
	"github.com/yieldvault/rebalancer/internal/types"
	"github.com/yieldvault/rebalancer/internal/utils"
)

var priceLogger = logger.GetForComponent("price_retriever")

var (
	ErrInvalidPriceData = errors.New("invalid price data received")
	ErrUpstream         = errors.New("upstream request failed")
)

const sourceCoinGecko = "coingecko"

type CoinGeckoClient struct {
	client *resty.Client
}

func NewCoinGeckoClient(cfg config.FeedsConfig) *CoinGeckoClient {
	client := resty.New().
		SetBaseURL(cfg.CoinGeckoBaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Accept", "application/json")
	if cfg.CoinGeckoAPIKey != "" {
		client.SetHeader("x-cg-demo-api-key", cfg.CoinGeckoAPIKey)
	}
	return &CoinGeckoClient{client: client}
}

// SimplePrices returns the USD price for each CoinGecko id.
func (c *CoinGeckoClient) SimplePrices(ctx context.Context, ids ...string) (map[string]float64, error) {
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}

	var result map[string]map[string]float64
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":           strings.Join(ids, ","),
			"vs_currencies": "usd",
		}).
		SetResult(&result).
		Get("/simple/price")
	if err := checkResponse(sourceCoinGecko, "/simple/price", resp, err); err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(result))
	for id, quote := range result {
		usd, ok := quote["usd"]
		if !ok || !utils.IsFinite(usd) || usd <= 0 {
			priceLogger.Warn().Str("asset", id).Float64("price", usd).Msg("Discarding invalid price")
			continue
		}
		prices[id] = usd
	}
	return prices, nil
}

// LatestPrice returns the USD price of one asset. asset may be a CoinGecko id
// or a token symbol.
func (c *CoinGeckoClient) LatestPrice(ctx context.Context, asset string) (float64, error) {
	id := config.CoinGeckoID(asset)
	prices, err := c.SimplePrices(ctx, id)
	if err != nil {
		return 0, err
	}
	price, ok := prices[id]
	if !ok {
		metrics.UpstreamErrors.WithLabelValues(sourceCoinGecko).Inc()
		return 0, fmt.Errorf("%w: no usd price for %s", ErrInvalidPriceData, id)
	}
	return price, nil
}

type marketChartResponse struct {
	Prices [][]float64 `json:"prices"`
}

// PriceRange returns the price points between from and to, oldest first.
// Invalid points are dropped.
func (c *CoinGeckoClient) PriceRange(ctx context.Context, asset string, from, to time.Time) ([]types.PricePoint, error) {
	id := config.CoinGeckoID(asset)
	path := "/coins/" + id + "/market_chart/range"

	var result marketChartResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"vs_currency": "usd",
			"from":        strconv.FormatInt(from.Unix(), 10),
			"to":          strconv.FormatInt(to.Unix(), 10),
		}).
		SetResult(&result).
		Get(path)
	if err := checkResponse(sourceCoinGecko, path, resp, err); err != nil {
		return nil, err
	}

	points := make([]types.PricePoint, 0, len(result.Prices))
	dropped := 0
	for _, pair := range result.Prices {
		if len(pair) != 2 || pair[0] <= 0 || !utils.IsFinite(pair[1]) || pair[1] <= 0 {
			dropped++
			continue
		}
		points = append(points, types.PricePoint{
			Asset:     id,
			Price:     pair[1],
			Timestamp: time.UnixMilli(int64(pair[0])).UTC(),
		})
	}
	if dropped > 0 {
		priceLogger.Warn().Str("asset", id).Int("dropped", dropped).Msg("Dropped invalid price points")
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points, nil
}

func checkResponse(source, path string, resp *resty.Response, err error) error {
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues(source).Inc()
		return fmt.Errorf("%w: %s %s: %v", ErrUpstream, source, path, err)
	}
	if resp.IsError() {
		metrics.UpstreamErrors.WithLabelValues(source).Inc()
		body := resp.String()
		if len(body) > 200 {
			body = body[:200] + "..."
		}
		return fmt.Errorf("%w: %s %s: HTTP %d: %s", ErrUpstream, source, path, resp.StatusCode(), body)
	}
	return nil
}
