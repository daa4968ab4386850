/*
This file fetches protocol TVL, TVL changes and yield pools from DefiLlama.

The risk score combines three signals on a 0-100 scale:
  - TVL stability: |change_1d| < 10% scores 1, otherwise 0.5 (weight 0.4)
  - Age: years since launch / 3, capped at 1 (weight 0.3)
  - Recent changes: |change_7d| < 20% scores 1, otherwise 0.5 (weight 0.3)
*/

package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/yieldvault/rebalancer/internal/cache"
	"github.com/yieldvault/rebalancer/internal/config"
	"github.com/yieldvault/rebalancer/internal/logger"
	"github.com/yieldvault/rebalancer/internal/utils"
)

var llamaLogger = logger.GetForComponent("defillama_retriever")

var ErrInvalidTVLData = errors.New("invalid tvl data received")

const (
	sourceDefiLlama = "defillama"
	poolsCacheKey   = "pools"
)

// Pool is one DefiLlama yield pool.
type Pool struct {
	Pool       string  `json:"pool"`
	Chain      string  `json:"chain"`
	Project    string  `json:"project"`
	Symbol     string  `json:"symbol"`
	TVLUsd     float64 `json:"tvlUsd"`
	APY        float64 `json:"apy"`
	APYBase    float64 `json:"apyBase"`
	APYReward  float64 `json:"apyReward"`
	StableCoin bool    `json:"stablecoin"`
}

// ProtocolHealth is the TVL-derived health of a protocol.
type ProtocolHealth struct {
	TVL          float64
	TVLChange24h float64
	TVLChange7d  float64
	RiskScore    float64
}

type protocolResponse struct {
	Name string `json:"name"`
	TVL  []struct {
		Date              int64   `json:"date"`
		TotalLiquidityUSD float64 `json:"totalLiquidityUSD"`
	} `json:"tvl"`
	Change1d     *float64 `json:"change_1d"`
	Change7d     *float64 `json:"change_7d"`
	DateLaunched *float64 `json:"date_launched"` // unix millis
	ListedAt     *int64   `json:"listedAt"`      // unix seconds
}

type poolsResponse struct {
	Status string `json:"status"`
	Data   []Pool `json:"data"`
}

type DefiLlamaClient struct {
	api    *resty.Client
	yields *resty.Client
	pools  *cache.TTLCache[[]Pool]
	now    func() time.Time
}

func NewDefiLlamaClient(cfg config.FeedsConfig) (*DefiLlamaClient, error) {
	pools, err := cache.New[[]Pool](16, cfg.PoolsCacheTTL)
	if err != nil {
		return nil, err
	}
	newClient := func(baseURL string) *resty.Client {
		return resty.New().
			SetBaseURL(baseURL).
			SetTimeout(cfg.Timeout).
			SetRetryCount(cfg.RetryCount).
			SetRetryWaitTime(500 * time.Millisecond).
			SetHeader("Accept", "application/json")
	}
	return &DefiLlamaClient{
		api:    newClient(cfg.DefiLlamaBaseURL),
		yields: newClient(cfg.DefiLlamaYieldsURL),
		pools:  pools,
		now:    time.Now,
	}, nil
}

// ProtocolSlug converts a registry name to a DefiLlama slug, e.g. "Witness Chain" -> "witness-chain".
func ProtocolSlug(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

func (c *DefiLlamaClient) fetchProtocol(ctx context.Context, slug string) (*protocolResponse, error) {
	path := "/protocol/" + slug
	var result protocolResponse
	resp, err := c.api.R().SetContext(ctx).SetResult(&result).Get(path)
	if err := checkResponse(sourceDefiLlama, path, resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

// ProtocolHealth returns TVL, TVL changes and the derived risk score in one request.
func (c *DefiLlamaClient) ProtocolHealth(ctx context.Context, slug string) (*ProtocolHealth, error) {
	data, err := c.fetchProtocol(ctx, slug)
	if err != nil {
		return nil, err
	}
	tvl, err := latestTVL(data)
	if err != nil {
		return nil, err
	}

	health := &ProtocolHealth{
		TVL:          tvl,
		TVLChange24h: finiteOrZero(data.Change1d),
		TVLChange7d:  finiteOrZero(data.Change7d),
	}
	health.RiskScore = calculateRiskScore(health.TVLChange24h, health.TVLChange7d, launchTime(data), c.now())

	llamaLogger.Debug().
		Str("protocol", slug).
		Float64("tvl", health.TVL).
		Float64("tvlChange24h", health.TVLChange24h).
		Float64("tvlChange7d", health.TVLChange7d).
		Float64("riskScore", health.RiskScore).
		Msg("Fetched protocol health")
	return health, nil
}

// PoolsForProtocol returns the yield pools of one project. The full pool list
// is cached for the configured TTL.
func (c *DefiLlamaClient) PoolsForProtocol(ctx context.Context, project string) ([]Pool, error) {
	all, err := c.allPools(ctx)
	if err != nil {
		return nil, err
	}
	var out []Pool
	for _, p := range all {
		if strings.EqualFold(p.Project, project) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *DefiLlamaClient) allPools(ctx context.Context) ([]Pool, error) {
	if cached, ok := c.pools.Get(poolsCacheKey); ok {
		return cached, nil
	}
	var result poolsResponse
	resp, err := c.yields.R().SetContext(ctx).SetResult(&result).Get("/pools")
	if err := checkResponse(sourceDefiLlama, "/pools", resp, err); err != nil {
		return nil, err
	}
	c.pools.Set(poolsCacheKey, result.Data)
	llamaLogger.Debug().Int("pools", len(result.Data)).Msg("Fetched yield pools")
	return result.Data, nil
}

func (c *DefiLlamaClient) Close() {
	c.pools.Close()
}

func latestTVL(data *protocolResponse) (float64, error) {
	if len(data.TVL) == 0 {
		return 0, fmt.Errorf("%w: no tvl series for %s", ErrInvalidTVLData, data.Name)
	}
	tvl := data.TVL[len(data.TVL)-1].TotalLiquidityUSD
	if !utils.IsFinite(tvl) || tvl < 0 {
		return 0, fmt.Errorf("%w: tvl %f for %s", ErrInvalidTVLData, tvl, data.Name)
	}
	return tvl, nil
}

func launchTime(data *protocolResponse) time.Time {
	switch {
	case data.DateLaunched != nil && *data.DateLaunched > 0:
		return time.UnixMilli(int64(*data.DateLaunched))
	case data.ListedAt != nil && *data.ListedAt > 0:
		return time.Unix(*data.ListedAt, 0)
	default:
		return time.Time{}
	}
}

// calculateRiskScore returns a 0-100 health score. A zero launch time counts as launched now.
func calculateRiskScore(change1d, change7d float64, launched, now time.Time) float64 {
	stability := 0.5
	if math.Abs(change1d) < 10 {
		stability = 1
	}
	recent := 0.5
	if math.Abs(change7d) < 20 {
		recent = 1
	}
	ageScore := 0.0
	if !launched.IsZero() && launched.Before(now) {
		years := now.Sub(launched).Hours() / (24 * 365)
		ageScore = math.Min(years/3, 1)
	}
	return (stability*0.4 + ageScore*0.3 + recent*0.3) * 100
}

func finiteOrZero(v *float64) float64 {
	if v == nil || !utils.IsFinite(*v) {
		return 0
	}
	return *v
}
