package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldvault/rebalancer/internal/config"
	"github.com/yieldvault/rebalancer/internal/llm"
	"github.com/yieldvault/rebalancer/internal/optimizer"
	"github.com/yieldvault/rebalancer/internal/state"
	"github.com/yieldvault/rebalancer/internal/strategy"
	"github.com/yieldvault/rebalancer/internal/types"
)

func newTestServer(t *testing.T) (*WebServer, *state.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := state.NewMemoryStore()
	require.NoError(t, state.Seed(ctx, store, state.SeedData{
		Tokens:    config.SeedTokens,
		Protocols: config.SeedProtocols,
		Vaults:    config.SeedVaults,
	}))
	_, err := store.CreatePrice(ctx, types.PricePoint{Asset: "ethereum", Price: 3000, Timestamp: time.Now().UTC()})
	require.NoError(t, err)

	params := config.DefaultPolicyParameters
	engine, err := optimizer.NewEngine(optimizer.Config{
		Repository:    store,
		Market:        optimizer.StoredMarketData{Prices: store},
		GasPrice:      optimizer.StaticGasPrice(30),
		Params:        &params,
		PolicyName:    "test_policy",
		PolicyVersion: 1,
	})
	require.NoError(t, err)

	provider, err := llm.NewProvider(config.LLMConfig{Provider: "none"})
	require.NoError(t, err)
	scorer, err := strategy.NewScorer(strategy.Config{Provider: provider, Protocols: store})
	require.NoError(t, err)
	t.Cleanup(scorer.Close)

	ws := NewWebServer(config.ServerConfig{}, Deps{Repo: store, Engine: engine, Strategy: scorer})
	return ws, store
}

func do(t *testing.T, ws *WebServer, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRegistryRoutes(t *testing.T) {
	ws, _ := newTestServer(t)

	rec := do(t, ws, http.MethodGet, "/api/tokens", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]types.Token](t, rec), len(config.SeedTokens))

	rec = do(t, ws, http.MethodGet, "/api/tokens/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, ws, http.MethodGet, "/api/protocols", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]types.Protocol](t, rec), len(config.SeedProtocols))

	rec = do(t, ws, http.MethodGet, "/api/prices/ETH", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]types.PricePoint](t, rec), 1)

	rec = do(t, ws, http.MethodGet, "/api/prices/ETH?minutes=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateProtocolValidation(t *testing.T) {
	ws, _ := newTestServer(t)

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"missing name", map[string]interface{}{"type": "lending", "apy": 3, "supportedTokens": []string{"USDC"}}, http.StatusBadRequest},
		{"negative apy", map[string]interface{}{"name": "Spark", "type": "lending", "apy": -1, "supportedTokens": []string{"USDC"}}, http.StatusBadRequest},
		{"unknown field", map[string]interface{}{"name": "Spark", "bogus": true}, http.StatusBadRequest},
		{"avs without metrics", map[string]interface{}{"name": "Hyperlane", "type": "avs", "apy": 5, "supportedTokens": []string{"wstETH"}}, http.StatusBadRequest},
		{"valid", map[string]interface{}{"name": "Spark", "type": "lending", "apy": 4.9, "supportedTokens": []string{"DAI"}, "gasOverhead": 200000, "healthScore": 75}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, ws, http.MethodPost, "/api/protocols", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestErrorShape(t *testing.T) {
	ws, _ := newTestServer(t)

	rec := do(t, ws, http.MethodGet, "/api/vaults/99", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "Not Found", body["error"])
	assert.NotEmpty(t, body["message"])
	assert.NotEmpty(t, body["timestamp"])

	rec = do(t, ws, http.MethodGet, "/api/vaults/abc", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnmatchedRoutesUseErrorShape(t *testing.T) {
	ws, _ := newTestServer(t)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/api/nope", http.StatusNotFound},
		{http.MethodGet, "/api/vaults/abc", http.StatusNotFound},
		{http.MethodPost, "/unknown", http.StatusNotFound},
		{http.MethodDelete, "/api/vaults/1", http.StatusMethodNotAllowed},
		{http.MethodPut, "/api/protocols", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := do(t, ws, tt.method, tt.path, nil)
			require.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

			body := decode[map[string]interface{}](t, rec)
			assert.Equal(t, http.StatusText(tt.status), body["error"])
			assert.NotEmpty(t, body["message"])
			assert.NotEmpty(t, body["timestamp"])
		})
	}
}

func TestPreflightOnAnyPath(t *testing.T) {
	ws, _ := newTestServer(t)

	for _, path := range []string{"/api/vaults", "/api/vaults/1/optimize", "/api/nope"} {
		rec := do(t, ws, http.MethodOptions, path, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code, path)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), path)
		assert.Empty(t, rec.Body.String(), path)
	}
}

func TestProtocolUpdateAndToggle(t *testing.T) {
	ws, store := newTestServer(t)

	rec := do(t, ws, http.MethodPatch, "/api/protocols/2", map[string]interface{}{"apy": 5.1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5.1, decode[types.Protocol](t, rec).APY)

	rec = do(t, ws, http.MethodPatch, "/api/protocols/2", map[string]interface{}{"healthScore": 140})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, ws, http.MethodPatch, "/api/protocols/999", map[string]interface{}{"apy": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, ws, http.MethodPost, "/api/protocols/1/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[types.Protocol](t, rec).Active)

	p, err := store.GetProtocol(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, p.Active)
}

func TestOptimalPositionRoute(t *testing.T) {
	ws, _ := newTestServer(t)

	rec := do(t, ws, http.MethodGet, "/api/protocols/optimal?token=USDC&amount=1000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pos := decode[types.OptimalPosition](t, rec)
	assert.Equal(t, "AAVE", pos.Protocol.Name)
	assert.InDelta(t, 45, pos.YearlyYield, 1e-9)

	rec = do(t, ws, http.MethodGet, "/api/protocols/optimal", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, ws, http.MethodGet, "/api/protocols/optimal?token=NOPE", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, ws, http.MethodGet, "/api/protocols/optimal?token=USDC&amount=-5", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVaultRoutes(t *testing.T) {
	ws, _ := newTestServer(t)

	rec := do(t, ws, http.MethodPost, "/api/vaults", map[string]interface{}{
		"name": "DAI Vault", "balance": 5000, "token": "DAI", "protocol": "Compound", "apy": 3.8, "autoMode": false,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[types.Vault](t, rec)
	assert.Equal(t, int64(2), created.ID)

	rec = do(t, ws, http.MethodPost, "/api/vaults", map[string]interface{}{
		"name": "Ghost", "balance": 5000, "token": "GHOST", "protocol": "Compound",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, ws, http.MethodPatch, "/api/vaults/2", map[string]interface{}{"autoMode": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[types.Vault](t, rec).AutoMode)

	rec = do(t, ws, http.MethodPatch, "/api/vaults/2", map[string]interface{}{"balance": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, ws, http.MethodGet, "/api/vaults", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]types.Vault](t, rec), 2)
}

func TestOptimizeAndPreview(t *testing.T) {
	ws, _ := newTestServer(t)

	rec := do(t, ws, http.MethodGet, "/api/vaults/1/optimize/preview", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	preview := decode[types.EvaluationResult](t, rec)
	assert.Equal(t, types.StateRebalancing, preview.Outcome)
	assert.False(t, preview.Committed)

	rec = do(t, ws, http.MethodGet, "/api/vaults/1/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]types.Transaction](t, rec))

	rec = do(t, ws, http.MethodPost, "/api/vaults/1/optimize", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[types.EvaluationResult](t, rec)
	assert.Equal(t, types.StateRebalancing, result.Outcome)
	assert.True(t, result.Committed)
	assert.Equal(t, "AAVE", result.Vault.Protocol)
	assert.InDelta(t, 46.15, result.Analysis.NetBenefit, 1e-9)

	rec = do(t, ws, http.MethodPost, "/api/vaults/1/optimize", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[types.EvaluationResult](t, rec)
	assert.Equal(t, types.StateNoChange, again.Outcome)
	assert.Equal(t, types.NoChangeMessage, again.Message)

	rec = do(t, ws, http.MethodGet, "/api/vaults/1/transactions", nil)
	assert.Len(t, decode[[]types.Transaction](t, rec), 1)

	rec = do(t, ws, http.MethodGet, "/api/vaults/1/decisions?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decisions := decode[struct {
		Decisions []types.DecisionRecord `json:"decisions"`
		Limit     int                    `json:"limit"`
	}](t, rec)
	assert.Len(t, decisions.Decisions, 2)
	assert.Equal(t, 5, decisions.Limit)

	rec = do(t, ws, http.MethodGet, "/api/analytics/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[types.DecisionSummary](t, rec)
	assert.Equal(t, 2, summary.TotalEvaluations)
	assert.Equal(t, 1, summary.Rebalances)

	rec = do(t, ws, http.MethodPost, "/api/vaults/42/optimize", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateTransaction(t *testing.T) {
	ws, _ := newTestServer(t)

	rec := do(t, ws, http.MethodPost, "/api/transactions", map[string]interface{}{
		"vaultId": 1, "type": "deposit", "amount": 250, "gasCost": 1.2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, ws, http.MethodPost, "/api/transactions", map[string]interface{}{
		"vaultId": 1, "type": "airdrop", "amount": 250,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, ws, http.MethodPost, "/api/transactions", map[string]interface{}{
		"vaultId": 77, "type": "deposit", "amount": 250,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStrategyRoutes(t *testing.T) {
	ws, _ := newTestServer(t)

	rec := do(t, ws, http.MethodPost, "/api/strategy/analyze", map[string]string{"strategy": "Safe and stable please"})
	require.Equal(t, http.StatusOK, rec.Code)
	pref := decode[types.StrategyPreference](t, rec)
	assert.Equal(t, 0.2, pref.RiskTolerance)
	assert.Equal(t, types.PreferenceSourceFallback, pref.Source)

	rec = do(t, ws, http.MethodPost, "/api/strategy/analyze", map[string]string{"strategy": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, ws, http.MethodPost, "/api/avs/score", map[string]string{"strategy": "maximum yield"})
	require.Equal(t, http.StatusOK, rec.Code)
	scored := decode[scoreResponse](t, rec)
	require.Len(t, scored.Ranked, 3)
	require.Len(t, scored.Allocations, 3)
	assert.Equal(t, []float64{50, 30, 20}, []float64{
		scored.Allocations[0].Percent, scored.Allocations[1].Percent, scored.Allocations[2].Percent,
	})
	for _, r := range scored.Ranked {
		assert.Equal(t, types.ProtocolKindAVS, r.Protocol.Kind)
	}

	rec = do(t, ws, http.MethodPost, "/api/avs/score", map[string]interface{}{
		"preferences": map[string]float64{"riskTolerance": 0.5, "yieldPreference": 0.5, "securityPreference": 0.5},
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, ws, http.MethodPost, "/api/avs/score", map[string]interface{}{
		"preferences": map[string]float64{"riskTolerance": 2},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, ws, http.MethodPost, "/api/avs/score", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOperationalRoutes(t *testing.T) {
	ws, _ := newTestServer(t)

	rec := do(t, ws, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", decode[map[string]interface{}](t, rec)["status"])

	rec = do(t, ws, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = do(t, ws, http.MethodOptions, "/api/vaults", nil)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
