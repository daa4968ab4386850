package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yieldvault/rebalancer/internal/config"
	"github.com/yieldvault/rebalancer/internal/logger"
	"github.com/yieldvault/rebalancer/internal/optimizer"
	"github.com/yieldvault/rebalancer/internal/state"
	"github.com/yieldvault/rebalancer/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// Evaluator is the decision engine surface exposed over HTTP.
type Evaluator interface {
	Evaluate(ctx context.Context, vaultID int64) (*types.EvaluationResult, error)
	Preview(ctx context.Context, vaultID int64) (*types.EvaluationResult, error)
	OptimalPosition(ctx context.Context, tokenSymbol string, amount float64) (*types.OptimalPosition, error)
}

// StrategyScorer is the strategy analysis surface exposed over HTTP.
type StrategyScorer interface {
	AnalyzeStrategy(ctx context.Context, text string) types.StrategyPreference
	ScoreAVSProtocols(ctx context.Context, pref types.StrategyPreference) ([]types.RankedProtocol, error)
}

// Deps are the services the HTTP handlers call into.
type Deps struct {
	Repo     state.Repository
	Engine   Evaluator
	Strategy StrategyScorer
}

// WebServer serves the REST API, health and metrics.
type WebServer struct {
	router   *mux.Router
	handler  http.Handler
	cfg      config.ServerConfig
	repo     state.Repository
	engine   Evaluator
	strategy StrategyScorer
	server   *http.Server
	started  time.Time
}

func NewWebServer(cfg config.ServerConfig, deps Deps) *WebServer {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	ws := &WebServer{
		router:   mux.NewRouter(),
		cfg:      cfg,
		repo:     deps.Repo,
		engine:   deps.Engine,
		strategy: deps.Strategy,
		started:  time.Now(),
	}
	ws.setupRoutes()
	// CORS wraps the router so preflight requests never reach route matching.
	ws.handler = ws.corsMiddleware(ws.router)
	ws.server = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      ws.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return ws
}

func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods(http.MethodGet)
	ws.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods(http.MethodGet)

	api.HandleFunc("/tokens", ws.handleListTokens).Methods(http.MethodGet)
	api.HandleFunc("/tokens/active", ws.handleListActiveTokens).Methods(http.MethodGet)

	api.HandleFunc("/protocols", ws.handleListProtocols).Methods(http.MethodGet)
	api.HandleFunc("/protocols", ws.handleCreateProtocol).Methods(http.MethodPost)
	api.HandleFunc("/protocols/optimal", ws.handleOptimalPosition).Methods(http.MethodGet)
	api.HandleFunc("/protocols/{id:[0-9]+}", ws.handleUpdateProtocol).Methods(http.MethodPatch)
	api.HandleFunc("/protocols/{id:[0-9]+}/toggle", ws.handleToggleProtocol).Methods(http.MethodPost)

	api.HandleFunc("/prices/{asset}", ws.handleListPrices).Methods(http.MethodGet)

	api.HandleFunc("/vaults", ws.handleListVaults).Methods(http.MethodGet)
	api.HandleFunc("/vaults", ws.handleCreateVault).Methods(http.MethodPost)
	api.HandleFunc("/vaults/{id:[0-9]+}", ws.handleGetVault).Methods(http.MethodGet)
	api.HandleFunc("/vaults/{id:[0-9]+}", ws.handleUpdateVault).Methods(http.MethodPatch)
	api.HandleFunc("/vaults/{id:[0-9]+}/optimize", ws.handleOptimizeVault).Methods(http.MethodPost)
	api.HandleFunc("/vaults/{id:[0-9]+}/optimize/preview", ws.handlePreviewVault).Methods(http.MethodGet)
	api.HandleFunc("/vaults/{id:[0-9]+}/transactions", ws.handleListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/vaults/{id:[0-9]+}/decisions", ws.handleListDecisions).Methods(http.MethodGet)
	api.HandleFunc("/transactions", ws.handleCreateTransaction).Methods(http.MethodPost)

	api.HandleFunc("/strategy/analyze", ws.handleAnalyzeStrategy).Methods(http.MethodPost)
	api.HandleFunc("/avs/score", ws.handleScoreAVS).Methods(http.MethodPost)

	api.HandleFunc("/analytics/summary", ws.handleAnalyticsSummary).Methods(http.MethodGet)

	ws.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.writeErrorResponse(w, http.StatusNotFound, "route not found")
	})
	ws.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.writeErrorResponse(w, http.StatusMethodNotAllowed, "method "+r.Method+" not allowed on "+r.URL.Path)
	})

	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the full handler chain, mainly for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.handler
}

// Start blocks serving HTTP until Shutdown is called.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.cfg.Port).Msg("Starting web server")

	if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (ws *WebServer) Shutdown(ctx context.Context) error {
	webLogger.Info().Msg("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	storageHealthy := true
	storageStatus := "ok"
	if err := ws.repo.Ping(ctx); err != nil {
		storageHealthy = false
		storageStatus = err.Error()
	}

	status, code := "OK", http.StatusOK
	if !storageHealthy {
		status, code = "DEGRADED", http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"storage": map[string]interface{}{
			"healthy": storageHealthy,
			"status":  storageStatus,
		},
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
	})
}

func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

type errorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	ws.writeJSONResponse(w, statusCode, errorResponse{
		Error:     http.StatusText(statusCode),
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// writeError maps domain errors onto HTTP status codes.
func (ws *WebServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errInvalidRequest):
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, state.ErrNotFound),
		errors.Is(err, optimizer.ErrVaultNotFound),
		errors.Is(err, optimizer.ErrTokenNotFound),
		errors.Is(err, optimizer.ErrNoCompatibleProtocols):
		ws.writeErrorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, state.ErrStaleVault):
		ws.writeErrorResponse(w, http.StatusConflict, err.Error())
	default:
		webLogger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidf("invalid id %q", mux.Vars(r)["id"])
	}
	return id, nil
}

// decodeBody reads a JSON body, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalidf("malformed request body: %v", err)
	}
	return nil
}

func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remoteAddr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
