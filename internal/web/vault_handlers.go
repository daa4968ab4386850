package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/yieldvault/rebalancer/internal/state"
	"github.com/yieldvault/rebalancer/internal/types"
)

func (ws *WebServer) handleListVaults(w http.ResponseWriter, r *http.Request) {
	vaults, err := ws.repo.ListVaults(r.Context())
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, vaults)
}

func (ws *WebServer) handleGetVault(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	vault, err := ws.repo.GetVault(r.Context(), id)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, vault)
}

func (ws *WebServer) handleCreateVault(w http.ResponseWriter, r *http.Request) {
	var v types.Vault
	if err := decodeBody(w, r, &v); err != nil {
		ws.writeError(w, r, err)
		return
	}
	v.ID = 0
	if err := validateNewVault(&v); err != nil {
		ws.writeError(w, r, err)
		return
	}
	if err := ws.checkTokenExists(r, v.Token); err != nil {
		ws.writeError(w, r, err)
		return
	}

	created, err := ws.repo.CreateVault(r.Context(), v)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	webLogger.Info().Int64("vaultId", created.ID).Str("token", created.Token).Msg("Vault created")
	ws.writeJSONResponse(w, http.StatusCreated, created)
}

func (ws *WebServer) handleUpdateVault(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	var u types.VaultUpdate
	if err := decodeBody(w, r, &u); err != nil {
		ws.writeError(w, r, err)
		return
	}
	if err := validateVaultUpdate(&u); err != nil {
		ws.writeError(w, r, err)
		return
	}
	if u.Token != nil {
		if err := ws.checkTokenExists(r, *u.Token); err != nil {
			ws.writeError(w, r, err)
			return
		}
	}

	updated, err := ws.repo.UpdateVault(r.Context(), id, u)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, updated)
}

// checkTokenExists turns an unknown token into a validation error rather than a 404.
func (ws *WebServer) checkTokenExists(r *http.Request, symbol string) error {
	if _, err := ws.repo.GetToken(r.Context(), symbol); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return invalidf("unknown token %q", symbol)
		}
		return fmt.Errorf("failed to look up token: %w", err)
	}
	return nil
}

func (ws *WebServer) handleOptimizeVault(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	result, err := ws.engine.Evaluate(r.Context(), id)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, result)
}

func (ws *WebServer) handlePreviewVault(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	result, err := ws.engine.Preview(r.Context(), id)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, result)
}

func (ws *WebServer) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	txns, err := ws.repo.ListTransactions(r.Context(), id)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	if txns == nil {
		txns = []types.Transaction{}
	}
	ws.writeJSONResponse(w, http.StatusOK, txns)
}

func (ws *WebServer) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var t types.Transaction
	if err := decodeBody(w, r, &t); err != nil {
		ws.writeError(w, r, err)
		return
	}
	t.ID = 0
	if err := validateTransaction(&t); err != nil {
		ws.writeError(w, r, err)
		return
	}

	created, err := ws.repo.CreateTransaction(r.Context(), t)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusCreated, created)
}

func (ws *WebServer) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	decisions, err := ws.repo.ListDecisions(r.Context(), id, limit)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	if decisions == nil {
		decisions = []types.DecisionRecord{}
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"decisions": decisions,
		"count":     len(decisions),
		"limit":     limit,
	})
}

func (ws *WebServer) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := ws.repo.DecisionSummary(r.Context())
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}
