package web

import (
	"net/http"
	"strings"

	"github.com/yieldvault/rebalancer/internal/strategy"
	"github.com/yieldvault/rebalancer/internal/types"
)

type analyzeRequest struct {
	Strategy string `json:"strategy"`
}

type scoreRequest struct {
	Strategy    string                    `json:"strategy,omitempty"`
	Preferences *types.StrategyPreference `json:"preferences,omitempty"`
}

type scoreResponse struct {
	Preferences types.StrategyPreference `json:"preferences"`
	Ranked      []types.RankedProtocol   `json:"ranked"`
	Allocations []types.Allocation       `json:"allocations"`
}

func (ws *WebServer) handleAnalyzeStrategy(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeBody(w, r, &req); err != nil {
		ws.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Strategy) == "" {
		ws.writeError(w, r, invalidf("strategy is required"))
		return
	}

	pref := ws.strategy.AnalyzeStrategy(r.Context(), req.Strategy)
	ws.writeJSONResponse(w, http.StatusOK, pref)
}

// handleScoreAVS ranks the active AVS protocols for either a free-text
// strategy or explicit preferences, and proposes a 50/30/20 split.
func (ws *WebServer) handleScoreAVS(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decodeBody(w, r, &req); err != nil {
		ws.writeError(w, r, err)
		return
	}

	var pref types.StrategyPreference
	switch {
	case req.Preferences != nil && req.Strategy != "":
		ws.writeError(w, r, invalidf("send either strategy or preferences, not both"))
		return
	case req.Preferences != nil:
		if err := validatePreference(req.Preferences); err != nil {
			ws.writeError(w, r, err)
			return
		}
		pref = *req.Preferences
	case strings.TrimSpace(req.Strategy) != "":
		pref = ws.strategy.AnalyzeStrategy(r.Context(), req.Strategy)
	default:
		ws.writeError(w, r, invalidf("strategy or preferences is required"))
		return
	}

	ranked, err := ws.strategy.ScoreAVSProtocols(r.Context(), pref)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	if ranked == nil {
		ranked = []types.RankedProtocol{}
	}
	ws.writeJSONResponse(w, http.StatusOK, scoreResponse{
		Preferences: pref,
		Ranked:      ranked,
		Allocations: strategy.Allocate(ranked),
	})
}
