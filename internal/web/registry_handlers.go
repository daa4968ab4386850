package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/yieldvault/rebalancer/internal/config"
	"github.com/yieldvault/rebalancer/internal/types"
)

func (ws *WebServer) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := ws.repo.ListTokens(r.Context())
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, tokens)
}

func (ws *WebServer) handleListActiveTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := ws.repo.ListActiveTokens(r.Context())
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, tokens)
}

func (ws *WebServer) handleListProtocols(w http.ResponseWriter, r *http.Request) {
	protocols, err := ws.repo.ListProtocols(r.Context())
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, protocols)
}

func (ws *WebServer) handleCreateProtocol(w http.ResponseWriter, r *http.Request) {
	var p types.Protocol
	if err := decodeBody(w, r, &p); err != nil {
		ws.writeError(w, r, err)
		return
	}
	p.ID = 0
	p.LastUpdate = time.Time{}
	if err := validateNewProtocol(&p); err != nil {
		ws.writeError(w, r, err)
		return
	}

	created, err := ws.repo.CreateProtocol(r.Context(), p)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	webLogger.Info().Int64("protocolId", created.ID).Str("name", created.Name).Msg("Protocol created")
	ws.writeJSONResponse(w, http.StatusCreated, created)
}

func (ws *WebServer) handleUpdateProtocol(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	var u types.ProtocolUpdate
	if err := decodeBody(w, r, &u); err != nil {
		ws.writeError(w, r, err)
		return
	}
	if err := validateProtocolUpdate(&u); err != nil {
		ws.writeError(w, r, err)
		return
	}

	updated, err := ws.repo.UpdateProtocol(r.Context(), id, u)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, updated)
}

func (ws *WebServer) handleToggleProtocol(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	p, err := ws.repo.ToggleProtocol(r.Context(), id)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	webLogger.Info().Int64("protocolId", p.ID).Bool("active", p.Active).Msg("Protocol toggled")
	ws.writeJSONResponse(w, http.StatusOK, p)
}

// handleOptimalPosition serves GET /protocols/optimal?token=USDC&amount=1000.
func (ws *WebServer) handleOptimalPosition(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("token")
	if token == "" {
		ws.writeError(w, r, invalidf("token is required"))
		return
	}
	amount := 0.0
	if s := q.Get("amount"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			ws.writeError(w, r, invalidf("invalid amount %q", s))
			return
		}
		if err := checkNonNegative("amount", v); err != nil {
			ws.writeError(w, r, err)
			return
		}
		amount = v
	}

	pos, err := ws.engine.OptimalPosition(r.Context(), token, amount)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, pos)
}

// handleListPrices returns the stored series for an asset, oldest first.
// The asset may be a CoinGecko id or a token symbol; ?minutes= limits the window.
func (ws *WebServer) handleListPrices(w http.ResponseWriter, r *http.Request) {
	asset := config.CoinGeckoID(mux.Vars(r)["asset"])

	var since time.Time
	if s := r.URL.Query().Get("minutes"); s != "" {
		minutes, err := strconv.Atoi(s)
		if err != nil || minutes <= 0 {
			ws.writeError(w, r, invalidf("invalid minutes %q", s))
			return
		}
		since = time.Now().Add(-time.Duration(minutes) * time.Minute)
	}

	prices, err := ws.repo.ListPrices(r.Context(), asset, since)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	if prices == nil {
		prices = []types.PricePoint{}
	}
	ws.writeJSONResponse(w, http.StatusOK, prices)
}
