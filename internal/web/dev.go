package web

import (
	"net/http"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/gorilla/mux"
)

// Dev routes seed the local ledger. They are registered only when
// Deps.Provisioner is set (DEV_ENDPOINTS=true).

type devAccountRequest struct {
	Address sdk.AccAddress `json:"address"`
	Mint    string         `json:"mint"`
	Owner   sdk.AccAddress `json:"owner"`
	Amount  uint64         `json:"amount"`
}

type devCreditRequest struct {
	Address sdk.AccAddress `json:"address"`
	Amount  uint64         `json:"amount"`
}

type devFundRequest struct {
	Address  sdk.AccAddress `json:"address"`
	Lamports uint64         `json:"lamports"`
}

func (ws *WebServer) setupDevRoutes(api *mux.Router) {
	api.HandleFunc("/dev/accounts", ws.handleDevOpenAccount).Methods("POST")
	api.HandleFunc("/dev/credit", ws.handleDevCredit).Methods("POST")
	api.HandleFunc("/dev/fund", ws.handleDevFund).Methods("POST")
	webLogger.Warn().Msg("Dev ledger routes enabled under /api/dev")
}

// handleDevOpenAccount opens a token account and optionally credits it.
func (ws *WebServer) handleDevOpenAccount(w http.ResponseWriter, r *http.Request) {
	var req devAccountRequest
	if !ws.decode(w, r, &req) {
		return
	}
	if req.Address.Empty() || req.Owner.Empty() || req.Mint == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "address, owner and mint are required")
		return
	}
	prov := ws.deps.Provisioner
	if err := prov.OpenTokenAccount(r.Context(), req.Address, req.Mint, req.Owner); err != nil {
		ws.writeServiceError(w, "open token account", err)
		return
	}
	if req.Amount > 0 {
		if err := prov.Credit(r.Context(), req.Address, req.Amount); err != nil {
			ws.writeServiceError(w, "credit token account", err)
			return
		}
	}
	ws.writeJSONResponse(w, http.StatusCreated, map[string]interface{}{
		"address": req.Address,
		"mint":    req.Mint,
		"owner":   req.Owner,
		"amount":  req.Amount,
	})
}

func (ws *WebServer) handleDevCredit(w http.ResponseWriter, r *http.Request) {
	var req devCreditRequest
	if !ws.decode(w, r, &req) {
		return
	}
	if err := ws.deps.Provisioner.Credit(r.Context(), req.Address, req.Amount); err != nil {
		ws.writeServiceError(w, "credit token account", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address":  req.Address,
		"credited": req.Amount,
	})
}

func (ws *WebServer) handleDevFund(w http.ResponseWriter, r *http.Request) {
	var req devFundRequest
	if !ws.decode(w, r, &req) {
		return
	}
	if req.Address.Empty() {
		ws.writeErrorResponse(w, http.StatusBadRequest, "address is required")
		return
	}
	if err := ws.deps.Provisioner.FundNative(r.Context(), req.Address, req.Lamports); err != nil {
		ws.writeServiceError(w, "fund native balance", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address": req.Address,
		"funded":  req.Lamports,
	})
}
