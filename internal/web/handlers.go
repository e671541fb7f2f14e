package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/gorilla/mux"

	"github.com/elys-network/rebal/internal/governance"
	"github.com/elys-network/rebal/internal/incentive"
	"github.com/elys-network/rebal/internal/ledger"
	"github.com/elys-network/rebal/internal/state"
	"github.com/elys-network/rebal/internal/types"
	"github.com/elys-network/rebal/internal/utils"
)

const maxBodyBytes = 1 << 20

// createProposalRequest carries exactly one of the proposed_* fields,
// matching kind.
type createProposalRequest struct {
	Kind              string            `json:"kind"`
	Proposer          sdk.AccAddress    `json:"proposer"`
	Expiration        int64             `json:"expiration"`
	ProposedThreshold *uint64           `json:"proposed_threshold,omitempty"`
	ProposedStrategy  *types.StrategyID `json:"proposed_strategy,omitempty"`
	ProposedAssets    []string          `json:"proposed_assets,omitempty"`
}

func (r createProposalRequest) payload() (types.Payload, error) {
	kind, err := types.ParseProposalKind(r.Kind)
	if err != nil {
		return nil, err
	}
	switch kind {
	case types.KindThreshold:
		if r.ProposedThreshold == nil {
			return nil, fmt.Errorf("%w: proposed_threshold is required", types.ErrInvalidPayload)
		}
		return types.ThresholdPayload{Threshold: *r.ProposedThreshold}, nil
	case types.KindStrategy:
		if r.ProposedStrategy == nil {
			return nil, fmt.Errorf("%w: proposed_strategy is required", types.ErrInvalidPayload)
		}
		return types.StrategyPayload{Strategy: *r.ProposedStrategy}, nil
	default:
		if r.ProposedAssets == nil {
			return nil, fmt.Errorf("%w: proposed_assets is required", types.ErrInvalidPayload)
		}
		return types.AssetsPayload{Assets: r.ProposedAssets}, nil
	}
}

type voteRequest struct {
	Voter          sdk.AccAddress `json:"voter"`
	HoldingAccount sdk.AccAddress `json:"holding_account"`
	Escrow         sdk.AccAddress `json:"escrow,omitempty"`
	Accept         bool           `json:"accept"`
}

type whitelistRequest struct {
	Caller    sdk.AccAddress   `json:"caller"`
	Whitelist []sdk.AccAddress `json:"whitelist"`
}

type rebalanceRequest struct {
	Executor             sdk.AccAddress `json:"executor"`
	ExecutorTokenAccount sdk.AccAddress `json:"executor_token_account"`
	CurrentDeviation     uint64         `json:"current_deviation"`
}

func (ws *WebServer) handleCreateBasket(w http.ResponseWriter, r *http.Request) {
	var req governance.InitParams
	if !ws.decode(w, r, &req) {
		return
	}
	if ws.deps.BasketDefaults != nil {
		req = ws.deps.BasketDefaults(req)
	}
	b, err := ws.deps.Registry.InitializeBasket(r.Context(), req)
	if err != nil {
		ws.writeServiceError(w, "initialize basket", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusCreated, b)
}

func (ws *WebServer) handleListBaskets(w http.ResponseWriter, r *http.Request) {
	baskets, err := ws.deps.Registry.ListBaskets(r.Context())
	if err != nil {
		ws.writeServiceError(w, "list baskets", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"baskets": baskets,
		"count":   len(baskets),
	})
}

func (ws *WebServer) handleGetBasket(w http.ResponseWriter, r *http.Request) {
	b, err := ws.deps.Registry.GetBasket(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		ws.writeServiceError(w, "get basket", err)
		return
	}
	next, err := ws.deps.Incentives.NextEligible(r.Context(), b.ID)
	if err != nil {
		ws.writeServiceError(w, "get basket", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"basket":                  b,
		"next_rebalance_eligible": next,
	})
}

func (ws *WebServer) handleSetWhitelist(w http.ResponseWriter, r *http.Request) {
	var req whitelistRequest
	if !ws.decode(w, r, &req) {
		return
	}
	b, err := ws.deps.Registry.SetWhitelist(r.Context(), mux.Vars(r)["id"], req.Caller, req.Whitelist)
	if err != nil {
		ws.writeServiceError(w, "set whitelist", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, b)
}

func (ws *WebServer) handleListProposals(w http.ResponseWriter, r *http.Request) {
	basketID := mux.Vars(r)["id"]
	if _, err := ws.deps.Registry.GetBasket(r.Context(), basketID); err != nil {
		ws.writeServiceError(w, "list proposals", err)
		return
	}
	proposals, err := ws.deps.Governance.ListProposals(r.Context(), basketID)
	if err != nil {
		ws.writeServiceError(w, "list proposals", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"proposals": proposals,
		"count":     len(proposals),
	})
}

func (ws *WebServer) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	var req createProposalRequest
	if !ws.decode(w, r, &req) {
		return
	}
	payload, err := req.payload()
	if err != nil {
		ws.writeServiceError(w, "create proposal", err)
		return
	}
	p, err := ws.deps.Governance.Create(r.Context(), governance.CreateRequest{
		BasketID:   mux.Vars(r)["id"],
		Proposer:   req.Proposer,
		Payload:    payload,
		Expiration: req.Expiration,
	})
	if err != nil {
		ws.writeServiceError(w, "create proposal", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusCreated, p)
}

func (ws *WebServer) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := ws.deps.Governance.GetProposal(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		ws.writeServiceError(w, "get proposal", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, p)
}

func (ws *WebServer) handleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if !ws.decode(w, r, &req) {
		return
	}
	p, weight, err := ws.deps.Governance.Vote(r.Context(), governance.VoteRequest{
		ProposalID:     mux.Vars(r)["id"],
		Voter:          req.Voter,
		HoldingAccount: req.HoldingAccount,
		Escrow:         req.Escrow,
		Accept:         req.Accept,
	})
	if err != nil {
		ws.writeServiceError(w, "vote", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"proposal": p,
		"weight":   weight,
	})
}

func (ws *WebServer) handleFinalize(w http.ResponseWriter, r *http.Request) {
	res, err := ws.deps.Governance.Finalize(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		ws.writeServiceError(w, "finalize", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, res)
}

func (ws *WebServer) handleRebalance(w http.ResponseWriter, r *http.Request) {
	var req rebalanceRequest
	if !ws.decode(w, r, &req) {
		return
	}
	res, err := ws.deps.Incentives.Execute(r.Context(), incentive.ExecuteRequest{
		BasketID:             mux.Vars(r)["id"],
		Executor:             req.Executor,
		ExecutorTokenAccount: req.ExecutorTokenAccount,
		CurrentDeviation:     req.CurrentDeviation,
	})
	if err != nil {
		ws.writeServiceError(w, "rebalance", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, res)
}

func (ws *WebServer) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	basketID := mux.Vars(r)["id"]
	if _, err := ws.deps.Registry.GetBasket(r.Context(), basketID); err != nil {
		ws.writeServiceError(w, "list receipts", err)
		return
	}
	receipts, err := ws.deps.Incentives.Receipts(r.Context(), basketID, limit)
	if err != nil {
		ws.writeServiceError(w, "list receipts", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
		"limit":    limit,
	})
}

func (ws *WebServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := ws.deps.Incentives.Summary(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		ws.writeServiceError(w, "incentive summary", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

func (ws *WebServer) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (ws *WebServer) writeServiceError(w http.ResponseWriter, op string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		webLogger.Error().Err(err).Str("operation", op).Msg("Request failed")
		ws.writeErrorResponse(w, code, "Failed to "+op)
		return
	}
	ws.writeErrorResponse(w, code, err.Error())
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrBasketNotFound), errors.Is(err, types.ErrProposalNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrUnauthorized), errors.Is(err, types.ErrNotWhitelisted), errors.Is(err, types.ErrNotAccountOwner):
		return http.StatusForbidden
	case errors.Is(err, types.ErrAlreadyVoted), errors.Is(err, types.ErrProposalFinalized),
		errors.Is(err, types.ErrProposalExpired), errors.Is(err, types.ErrCooldownActive),
		errors.Is(err, state.ErrBasketExists), errors.Is(err, state.ErrProposalExists),
		errors.Is(err, types.ErrForeignMint), errors.Is(err, ledger.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, types.ErrQuorumNotReached), errors.Is(err, types.ErrNotApproved),
		errors.Is(err, types.ErrInvalidExpiration), errors.Is(err, types.ErrInvalidPayload),
		errors.Is(err, types.ErrUnknownKind), errors.Is(err, types.ErrInvalidEscrow),
		errors.Is(err, types.ErrWrongMint), errors.Is(err, types.ErrInvalidBasket),
		errors.Is(err, types.ErrZeroThreshold), errors.Is(err, types.ErrInvalidQuorum),
		errors.Is(err, types.ErrZeroSlashFactor), errors.Is(err, types.ErrInvalidAsset),
		errors.Is(err, types.ErrDuplicateAsset), errors.Is(err, incentive.ErrMissingExecutor),
		errors.Is(err, ledger.ErrAccountNotFound), errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrMintMismatch), errors.Is(err, ledger.ErrMintNotFound),
		errors.Is(err, utils.ErrOverflow):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
