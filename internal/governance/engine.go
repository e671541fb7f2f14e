package governance

import (
	"context"
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/rebal/internal/authority"
	"github.com/elys-network/rebal/internal/events"
	"github.com/elys-network/rebal/internal/ledger"
	"github.com/elys-network/rebal/internal/logger"
	"github.com/elys-network/rebal/internal/state"
	"github.com/elys-network/rebal/internal/types"
	"github.com/elys-network/rebal/internal/utils"
)

// Engine runs the proposal lifecycle: Open, then Applied on a successful
// finalize, or Expired once the clock passes the expiration.
type Engine struct {
	cfg Config
	log zerolog.Logger
}

// NewEngine creates a proposal engine over the given collaborators.
func NewEngine(cfg Config) (*Engine, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}
	return &Engine{cfg: cfg, log: logger.GetForComponent("governance")}, nil
}

// CreateRequest describes a new proposal.
type CreateRequest struct {
	BasketID   string
	Proposer   sdk.AccAddress
	Payload    types.Payload
	Expiration int64
}

// Create opens a proposal against a basket. The governance token supply and
// the basket quorum are captured now and never re-read.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*types.Proposal, error) {
	if req.Payload == nil {
		return nil, fmt.Errorf("%w: payload is required", types.ErrInvalidPayload)
	}
	if err := req.Payload.Validate(); err != nil {
		return nil, err
	}
	if req.Proposer.Empty() {
		return nil, fmt.Errorf("%w: proposer is required", types.ErrInvalidPayload)
	}

	var created *types.Proposal
	err := e.cfg.Store.Atomically(ctx, req.BasketID, func(tx state.Tx) error {
		now := e.cfg.Clock.Now()
		if req.Expiration < now {
			return fmt.Errorf("%w: expiration %d, now %d", types.ErrInvalidExpiration, req.Expiration, now)
		}
		b := tx.Basket()
		supply, err := e.cfg.Ledger.Supply(ctx, b.GovernanceMint)
		if err != nil {
			return fmt.Errorf("failed to snapshot supply of %s: %w", b.GovernanceMint, err)
		}
		p := &types.Proposal{
			ID:               e.cfg.NewID(),
			BasketID:         b.ID,
			Kind:             req.Payload.Kind(),
			Proposer:         req.Proposer,
			Payload:          req.Payload,
			SnapshotSupply:   supply,
			QuorumPercentage: b.QuorumPercentage,
			Expiration:       req.Expiration,
			Voters:           []sdk.AccAddress{},
			Status:           types.StatusOpen,
			CreatedAt:        now,
		}
		if err := tx.CreateProposal(p); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		e.cfg.Metrics.Rejected("create", reasonOf(err))
		return nil, err
	}

	e.cfg.Metrics.ProposalCreated(string(created.Kind))
	events.Emit(ctx, e.cfg.Notifier, types.ProposalCreated{
		Basket:     created.BasketID,
		ProposalID: created.ID,
		Kind:       created.Kind,
		Proposer:   created.Proposer,
		Expiration: created.Expiration,
	})
	e.log.Info().
		Str("basket", created.BasketID).
		Str("proposal", created.ID).
		Str("kind", string(created.Kind)).
		Uint64("snapshotSupply", created.SnapshotSupply).
		Int64("expiration", created.Expiration).
		Msg("Proposal created")
	return created, nil
}

// ProposeThreshold creates a threshold proposal.
func (e *Engine) ProposeThreshold(ctx context.Context, basketID string, proposer sdk.AccAddress, threshold uint64, expiration int64) (*types.Proposal, error) {
	return e.Create(ctx, CreateRequest{BasketID: basketID, Proposer: proposer, Payload: types.ThresholdPayload{Threshold: threshold}, Expiration: expiration})
}

// ProposeStrategy creates a strategy proposal.
func (e *Engine) ProposeStrategy(ctx context.Context, basketID string, proposer sdk.AccAddress, strategy types.StrategyID, expiration int64) (*types.Proposal, error) {
	return e.Create(ctx, CreateRequest{BasketID: basketID, Proposer: proposer, Payload: types.StrategyPayload{Strategy: strategy}, Expiration: expiration})
}

// ProposeAssets creates an eligible-assets proposal. The slice is copied.
func (e *Engine) ProposeAssets(ctx context.Context, basketID string, proposer sdk.AccAddress, assets []string, expiration int64) (*types.Proposal, error) {
	payload := types.AssetsPayload{Assets: append([]string(nil), assets...)}
	return e.Create(ctx, CreateRequest{BasketID: basketID, Proposer: proposer, Payload: payload, Expiration: expiration})
}

// VoteRequest is one staker's vote. Escrow may be left empty, in which case
// the basket's escrow for the proposal kind is used.
type VoteRequest struct {
	ProposalID     string
	Voter          sdk.AccAddress
	HoldingAccount sdk.AccAddress
	Escrow         sdk.AccAddress
	Accept         bool
}

// Vote locks the voter's entire holding balance in escrow and adds it to the
// tally. The transfer and the tally update commit together or not at all.
func (e *Engine) Vote(ctx context.Context, req VoteRequest) (*types.Proposal, uint64, error) {
	basketID, err := e.basketOf(ctx, req.ProposalID)
	if err != nil {
		e.cfg.Metrics.Rejected("vote", reasonOf(err))
		return nil, 0, err
	}

	var (
		voted  *types.Proposal
		weight uint64
	)
	err = e.cfg.Store.Atomically(ctx, basketID, func(tx state.Tx) error {
		b := tx.Basket()
		p, err := tx.Proposal(req.ProposalID)
		if err != nil {
			return err
		}
		now := e.cfg.Clock.Now()
		if p.Status == types.StatusApplied {
			return types.ErrProposalFinalized
		}
		if now > p.Expiration {
			return types.ErrProposalExpired
		}
		if p.HasVoted(req.Voter) {
			return types.ErrAlreadyVoted
		}

		holding, err := e.cfg.Ledger.Account(ctx, req.HoldingAccount)
		if err != nil {
			return fmt.Errorf("failed to load holding account: %w", err)
		}
		if holding.Mint != b.GovernanceMint {
			return types.ErrWrongMint
		}
		if !holding.Owner.Equals(req.Voter) {
			return types.ErrNotAccountOwner
		}
		escrow := authority.EscrowAddress(b.Address, p.Kind)
		if !req.Escrow.Empty() && !req.Escrow.Equals(escrow) {
			return types.ErrInvalidEscrow
		}

		weight = holding.Amount
		if req.Accept {
			p.YesVotes, err = utils.CheckedAdd(p.YesVotes, weight)
		} else {
			p.NoVotes, err = utils.CheckedAdd(p.NoVotes, weight)
		}
		if err != nil {
			return fmt.Errorf("failed to add vote weight: %w", err)
		}
		p.Voters = append(p.Voters, req.Voter)
		if err := tx.SaveProposal(p); err != nil {
			return err
		}

		// Last step: a rejected transfer discards the tally update above.
		if err := e.cfg.Ledger.Apply(ctx, ledger.Transfer(req.HoldingAccount, escrow, weight, req.Voter)); err != nil {
			return fmt.Errorf("failed to lock vote weight in escrow: %w", err)
		}
		voted = p
		return nil
	})
	if err != nil {
		e.cfg.Metrics.Rejected("vote", reasonOf(err))
		return nil, 0, err
	}

	e.cfg.Metrics.VoteCast(string(voted.Kind), req.Accept, weight)
	events.Emit(ctx, e.cfg.Notifier, types.Voted{
		Basket:     voted.BasketID,
		ProposalID: voted.ID,
		Kind:       voted.Kind,
		Voter:      req.Voter,
		Weight:     weight,
		Accept:     req.Accept,
	})
	e.log.Info().
		Str("basket", voted.BasketID).
		Str("proposal", voted.ID).
		Str("voter", req.Voter.String()).
		Uint64("weight", weight).
		Bool("accept", req.Accept).
		Msg("Vote recorded")
	return voted, weight, nil
}

// FinalizeResult is returned by a successful Finalize.
type FinalizeResult struct {
	Proposal *types.Proposal `json:"proposal"`
	Basket   *types.Basket   `json:"basket"`
	Approved bool            `json:"approved"`
}

// Finalize applies an approved proposal to its basket. It must run no later
// than the expiration. A failed check leaves both proposal and basket
// untouched so the call can be retried after more votes.
func (e *Engine) Finalize(ctx context.Context, proposalID string) (*FinalizeResult, error) {
	basketID, err := e.basketOf(ctx, proposalID)
	if err != nil {
		e.cfg.Metrics.Rejected("finalize", reasonOf(err))
		return nil, err
	}

	var res *FinalizeResult
	err = e.cfg.Store.Atomically(ctx, basketID, func(tx state.Tx) error {
		p, err := tx.Proposal(proposalID)
		if err != nil {
			return err
		}
		now := e.cfg.Clock.Now()
		if p.Status == types.StatusApplied {
			return types.ErrProposalFinalized
		}
		if now > p.Expiration {
			return types.ErrProposalExpired
		}
		if err := checkApproval(p); err != nil {
			return err
		}

		b := tx.Basket()
		p.Payload.Apply(b)
		if err := b.Validate(); err != nil {
			return fmt.Errorf("proposal would break basket invariants: %w", err)
		}
		p.Status = types.StatusApplied
		p.FinalizedAt = now
		if err := tx.SaveBasket(b); err != nil {
			return err
		}
		if err := tx.SaveProposal(p); err != nil {
			return err
		}
		res = &FinalizeResult{Proposal: p, Basket: b, Approved: true}
		return nil
	})
	if err != nil {
		e.cfg.Metrics.Rejected("finalize", reasonOf(err))
		return nil, err
	}

	e.cfg.Metrics.ProposalFinalized(string(res.Proposal.Kind))
	events.Emit(ctx, e.cfg.Notifier, types.ProposalFinalized{
		Basket:     basketID,
		ProposalID: proposalID,
		Kind:       res.Proposal.Kind,
		Approved:   true,
	})
	e.log.Info().
		Str("basket", basketID).
		Str("proposal", proposalID).
		Str("kind", string(res.Proposal.Kind)).
		Uint64("yes", res.Proposal.YesVotes).
		Uint64("no", res.Proposal.NoVotes).
		Msg("Proposal finalized")
	return res, nil
}

// GetProposal returns a proposal with its status resolved against the clock.
func (e *Engine) GetProposal(ctx context.Context, id string) (*types.Proposal, error) {
	p, err := e.cfg.Store.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Status = p.StatusAt(e.cfg.Clock.Now())
	return p, nil
}

// ListProposals returns the proposals of a basket, newest first, with
// statuses resolved against the clock.
func (e *Engine) ListProposals(ctx context.Context, basketID string) ([]*types.Proposal, error) {
	list, err := e.cfg.Store.ListProposals(ctx, basketID)
	if err != nil {
		return nil, err
	}
	now := e.cfg.Clock.Now()
	for _, p := range list {
		p.Status = p.StatusAt(now)
	}
	return list, nil
}

func (e *Engine) basketOf(ctx context.Context, proposalID string) (string, error) {
	p, err := e.cfg.Store.GetProposal(ctx, proposalID)
	if err != nil {
		return "", err
	}
	return p.BasketID, nil
}
