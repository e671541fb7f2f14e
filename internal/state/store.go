package state

import (
	"context"
	"errors"

	"github.com/elys-network/rebal/internal/types"
)

var (
	ErrBasketExists   = errors.New("basket already exists")
	ErrProposalExists = errors.New("proposal already exists")
	ErrDBNotReady     = errors.New("database not initialized")
)

// Tx is the view of one basket inside Store.Atomically. Writes become visible
// to other callers only if the surrounding function returns nil.
type Tx interface {
	// Basket returns the locked basket. Mutations must be saved with SaveBasket.
	Basket() *types.Basket
	SaveBasket(b *types.Basket) error

	// Proposal loads a proposal of the locked basket.
	Proposal(id string) (*types.Proposal, error)
	CreateProposal(p *types.Proposal) error
	SaveProposal(p *types.Proposal) error

	SaveReceipt(r *types.RebalanceReceipt) error
}

// Store persists baskets, proposals and rebalance receipts.
type Store interface {
	CreateBasket(ctx context.Context, b *types.Basket) error
	GetBasket(ctx context.Context, id string) (*types.Basket, error)
	ListBaskets(ctx context.Context) ([]*types.Basket, error)

	GetProposal(ctx context.Context, id string) (*types.Proposal, error)
	ListProposals(ctx context.Context, basketID string) ([]*types.Proposal, error)

	// ListReceipts returns the newest receipts first.
	ListReceipts(ctx context.Context, basketID string, limit int) ([]types.RebalanceReceipt, error)
	IncentiveSummary(ctx context.Context, basketID string) (*IncentiveSummary, error)

	// Atomically runs fn with exclusive access to one basket and its
	// proposals. If fn returns an error every write made through tx is
	// discarded.
	Atomically(ctx context.Context, basketID string, fn func(tx Tx) error) error
}

// IncentiveSummary aggregates the rebalance receipts of one basket.
type IncentiveSummary struct {
	BasketID           string `json:"basket_id"`
	Executions         int    `json:"executions"`
	SlashedExecutions  int    `json:"slashed_executions"`
	TotalTokenReward   uint64 `json:"total_token_reward"`
	TotalLamportReward uint64 `json:"total_lamport_reward"`
	LastRebalanceTs    int64  `json:"last_rebalance_ts"`
}

const (
	defaultReceiptLimit = 10
	maxReceiptLimit     = 100
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxReceiptLimit {
		return defaultReceiptLimit
	}
	return limit
}
