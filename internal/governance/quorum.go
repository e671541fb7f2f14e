package governance

import (
	"errors"
	"fmt"

	"github.com/elys-network/rebal/internal/ledger"
	"github.com/elys-network/rebal/internal/state"
	"github.com/elys-network/rebal/internal/types"
	"github.com/elys-network/rebal/internal/utils"
)

// QuorumReached reports whether (yes+no)*100 >= supply*quorum. Overflow is
// an error, never a silent pass or fail.
func QuorumReached(yes, no, supply uint64, quorum uint8) (bool, error) {
	turnout, err := utils.CheckedAdd(yes, no)
	if err != nil {
		return false, err
	}
	lhs, err := utils.CheckedMul(turnout, 100)
	if err != nil {
		return false, err
	}
	rhs, err := utils.CheckedMul(supply, uint64(quorum))
	if err != nil {
		return false, err
	}
	return lhs >= rhs, nil
}

// checkApproval enforces quorum and a strict yes majority.
func checkApproval(p *types.Proposal) error {
	ok, err := QuorumReached(p.YesVotes, p.NoVotes, p.SnapshotSupply, p.QuorumPercentage)
	if err != nil {
		return fmt.Errorf("quorum check failed: %w", err)
	}
	if !ok {
		return types.ErrQuorumNotReached
	}
	if p.YesVotes <= p.NoVotes {
		return types.ErrNotApproved
	}
	return nil
}

// reasonOf maps an error to a short metrics label.
func reasonOf(err error) string {
	switch {
	case errors.Is(err, types.ErrProposalExpired):
		return "expired"
	case errors.Is(err, types.ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, types.ErrQuorumNotReached):
		return "quorum_not_reached"
	case errors.Is(err, types.ErrNotApproved):
		return "not_approved"
	case errors.Is(err, types.ErrProposalFinalized):
		return "finalized"
	case errors.Is(err, types.ErrInvalidExpiration):
		return "invalid_expiration"
	case errors.Is(err, types.ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, types.ErrInvalidEscrow):
		return "invalid_escrow"
	case errors.Is(err, types.ErrWrongMint):
		return "wrong_mint"
	case errors.Is(err, types.ErrNotAccountOwner):
		return "not_owner"
	case errors.Is(err, types.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, types.ErrBasketNotFound), errors.Is(err, types.ErrProposalNotFound):
		return "not_found"
	case errors.Is(err, state.ErrProposalExists), errors.Is(err, state.ErrBasketExists):
		return "conflict"
	case errors.Is(err, utils.ErrOverflow), errors.Is(err, utils.ErrUnderflow), errors.Is(err, utils.ErrDivisionByZero):
		return "arithmetic"
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrUnauthorizedSigner), errors.Is(err, ledger.ErrAccountNotFound):
		return "ledger"
	}
	return "other"
}
