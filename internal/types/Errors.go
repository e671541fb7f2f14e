package types

import "errors"

// Governance and incentive errors. Every one of them aborts the call with no
// state change; retry policy belongs to the caller.
var (
	ErrProposalExpired   = errors.New("proposal expired")
	ErrAlreadyVoted      = errors.New("already voted")
	ErrQuorumNotReached  = errors.New("quorum not reached")
	ErrNotApproved       = errors.New("proposal did not receive enough yes votes")
	ErrProposalFinalized = errors.New("proposal already finalized")
	ErrCooldownActive    = errors.New("cooldown still active")
	ErrNotWhitelisted    = errors.New("bot not whitelisted")

	ErrInvalidExpiration = errors.New("expiration is in the past")
	ErrInvalidPayload    = errors.New("invalid proposal payload")
	ErrUnknownKind       = errors.New("unknown proposal kind")
	ErrInvalidEscrow     = errors.New("escrow account does not belong to this basket and proposal kind")
	ErrWrongMint         = errors.New("token account does not hold the basket governance mint")
	ErrNotAccountOwner   = errors.New("token account is not owned by the caller")
	ErrUnauthorized      = errors.New("caller is not the basket authority")

	ErrInvalidBasket   = errors.New("invalid basket")
	ErrZeroThreshold   = errors.New("threshold must be greater than zero")
	ErrInvalidQuorum   = errors.New("quorum percentage must be between 0 and 100")
	ErrZeroSlashFactor = errors.New("slash factor must be greater than zero")
	ErrInvalidAsset    = errors.New("invalid asset identifier")
	ErrDuplicateAsset  = errors.New("duplicate asset identifier")
	ErrForeignMint     = errors.New("governance mint is controlled by another authority")

	ErrBasketNotFound   = errors.New("basket not found")
	ErrProposalNotFound = errors.New("proposal not found")
)
