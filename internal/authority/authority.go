// Package authority derives the non-human identities owned by a basket.
//
// A basket's mint authority, treasury and per-kind escrow accounts have no private
// key. Their addresses are derived deterministically from the basket address, and
// the ledger accepts an operation from them by re-deriving rather than by
// checking a signature.
package authority

import (
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/address"

	"github.com/elys-network/rebal/internal/types"
)

// ModuleName roots every derived address of this service.
const ModuleName = "rebal"

// Purpose selects which delegated identity to derive.
type Purpose string

const (
	PurposeMint     Purpose = "mint_auth"
	PurposeTreasury Purpose = "fee_vault"
)

// EscrowPurpose is the purpose of the escrow account for one proposal kind.
func EscrowPurpose(kind types.ProposalKind) Purpose {
	return Purpose("escrow/" + string(kind))
}

// BasketAddress derives the identity of a basket from its ID.
func BasketAddress(basketID string) sdk.AccAddress {
	return sdk.AccAddress(address.Module(ModuleName, []byte(basketID)))
}

// Derive returns the address of the delegated identity for purpose.
func Derive(basket sdk.AccAddress, purpose Purpose) sdk.AccAddress {
	return sdk.AccAddress(address.Derive(basket, []byte(purpose)))
}

// EscrowAddress is the token account holding vote weight locked on proposals of kind.
func EscrowAddress(basket sdk.AccAddress, kind types.ProposalKind) sdk.AccAddress {
	return Derive(basket, EscrowPurpose(kind))
}

// Capability is the right to act as one of a basket's delegated identities.
// It can only be obtained through Delegate and is never serialized.
type Capability struct {
	basket  sdk.AccAddress
	purpose Purpose
	addr    sdk.AccAddress
}

// Delegate creates the capability for purpose on basket b. The stored
// address on the basket must match the derivation, which guards against a
// corrupted record granting authority to a foreign account.
func Delegate(b *types.Basket, purpose Purpose) (Capability, bool) {
	var recorded sdk.AccAddress
	switch purpose {
	case PurposeMint:
		recorded = b.MintAuthority
	case PurposeTreasury:
		recorded = b.Treasury
	default:
		recorded = Derive(b.Address, purpose)
	}
	if !Verify(b.Address, purpose, recorded) {
		return Capability{}, false
	}
	return Capability{basket: b.Address, purpose: purpose, addr: recorded}, true
}

// Address is the identity the ledger sees as signer.
func (c Capability) Address() sdk.AccAddress { return c.addr }

// Purpose reports what the capability is for.
func (c Capability) Purpose() Purpose { return c.purpose }

// Verify re-derives the capability address; ledgers use it to accept a
// keyless signer.
func Verify(basket sdk.AccAddress, purpose Purpose, signer sdk.AccAddress) bool {
	return Derive(basket, purpose).Equals(signer)
}
