package ledger

import (
	"context"
	"errors"

	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Error definitions for ledger operations
var (
	ErrAccountNotFound    = errors.New("token account not found")
	ErrAccountExists      = errors.New("token account already exists")
	ErrMintNotFound       = errors.New("mint not found")
	ErrMintExists         = errors.New("mint already exists")
	ErrMintMismatch       = errors.New("token accounts hold different mints")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrUnauthorizedSigner = errors.New("operation not authorized by signer")
	ErrUnknownOp          = errors.New("unknown ledger operation")
)

// TokenAccount is a balance of one mint, owned by one identity.
type TokenAccount struct {
	Address sdk.AccAddress `json:"address"`
	Mint    string         `json:"mint"`
	Owner   sdk.AccAddress `json:"owner"`
	Amount  uint64         `json:"amount"`
}

// Mint is a fungible token with a single minting authority.
type Mint struct {
	Denom     string         `json:"denom"`
	Authority sdk.AccAddress `json:"authority"`
	Supply    uint64         `json:"supply"`
}

// OpType selects a ledger operation.
type OpType string

const (
	OpTransfer       OpType = "TRANSFER"
	OpMintTo         OpType = "MINT_TO"
	OpNativeTransfer OpType = "NATIVE_TRANSFER"
)

// Op is one step of an atomic ledger batch.
type Op struct {
	Type      OpType         `json:"type"`
	From      sdk.AccAddress `json:"from,omitempty"`
	To        sdk.AccAddress `json:"to"`
	Mint      string         `json:"mint,omitempty"`
	Amount    uint64         `json:"amount"`
	Authority sdk.AccAddress `json:"authority"`
}

// Transfer moves amount between two token accounts of the same mint.
// authorizedBy must own the source account.
func Transfer(from, to sdk.AccAddress, amount uint64, authorizedBy sdk.AccAddress) Op {
	return Op{Type: OpTransfer, From: from, To: to, Amount: amount, Authority: authorizedBy}
}

// MintTo creates amount new tokens of mint in account to. authority must be
// the mint's authority.
func MintTo(mint string, to sdk.AccAddress, amount uint64, authority sdk.AccAddress) Op {
	return Op{Type: OpMintTo, Mint: mint, To: to, Amount: amount, Authority: authority}
}

// NativeTransfer moves native currency. authority must be the source address.
func NativeTransfer(from, to sdk.AccAddress, amount uint64, authority sdk.AccAddress) Op {
	return Op{Type: OpNativeTransfer, From: from, To: to, Amount: amount, Authority: authority}
}

// Ledger defines the token service the governance core depends on.
// Implementations must make Apply all-or-nothing.
type Ledger interface {
	// BalanceOf returns the amount held in a token account.
	BalanceOf(ctx context.Context, account sdk.AccAddress) (uint64, error)

	// Account returns a token account with its mint and owner.
	Account(ctx context.Context, account sdk.AccAddress) (TokenAccount, error)

	// Supply returns the total supply of a mint.
	Supply(ctx context.Context, mint string) (uint64, error)

	// NativeBalance returns the native currency held by an address.
	NativeBalance(ctx context.Context, addr sdk.AccAddress) (uint64, error)

	// Apply executes ops in order. Either every op takes effect or none does.
	Apply(ctx context.Context, ops ...Op) error
}

// Provisioner is implemented by ledgers that can create mints and accounts.
// Production ledgers provision out of band; the memory and postgres ledgers
// implement it for local runs and tests.
type Provisioner interface {
	CreateMint(ctx context.Context, denom string, authority sdk.AccAddress) error
	OpenTokenAccount(ctx context.Context, addr sdk.AccAddress, mint string, owner sdk.AccAddress) error
	FundNative(ctx context.Context, addr sdk.AccAddress, amount uint64) error

	// Credit adds tokens to an account and to its mint supply without an
	// authority check. It seeds balances that exist before the service runs.
	Credit(ctx context.Context, addr sdk.AccAddress, amount uint64) error

	// Provision creates mint unless a mint with the same denom and authority
	// already exists, then opens every account on it. A mint held by another
	// authority fails with ErrMintExists and a taken address with
	// ErrAccountExists. Nothing is written unless every step succeeds.
	Provision(ctx context.Context, mint Mint, accounts ...TokenAccount) error
}

// AsProvisioner returns the Provisioner behind l, looking through decorators
// that expose Unwrap.
func AsProvisioner(l Ledger) (Provisioner, bool) {
	for l != nil {
		if p, ok := l.(Provisioner); ok {
			return p, true
		}
		u, ok := l.(interface{ Unwrap() Ledger })
		if !ok {
			return nil, false
		}
		l = u.Unwrap()
	}
	return nil, false
}
