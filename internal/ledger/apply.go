package ledger

import (
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/rebal/internal/utils"
)

// book is the read/write view an Apply batch runs against. Writes must stay
// invisible to other callers until the batch commits.
type book interface {
	tokenAccount(addr sdk.AccAddress) (TokenAccount, error)
	putTokenAccount(acc TokenAccount) error
	mint(denom string) (Mint, error)
	putMint(m Mint) error
	native(addr sdk.AccAddress) (uint64, error)
	putNative(addr sdk.AccAddress, amount uint64) error
}

func applyOps(b book, ops []Op) error {
	for i, op := range ops {
		var err error
		switch op.Type {
		case OpTransfer:
			err = applyTransfer(b, op)
		case OpMintTo:
			err = applyMintTo(b, op)
		case OpNativeTransfer:
			err = applyNativeTransfer(b, op)
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownOp, op.Type)
		}
		if err != nil {
			return fmt.Errorf("op %d (%s): %w", i, op.Type, err)
		}
	}
	return nil
}

func applyTransfer(b book, op Op) error {
	from, err := b.tokenAccount(op.From)
	if err != nil {
		return err
	}
	if !from.Owner.Equals(op.Authority) {
		return ErrUnauthorizedSigner
	}
	to, err := b.tokenAccount(op.To)
	if err != nil {
		return err
	}
	if from.Mint != to.Mint {
		return ErrMintMismatch
	}
	if from.Amount < op.Amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, from.Amount, op.Amount)
	}
	from.Amount -= op.Amount
	if err := b.putTokenAccount(from); err != nil {
		return err
	}
	// Re-read so a self-transfer sees the debit.
	to, err = b.tokenAccount(op.To)
	if err != nil {
		return err
	}
	if to.Amount, err = utils.CheckedAdd(to.Amount, op.Amount); err != nil {
		return err
	}
	return b.putTokenAccount(to)
}

func applyMintTo(b book, op Op) error {
	m, err := b.mint(op.Mint)
	if err != nil {
		return err
	}
	if !m.Authority.Equals(op.Authority) {
		return ErrUnauthorizedSigner
	}
	to, err := b.tokenAccount(op.To)
	if err != nil {
		return err
	}
	if to.Mint != m.Denom {
		return ErrMintMismatch
	}
	if m.Supply, err = utils.CheckedAdd(m.Supply, op.Amount); err != nil {
		return err
	}
	if to.Amount, err = utils.CheckedAdd(to.Amount, op.Amount); err != nil {
		return err
	}
	if err := b.putMint(m); err != nil {
		return err
	}
	return b.putTokenAccount(to)
}

func applyNativeTransfer(b book, op Op) error {
	if !op.From.Equals(op.Authority) {
		return ErrUnauthorizedSigner
	}
	bal, err := b.native(op.From)
	if err != nil {
		return err
	}
	if bal < op.Amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, bal, op.Amount)
	}
	if err := b.putNative(op.From, bal-op.Amount); err != nil {
		return err
	}
	dst, err := b.native(op.To)
	if err != nil {
		return err
	}
	if dst, err = utils.CheckedAdd(dst, op.Amount); err != nil {
		return err
	}
	return b.putNative(op.To, dst)
}
