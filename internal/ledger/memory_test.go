package ledger

import (
	"context"
	"errors"
	"math"
	"testing"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/rebal/internal/utils"
)

const denom = "urebal"

func addr(name string) sdk.AccAddress {
	return sdk.AccAddress(address.Module("ledger-test", []byte(name)))
}

func setup(t *testing.T) (*Memory, context.Context) {
	t.Helper()
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateMint(ctx, denom, addr("mint-auth")))
	require.NoError(t, m.OpenTokenAccount(ctx, addr("alice-tokens"), denom, addr("alice")))
	require.NoError(t, m.OpenTokenAccount(ctx, addr("escrow"), denom, addr("escrow-owner")))
	require.NoError(t, m.Credit(ctx, addr("alice-tokens"), 100))
	return m, ctx
}

func TestProvisioning(t *testing.T) {
	m, ctx := setup(t)

	assert.ErrorIs(t, m.CreateMint(ctx, denom, addr("x")), ErrMintExists)
	assert.ErrorIs(t, m.OpenTokenAccount(ctx, addr("alice-tokens"), denom, addr("alice")), ErrAccountExists)
	assert.ErrorIs(t, m.OpenTokenAccount(ctx, addr("bob-tokens"), "uother", addr("bob")), ErrMintNotFound)

	supply, err := m.Supply(ctx, denom)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), supply)

	_, err = m.Supply(ctx, "uother")
	assert.ErrorIs(t, err, ErrMintNotFound)

	_, err = m.BalanceOf(ctx, addr("nobody"))
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestProvisionIsAllOrNothing(t *testing.T) {
	m, ctx := setup(t)

	err := m.Provision(ctx, Mint{Denom: denom, Authority: addr("someone-else")},
		TokenAccount{Address: addr("e1"), Owner: addr("e1")})
	assert.ErrorIs(t, err, ErrMintExists, "mint held by another authority")
	_, err = m.Account(ctx, addr("e1"))
	assert.ErrorIs(t, err, ErrAccountNotFound)

	err = m.Provision(ctx, Mint{Denom: "unew", Authority: addr("new-auth")},
		TokenAccount{Address: addr("e1"), Owner: addr("e1")},
		TokenAccount{Address: addr("escrow"), Owner: addr("e2")})
	assert.ErrorIs(t, err, ErrAccountExists)
	_, err = m.Supply(ctx, "unew")
	assert.ErrorIs(t, err, ErrMintNotFound, "mint is not created when an account is taken")
	_, err = m.Account(ctx, addr("e1"))
	assert.ErrorIs(t, err, ErrAccountNotFound)

	err = m.Provision(ctx, Mint{Denom: "unew", Authority: addr("new-auth")},
		TokenAccount{Address: addr("e1"), Owner: addr("e1")},
		TokenAccount{Address: addr("e1"), Owner: addr("e1")})
	assert.ErrorIs(t, err, ErrAccountExists, "duplicate address in one call")

	require.NoError(t, m.Provision(ctx, Mint{Denom: "unew", Authority: addr("new-auth")},
		TokenAccount{Address: addr("e1"), Owner: addr("e1")}))
	acc, err := m.Account(ctx, addr("e1"))
	require.NoError(t, err)
	assert.Equal(t, "unew", acc.Mint)

	require.NoError(t, m.Provision(ctx, Mint{Denom: "unew", Authority: addr("new-auth")},
		TokenAccount{Address: addr("e2"), Owner: addr("e2")}), "same authority reuses the mint")
}

func TestSeedingCannotOverflow(t *testing.T) {
	m, ctx := setup(t)

	assert.ErrorIs(t, m.Credit(ctx, addr("escrow"), math.MaxUint64), utils.ErrOverflow)
	bal, _ := m.BalanceOf(ctx, addr("escrow"))
	assert.Zero(t, bal)
	supply, _ := m.Supply(ctx, denom)
	assert.Equal(t, uint64(100), supply, "supply unchanged after a rejected credit")

	require.NoError(t, m.FundNative(ctx, addr("vault"), math.MaxUint64))
	assert.ErrorIs(t, m.FundNative(ctx, addr("vault"), 1), utils.ErrOverflow)
	v, _ := m.NativeBalance(ctx, addr("vault"))
	assert.Equal(t, uint64(math.MaxUint64), v)
}

func TestTransfer(t *testing.T) {
	m, ctx := setup(t)

	require.NoError(t, m.Apply(ctx, Transfer(addr("alice-tokens"), addr("escrow"), 40, addr("alice"))))

	bal, _ := m.BalanceOf(ctx, addr("alice-tokens"))
	assert.Equal(t, uint64(60), bal)
	bal, _ = m.BalanceOf(ctx, addr("escrow"))
	assert.Equal(t, uint64(40), bal)

	err := m.Apply(ctx, Transfer(addr("alice-tokens"), addr("escrow"), 1, addr("mallory")))
	assert.ErrorIs(t, err, ErrUnauthorizedSigner)

	err = m.Apply(ctx, Transfer(addr("alice-tokens"), addr("escrow"), 61, addr("alice")))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// self transfer leaves the balance unchanged
	require.NoError(t, m.Apply(ctx, Transfer(addr("alice-tokens"), addr("alice-tokens"), 60, addr("alice"))))
	bal, _ = m.BalanceOf(ctx, addr("alice-tokens"))
	assert.Equal(t, uint64(60), bal)
}

func TestTransferAcrossMintsFails(t *testing.T) {
	m, ctx := setup(t)
	require.NoError(t, m.CreateMint(ctx, "uother", addr("other-auth")))
	require.NoError(t, m.OpenTokenAccount(ctx, addr("alice-other"), "uother", addr("alice")))

	err := m.Apply(ctx, Transfer(addr("alice-tokens"), addr("alice-other"), 1, addr("alice")))
	assert.ErrorIs(t, err, ErrMintMismatch)
}

func TestMintTo(t *testing.T) {
	m, ctx := setup(t)

	require.NoError(t, m.Apply(ctx, MintTo(denom, addr("alice-tokens"), 25, addr("mint-auth"))))
	bal, _ := m.BalanceOf(ctx, addr("alice-tokens"))
	assert.Equal(t, uint64(125), bal)
	supply, _ := m.Supply(ctx, denom)
	assert.Equal(t, uint64(125), supply)

	err := m.Apply(ctx, MintTo(denom, addr("alice-tokens"), 25, addr("alice")))
	assert.ErrorIs(t, err, ErrUnauthorizedSigner)

	err = m.Apply(ctx, MintTo(denom, addr("alice-tokens"), math.MaxUint64, addr("mint-auth")))
	assert.ErrorIs(t, err, utils.ErrOverflow)
}

func TestNativeTransfer(t *testing.T) {
	m, ctx := setup(t)
	require.NoError(t, m.FundNative(ctx, addr("vault"), 1000))

	require.NoError(t, m.Apply(ctx, NativeTransfer(addr("vault"), addr("bot"), 300, addr("vault"))))
	v, _ := m.NativeBalance(ctx, addr("vault"))
	b, _ := m.NativeBalance(ctx, addr("bot"))
	assert.Equal(t, uint64(700), v)
	assert.Equal(t, uint64(300), b)

	err := m.Apply(ctx, NativeTransfer(addr("vault"), addr("bot"), 1, addr("bot")))
	assert.ErrorIs(t, err, ErrUnauthorizedSigner)

	err = m.Apply(ctx, NativeTransfer(addr("vault"), addr("bot"), 701, addr("vault")))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestApplyIsAllOrNothing(t *testing.T) {
	m, ctx := setup(t)
	require.NoError(t, m.FundNative(ctx, addr("vault"), 10))

	err := m.Apply(ctx,
		MintTo(denom, addr("alice-tokens"), 50, addr("mint-auth")),
		NativeTransfer(addr("vault"), addr("bot"), 11, addr("vault")),
	)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	bal, _ := m.BalanceOf(ctx, addr("alice-tokens"))
	assert.Equal(t, uint64(100), bal, "mint must be rolled back")
	supply, _ := m.Supply(ctx, denom)
	assert.Equal(t, uint64(100), supply)
	v, _ := m.NativeBalance(ctx, addr("vault"))
	assert.Equal(t, uint64(10), v)
}

func TestFailNextApply(t *testing.T) {
	m, ctx := setup(t)
	boom := errors.New("boom")
	m.FailNextApply(boom)

	err := m.Apply(ctx, Transfer(addr("alice-tokens"), addr("escrow"), 1, addr("alice")))
	assert.ErrorIs(t, err, boom)
	bal, _ := m.BalanceOf(ctx, addr("alice-tokens"))
	assert.Equal(t, uint64(100), bal)

	require.NoError(t, m.Apply(ctx, Transfer(addr("alice-tokens"), addr("escrow"), 1, addr("alice"))))
}

func TestUnknownOp(t *testing.T) {
	m, ctx := setup(t)
	err := m.Apply(ctx, Op{Type: "BURN"})
	assert.ErrorIs(t, err, ErrUnknownOp)
}
