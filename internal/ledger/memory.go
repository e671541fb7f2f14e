package ledger

import (
	"context"
	"fmt"
	"sync"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/rebal/internal/logger"
	"github.com/elys-network/rebal/internal/utils"
)

var ledgerLogger = logger.GetForComponent("ledger")

// Memory is an in-process ledger. Apply stages every write and commits only
// when all ops succeed.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]TokenAccount
	mints    map[string]Mint
	native   map[string]uint64

	// failNext makes the next Apply fail with the given error; tests use it
	// to exercise rollback paths.
	failNext error
}

// NewMemory creates an empty ledger.
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]TokenAccount),
		mints:    make(map[string]Mint),
		native:   make(map[string]uint64),
	}
}

func (m *Memory) BalanceOf(ctx context.Context, account sdk.AccAddress) (uint64, error) {
	acc, err := m.Account(ctx, account)
	if err != nil {
		return 0, err
	}
	return acc.Amount, nil
}

func (m *Memory) Account(_ context.Context, account sdk.AccAddress) (TokenAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[account.String()]
	if !ok {
		return TokenAccount{}, ErrAccountNotFound
	}
	return acc, nil
}

func (m *Memory) Supply(_ context.Context, mint string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt, ok := m.mints[mint]
	if !ok {
		return 0, ErrMintNotFound
	}
	return mt.Supply, nil
}

func (m *Memory) NativeBalance(_ context.Context, addr sdk.AccAddress) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.native[addr.String()], nil
}

func (m *Memory) Apply(_ context.Context, ops ...Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failNext; err != nil {
		m.failNext = nil
		return err
	}

	stage := &memoryBook{base: m, accounts: map[string]TokenAccount{}, mints: map[string]Mint{}, natives: map[string]uint64{}}
	if err := applyOps(stage, ops); err != nil {
		ledgerLogger.Debug().Err(err).Int("ops", len(ops)).Msg("Ledger batch rejected")
		return err
	}
	for k, v := range stage.accounts {
		m.accounts[k] = v
	}
	for k, v := range stage.mints {
		m.mints[k] = v
	}
	for k, v := range stage.natives {
		m.native[k] = v
	}
	return nil
}

// FailNextApply arms a one-shot failure for the next Apply call.
func (m *Memory) FailNextApply(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *Memory) CreateMint(_ context.Context, denom string, authority sdk.AccAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mints[denom]; ok {
		return ErrMintExists
	}
	m.mints[denom] = Mint{Denom: denom, Authority: authority}
	return nil
}

func (m *Memory) OpenTokenAccount(_ context.Context, addr sdk.AccAddress, mint string, owner sdk.AccAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mints[mint]; !ok {
		return ErrMintNotFound
	}
	if _, ok := m.accounts[addr.String()]; ok {
		return ErrAccountExists
	}
	m.accounts[addr.String()] = TokenAccount{Address: addr, Mint: mint, Owner: owner}
	return nil
}

func (m *Memory) Provision(_ context.Context, mint Mint, accounts ...TokenAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, found := m.mints[mint.Denom]
	if found && !existing.Authority.Equals(mint.Authority) {
		return fmt.Errorf("%w: %s is held by %s", ErrMintExists, mint.Denom, existing.Authority)
	}
	seen := make(map[string]struct{}, len(accounts))
	for _, acc := range accounts {
		key := acc.Address.String()
		if _, taken := m.accounts[key]; taken {
			return fmt.Errorf("%w: %s", ErrAccountExists, key)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s listed twice", ErrAccountExists, key)
		}
		seen[key] = struct{}{}
	}

	if !found {
		m.mints[mint.Denom] = Mint{Denom: mint.Denom, Authority: mint.Authority}
	}
	for _, acc := range accounts {
		m.accounts[acc.Address.String()] = TokenAccount{Address: acc.Address, Mint: mint.Denom, Owner: acc.Owner}
	}
	return nil
}

func (m *Memory) FundNative(_ context.Context, addr sdk.AccAddress, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	total, err := utils.CheckedAdd(m.native[addr.String()], amount)
	if err != nil {
		return fmt.Errorf("failed to fund %s: %w", addr, err)
	}
	m.native[addr.String()] = total
	return nil
}

// Credit adds tokens to an account and to the mint supply outside of any
// authority check. It models tokens that already exist when the service starts.
func (m *Memory) Credit(_ context.Context, addr sdk.AccAddress, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[addr.String()]
	if !ok {
		return ErrAccountNotFound
	}
	mt := m.mints[acc.Mint]
	balance, err := utils.CheckedAdd(acc.Amount, amount)
	if err != nil {
		return fmt.Errorf("failed to credit %s: %w", addr, err)
	}
	supply, err := utils.CheckedAdd(mt.Supply, amount)
	if err != nil {
		return fmt.Errorf("failed to credit %s: %w", addr, err)
	}
	acc.Amount, mt.Supply = balance, supply
	m.accounts[addr.String()] = acc
	m.mints[acc.Mint] = mt
	return nil
}

type memoryBook struct {
	base     *Memory
	accounts map[string]TokenAccount
	mints    map[string]Mint
	natives  map[string]uint64
}

func (b *memoryBook) tokenAccount(addr sdk.AccAddress) (TokenAccount, error) {
	if acc, ok := b.accounts[addr.String()]; ok {
		return acc, nil
	}
	acc, ok := b.base.accounts[addr.String()]
	if !ok {
		return TokenAccount{}, ErrAccountNotFound
	}
	return acc, nil
}

func (b *memoryBook) putTokenAccount(acc TokenAccount) error {
	b.accounts[acc.Address.String()] = acc
	return nil
}

func (b *memoryBook) mint(denom string) (Mint, error) {
	if mt, ok := b.mints[denom]; ok {
		return mt, nil
	}
	mt, ok := b.base.mints[denom]
	if !ok {
		return Mint{}, ErrMintNotFound
	}
	return mt, nil
}

func (b *memoryBook) putMint(mt Mint) error {
	b.mints[mt.Denom] = mt
	return nil
}

func (b *memoryBook) native(addr sdk.AccAddress) (uint64, error) {
	if v, ok := b.natives[addr.String()]; ok {
		return v, nil
	}
	return b.base.native[addr.String()], nil
}

func (b *memoryBook) putNative(addr sdk.AccAddress, amount uint64) error {
	b.natives[addr.String()] = amount
	return nil
}
