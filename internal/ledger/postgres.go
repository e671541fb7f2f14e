package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/lib/pq"

	"github.com/elys-network/rebal/internal/utils"
)

// Postgres is a ledger backed by the ledger_* tables (see state.EnsureSchema).
// Each Apply runs in a single serializable transaction and locks every row it
// touches.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) BalanceOf(ctx context.Context, account sdk.AccAddress) (uint64, error) {
	acc, err := p.Account(ctx, account)
	if err != nil {
		return 0, err
	}
	return acc.Amount, nil
}

func (p *Postgres) Account(ctx context.Context, account sdk.AccAddress) (TokenAccount, error) {
	return scanTokenAccount(p.db.QueryRowContext(ctx,
		`SELECT address, mint, owner, amount FROM ledger_token_accounts WHERE address = $1;`,
		account.String()))
}

func (p *Postgres) Supply(ctx context.Context, mint string) (uint64, error) {
	m, err := scanMint(p.db.QueryRowContext(ctx,
		`SELECT denom, authority, supply FROM ledger_mints WHERE denom = $1;`, mint))
	if err != nil {
		return 0, err
	}
	return m.Supply, nil
}

func (p *Postgres) NativeBalance(ctx context.Context, addr sdk.AccAddress) (uint64, error) {
	var amount uint64
	err := p.db.QueryRowContext(ctx,
		`SELECT lamports FROM ledger_native WHERE address = $1;`, addr.String()).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read native balance: %w", err)
	}
	return amount, nil
}

func (p *Postgres) Apply(ctx context.Context, ops ...Op) error {
	return p.inTx(ctx, func(b *txBook) error {
		return applyOps(b, ops)
	})
}

// inTx runs fn in one serializable transaction and commits when it succeeds.
func (p *Postgres) inTx(ctx context.Context, fn func(b *txBook) error) (err error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(&txBook{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return nil
}

func (p *Postgres) CreateMint(ctx context.Context, denom string, authority sdk.AccAddress) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO ledger_mints (denom, authority, supply) VALUES ($1, $2, 0);`,
		denom, authority.String())
	if isUniqueViolation(err) {
		return ErrMintExists
	}
	if err != nil {
		return fmt.Errorf("failed to create mint %s: %w", denom, err)
	}
	return nil
}

func (p *Postgres) OpenTokenAccount(ctx context.Context, addr sdk.AccAddress, mint string, owner sdk.AccAddress) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO ledger_token_accounts (address, mint, owner, amount) VALUES ($1, $2, $3, 0);`,
		addr.String(), mint, owner.String())
	if isUniqueViolation(err) {
		return ErrAccountExists
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return ErrMintNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to open token account: %w", err)
	}
	return nil
}

func (p *Postgres) FundNative(ctx context.Context, addr sdk.AccAddress, amount uint64) error {
	return p.inTx(ctx, func(b *txBook) error {
		current, err := b.native(addr)
		if err != nil {
			return fmt.Errorf("failed to read native balance: %w", err)
		}
		total, err := utils.CheckedAdd(current, amount)
		if err != nil {
			return fmt.Errorf("failed to fund %s: %w", addr, err)
		}
		return b.putNative(addr, total)
	})
}

func (p *Postgres) Credit(ctx context.Context, addr sdk.AccAddress, amount uint64) error {
	return p.inTx(ctx, func(b *txBook) error {
		acc, err := b.tokenAccount(addr)
		if err != nil {
			return err
		}
		mt, err := b.mint(acc.Mint)
		if err != nil {
			return err
		}
		if acc.Amount, err = utils.CheckedAdd(acc.Amount, amount); err != nil {
			return fmt.Errorf("failed to credit %s: %w", addr, err)
		}
		if mt.Supply, err = utils.CheckedAdd(mt.Supply, amount); err != nil {
			return fmt.Errorf("failed to credit %s: %w", addr, err)
		}
		if err := b.putTokenAccount(acc); err != nil {
			return err
		}
		return b.putMint(mt)
	})
}

func (p *Postgres) Provision(ctx context.Context, mint Mint, accounts ...TokenAccount) error {
	return p.inTx(ctx, func(b *txBook) error {
		if _, err := b.tx.ExecContext(ctx,
			`INSERT INTO ledger_mints (denom, authority, supply) VALUES ($1, $2, 0) ON CONFLICT (denom) DO NOTHING;`,
			mint.Denom, mint.Authority.String()); err != nil {
			return fmt.Errorf("failed to create mint %s: %w", mint.Denom, err)
		}
		existing, err := b.mint(mint.Denom)
		if err != nil {
			return err
		}
		if !existing.Authority.Equals(mint.Authority) {
			return fmt.Errorf("%w: %s is held by %s", ErrMintExists, mint.Denom, existing.Authority)
		}
		for _, acc := range accounts {
			_, err := b.tx.ExecContext(ctx,
				`INSERT INTO ledger_token_accounts (address, mint, owner, amount) VALUES ($1, $2, $3, 0);`,
				acc.Address.String(), mint.Denom, acc.Owner.String())
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrAccountExists, acc.Address)
			}
			if err != nil {
				return fmt.Errorf("failed to open token account: %w", err)
			}
		}
		return nil
	})
}

type txBook struct {
	ctx context.Context
	tx  *sql.Tx
}

func (b *txBook) tokenAccount(addr sdk.AccAddress) (TokenAccount, error) {
	return scanTokenAccount(b.tx.QueryRowContext(b.ctx,
		`SELECT address, mint, owner, amount FROM ledger_token_accounts WHERE address = $1 FOR UPDATE;`,
		addr.String()))
}

func (b *txBook) putTokenAccount(acc TokenAccount) error {
	_, err := b.tx.ExecContext(b.ctx,
		`UPDATE ledger_token_accounts SET amount = $2 WHERE address = $1;`,
		acc.Address.String(), u64(acc.Amount))
	return err
}

func (b *txBook) mint(denom string) (Mint, error) {
	return scanMint(b.tx.QueryRowContext(b.ctx,
		`SELECT denom, authority, supply FROM ledger_mints WHERE denom = $1 FOR UPDATE;`, denom))
}

func (b *txBook) putMint(m Mint) error {
	_, err := b.tx.ExecContext(b.ctx,
		`UPDATE ledger_mints SET supply = $2 WHERE denom = $1;`, m.Denom, u64(m.Supply))
	return err
}

func (b *txBook) native(addr sdk.AccAddress) (uint64, error) {
	var amount uint64
	err := b.tx.QueryRowContext(b.ctx,
		`SELECT lamports FROM ledger_native WHERE address = $1 FOR UPDATE;`, addr.String()).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return amount, err
}

func (b *txBook) putNative(addr sdk.AccAddress, amount uint64) error {
	_, err := b.tx.ExecContext(b.ctx, `
		INSERT INTO ledger_native (address, lamports) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET lamports = EXCLUDED.lamports;`,
		addr.String(), u64(amount))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTokenAccount(row rowScanner) (TokenAccount, error) {
	var addr, owner string
	acc := TokenAccount{}
	if err := row.Scan(&addr, &acc.Mint, &owner, &acc.Amount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TokenAccount{}, ErrAccountNotFound
		}
		return TokenAccount{}, fmt.Errorf("failed to scan token account: %w", err)
	}
	var err error
	if acc.Address, err = sdk.AccAddressFromBech32(addr); err != nil {
		return TokenAccount{}, err
	}
	if acc.Owner, err = sdk.AccAddressFromBech32(owner); err != nil {
		return TokenAccount{}, err
	}
	return acc, nil
}

func scanMint(row rowScanner) (Mint, error) {
	var authority string
	m := Mint{}
	if err := row.Scan(&m.Denom, &authority, &m.Supply); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Mint{}, ErrMintNotFound
		}
		return Mint{}, fmt.Errorf("failed to scan mint: %w", err)
	}
	var err error
	if m.Authority, err = sdk.AccAddressFromBech32(authority); err != nil {
		return Mint{}, err
	}
	return m, nil
}

// u64 formats amounts for NUMERIC(20,0) columns; database/sql rejects uint64
// parameters with the high bit set.
func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
