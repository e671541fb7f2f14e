package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/lib/pq"

	"github.com/elys-network/rebal/internal/logger"
	"github.com/elys-network/rebal/internal/types"
)

var stateLogger = logger.GetForComponent("state")

// PostgresStore is the durable Store. Atomically holds a row lock on the
// basket for the length of one SQL transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open pool, usually state.DB after InitDB.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, ErrDBNotReady
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Atomically(ctx context.Context, basketID string, fn func(tx Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			sqlTx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			sqlTx.Rollback() // Rollback if error occurred
		}
	}()

	b, err := scanBasket(sqlTx.QueryRowContext(ctx, selectBasketSQL+` WHERE basket_id = $1 FOR UPDATE;`, basketID))
	if err != nil {
		return err
	}
	if err = fn(&postgresTx{ctx: ctx, tx: sqlTx, basket: b}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type postgresTx struct {
	ctx    context.Context
	tx     *sql.Tx
	basket *types.Basket
}

func (t *postgresTx) Basket() *types.Basket { return t.basket.Clone() }

func (t *postgresTx) SaveBasket(b *types.Basket) error {
	if b.ID != t.basket.ID {
		return types.ErrBasketNotFound
	}
	if err := updateBasket(t.ctx, t.tx, b); err != nil {
		return err
	}
	t.basket = b.Clone()
	return nil
}

func (t *postgresTx) Proposal(id string) (*types.Proposal, error) {
	p, err := scanProposal(t.tx.QueryRowContext(t.ctx,
		selectProposalSQL+` WHERE proposal_id = $1 AND basket_id = $2 FOR UPDATE;`, id, t.basket.ID))
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (t *postgresTx) CreateProposal(p *types.Proposal) error {
	if p.BasketID != t.basket.ID {
		return types.ErrBasketNotFound
	}
	return insertProposal(t.ctx, t.tx, p)
}

func (t *postgresTx) SaveProposal(p *types.Proposal) error {
	return updateProposal(t.ctx, t.tx, p)
}

func (t *postgresTx) SaveReceipt(r *types.RebalanceReceipt) error {
	if r.BasketID != t.basket.ID {
		return types.ErrBasketNotFound
	}
	return insertReceipt(t.ctx, t.tx, r)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func addrString(a sdk.AccAddress) string {
	if a.Empty() {
		return ""
	}
	return a.String()
}

func parseAddr(s string) (sdk.AccAddress, error) {
	if s == "" {
		return nil, nil
	}
	a, err := sdk.AccAddressFromBech32(s)
	if err != nil {
		return nil, fmt.Errorf("invalid stored address %q: %w", s, err)
	}
	return a, nil
}

func addrStrings(in []sdk.AccAddress) []string {
	out := make([]string, len(in))
	for i, a := range in {
		out[i] = a.String()
	}
	return out
}

func parseAddrs(in []string) ([]sdk.AccAddress, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]sdk.AccAddress, len(in))
	for i, s := range in {
		a, err := parseAddr(s)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
