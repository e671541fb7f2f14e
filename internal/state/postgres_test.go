package state

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/rebal/internal/ledger"
	"github.com/elys-network/rebal/internal/types"
)

// openTestDB connects to REBAL_TEST_DSN and recreates the schema. Tests that
// need it are skipped when the variable is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("REBAL_TEST_DSN")
	if dsn == "" {
		t.Skip("REBAL_TEST_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	prev := DB
	DB = db
	t.Cleanup(func() {
		DB = prev
		db.Close()
	})
	require.NoError(t, DropSchema())
	require.NoError(t, EnsureSchema())
	return db
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s, err := NewPostgresStore(db)
	require.NoError(t, err)

	b := newBasket("b1")
	b.MintAuthority = testAddr("mint")
	b.Treasury = testAddr("treasury")
	b.Whitelist = []sdk.AccAddress{testAddr("bot")}
	require.NoError(t, s.CreateBasket(ctx, b))
	assert.ErrorIs(t, s.CreateBasket(ctx, b), ErrBasketExists)

	got, err := s.GetBasket(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, b.EligibleAssets, got.EligibleAssets)
	assert.True(t, got.Whitelist[0].Equals(testAddr("bot")))
	assert.True(t, got.Treasury.Equals(b.Treasury))

	p := newProposal("p1", "b1", 3)
	p.Proposer = testAddr("alice")
	p.SnapshotSupply = 1 << 63
	require.NoError(t, s.Atomically(ctx, "b1", func(tx Tx) error {
		return tx.CreateProposal(p)
	}))

	require.NoError(t, s.Atomically(ctx, "b1", func(tx Tx) error {
		loaded, err := tx.Proposal("p1")
		if err != nil {
			return err
		}
		loaded.YesVotes = 7
		loaded.Voters = append(loaded.Voters, testAddr("alice"))
		return tx.SaveProposal(loaded)
	}))

	loaded, err := s.GetProposal(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), loaded.YesVotes)
	assert.Equal(t, uint64(1<<63), loaded.SnapshotSupply)
	assert.Equal(t, types.ThresholdPayload{Threshold: 20}, loaded.Payload)
	assert.True(t, loaded.HasVoted(testAddr("alice")))
}

func TestPostgresAtomicallyRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s, err := NewPostgresStore(db)
	require.NoError(t, err)
	require.NoError(t, s.CreateBasket(ctx, newBasket("b1")))

	boom := errors.New("boom")
	err = s.Atomically(ctx, "b1", func(tx Tx) error {
		b := tx.Basket()
		b.LastRebalanceTs = 99
		require.NoError(t, tx.SaveBasket(b))
		require.NoError(t, tx.SaveReceipt(&types.RebalanceReceipt{BasketID: "b1", Bot: testAddr("bot"), Timestamp: 99}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	b, _ := s.GetBasket(ctx, "b1")
	assert.Equal(t, int64(0), b.LastRebalanceTs)
	sum, err := s.IncentiveSummary(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Executions)
}

func TestPostgresLedger(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	l := ledger.NewPostgres(db)

	require.NoError(t, l.CreateMint(ctx, "urebal", testAddr("mint")))
	require.NoError(t, l.OpenTokenAccount(ctx, testAddr("acc"), "urebal", testAddr("owner")))
	assert.ErrorIs(t, l.OpenTokenAccount(ctx, testAddr("x"), "unknown", testAddr("owner")), ledger.ErrMintNotFound)
	require.NoError(t, l.FundNative(ctx, testAddr("vault"), 10))

	err := l.Apply(ctx,
		ledger.MintTo("urebal", testAddr("acc"), 5, testAddr("mint")),
		ledger.NativeTransfer(testAddr("vault"), testAddr("bot"), 11, testAddr("vault")),
	)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	supply, _ := l.Supply(ctx, "urebal")
	assert.Equal(t, uint64(0), supply)

	require.NoError(t, l.Apply(ctx,
		ledger.MintTo("urebal", testAddr("acc"), 5, testAddr("mint")),
		ledger.NativeTransfer(testAddr("vault"), testAddr("bot"), 10, testAddr("vault")),
	))
	bal, _ := l.BalanceOf(ctx, testAddr("acc"))
	assert.Equal(t, uint64(5), bal)
	bot, _ := l.NativeBalance(ctx, testAddr("bot"))
	assert.Equal(t, uint64(10), bot)
}

func TestPostgresCycleCounter(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	c, err := NewPostgresCycleCounter(db)
	require.NoError(t, err)

	n, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, c.Reset(ctx, 10))
	cur, _ := c.Current(ctx)
	assert.Equal(t, 10, cur)
	assert.Error(t, c.Reset(ctx, -1))
}
