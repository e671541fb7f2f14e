package state

import (
	"context"
	"errors"
	"sync"
	"testing"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/rebal/internal/types"
)

func testAddr(name string) sdk.AccAddress {
	return sdk.AccAddress(address.Module("state-test", []byte(name)))
}

func newBasket(id string) *types.Basket {
	return &types.Basket{
		ID:               id,
		Address:          testAddr(id),
		Name:             "basket " + id,
		Authority:        testAddr("authority"),
		GovernanceMint:   "urebal",
		Threshold:        10,
		EligibleAssets:   []string{"uatom", "uosmo"},
		QuorumPercentage: 50,
		BaseReward:       100,
		SlashFactor:      2,
		CreatedAt:        1,
	}
}

func newProposal(id, basketID string, createdAt int64) *types.Proposal {
	return &types.Proposal{
		ID:         id,
		BasketID:   basketID,
		Kind:       types.KindThreshold,
		Payload:    types.ThresholdPayload{Threshold: 20},
		Expiration: 1000,
		Status:     types.StatusOpen,
		CreatedAt:  createdAt,
	}
}

func TestMemoryStoreBaskets(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateBasket(ctx, newBasket("b1")))
	assert.ErrorIs(t, s.CreateBasket(ctx, newBasket("b1")), ErrBasketExists)

	got, err := s.GetBasket(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "basket b1", got.Name)

	// returned baskets are copies
	got.EligibleAssets[0] = "mutated"
	again, _ := s.GetBasket(ctx, "b1")
	assert.Equal(t, "uatom", again.EligibleAssets[0])

	_, err = s.GetBasket(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrBasketNotFound)

	b2 := newBasket("b2")
	b2.CreatedAt = 0
	require.NoError(t, s.CreateBasket(ctx, b2))
	list, err := s.ListBaskets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b2", list[0].ID)
}

func TestAtomicallyCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateBasket(ctx, newBasket("b1")))

	err := s.Atomically(ctx, "b1", func(tx Tx) error {
		b := tx.Basket()
		b.Threshold = 42
		if err := tx.SaveBasket(b); err != nil {
			return err
		}
		if err := tx.CreateProposal(newProposal("p1", "b1", 5)); err != nil {
			return err
		}
		return tx.SaveReceipt(&types.RebalanceReceipt{BasketID: "b1", TokenReward: 7, Timestamp: 9})
	})
	require.NoError(t, err)

	b, _ := s.GetBasket(ctx, "b1")
	assert.Equal(t, uint64(42), b.Threshold)

	p, err := s.GetProposal(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, types.ThresholdPayload{Threshold: 20}, p.Payload)

	receipts, err := s.ListReceipts(ctx, "b1", 0)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, int64(1), receipts[0].ID)
}

func TestAtomicallyDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateBasket(ctx, newBasket("b1")))
	boom := errors.New("ledger rejected")

	err := s.Atomically(ctx, "b1", func(tx Tx) error {
		b := tx.Basket()
		b.LastRebalanceTs = 100
		require.NoError(t, tx.SaveBasket(b))
		require.NoError(t, tx.CreateProposal(newProposal("p1", "b1", 5)))
		require.NoError(t, tx.SaveReceipt(&types.RebalanceReceipt{BasketID: "b1"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	b, _ := s.GetBasket(ctx, "b1")
	assert.Equal(t, int64(0), b.LastRebalanceTs)
	_, err = s.GetProposal(ctx, "p1")
	assert.ErrorIs(t, err, types.ErrProposalNotFound)
	receipts, _ := s.ListReceipts(ctx, "b1", 10)
	assert.Empty(t, receipts)
}

func TestAtomicallyUnknownBasket(t *testing.T) {
	s := NewMemoryStore()
	called := false
	err := s.Atomically(context.Background(), "nope", func(Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, types.ErrBasketNotFound)
	assert.False(t, called)
}

func TestTxProposalScopedToBasket(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateBasket(ctx, newBasket("b1")))
	require.NoError(t, s.CreateBasket(ctx, newBasket("b2")))
	require.NoError(t, s.Atomically(ctx, "b1", func(tx Tx) error {
		return tx.CreateProposal(newProposal("p1", "b1", 1))
	}))

	err := s.Atomically(ctx, "b2", func(tx Tx) error {
		_, err := tx.Proposal("p1")
		return err
	})
	assert.ErrorIs(t, err, types.ErrProposalNotFound)

	err = s.Atomically(ctx, "b1", func(tx Tx) error {
		return tx.CreateProposal(newProposal("p1", "b1", 2))
	})
	assert.ErrorIs(t, err, ErrProposalExists)
}

func TestAtomicallySerializesPerBasket(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateBasket(ctx, newBasket("b1")))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Atomically(ctx, "b1", func(tx Tx) error {
				b := tx.Basket()
				b.LastRebalanceTs++
				return tx.SaveBasket(b)
			})
		}()
	}
	wg.Wait()

	b, _ := s.GetBasket(ctx, "b1")
	assert.Equal(t, int64(50), b.LastRebalanceTs)
}

func TestListProposalsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateBasket(ctx, newBasket("b1")))
	require.NoError(t, s.Atomically(ctx, "b1", func(tx Tx) error {
		if err := tx.CreateProposal(newProposal("old", "b1", 1)); err != nil {
			return err
		}
		return tx.CreateProposal(newProposal("new", "b1", 2))
	}))

	list, err := s.ListProposals(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)

	_, err = s.ListProposals(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrBasketNotFound)
}

func TestReceiptsAndSummary(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateBasket(ctx, newBasket("b1")))

	for i, r := range []types.RebalanceReceipt{
		{BasketID: "b1", TokenReward: 100, LamportReward: 5, Timestamp: 10},
		{BasketID: "b1", TokenReward: 50, LamportReward: 5, Slashed: true, Timestamp: 20},
		{BasketID: "b1", TokenReward: 30, LamportReward: 5, Slashed: true, Timestamp: 30},
	} {
		r := r
		require.NoError(t, s.Atomically(ctx, "b1", func(tx Tx) error {
			b := tx.Basket()
			b.LastRebalanceTs = r.Timestamp
			if err := tx.SaveBasket(b); err != nil {
				return err
			}
			return tx.SaveReceipt(&r)
		}), "receipt %d", i)
	}

	recent, err := s.ListReceipts(ctx, "b1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(30), recent[0].Timestamp)
	assert.Equal(t, int64(20), recent[1].Timestamp)

	sum, err := s.IncentiveSummary(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, &IncentiveSummary{
		BasketID:           "b1",
		Executions:         3,
		SlashedExecutions:  2,
		TotalTokenReward:   180,
		TotalLamportReward: 15,
		LastRebalanceTs:    30,
	}, sum)
}

func TestMemoryCycleCounter(t *testing.T) {
	ctx := context.Background()
	c := &MemoryCycleCounter{}
	n, _ := c.Next(ctx)
	assert.Equal(t, 1, n)
	n, _ = c.Next(ctx)
	assert.Equal(t, 2, n)
	cur, _ := c.Current(ctx)
	assert.Equal(t, 2, cur)
}
