package governance

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/address"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/rebal/internal/clock"
	"github.com/elys-network/rebal/internal/events"
	"github.com/elys-network/rebal/internal/ledger"
	"github.com/elys-network/rebal/internal/metrics"
	"github.com/elys-network/rebal/internal/state"
	"github.com/elys-network/rebal/internal/types"
)

const (
	startTime = int64(1_000)
	govMint   = "urebal"
)

func acct(name string) sdk.AccAddress {
	return sdk.AccAddress(address.Module("governance-test", []byte(name)))
}

type fixture struct {
	ctx      context.Context
	store    *state.MemoryStore
	ledger   *ledger.Memory
	clock    *clock.Manual
	rec      *events.Recorder
	metrics  *metrics.Metrics
	registry *Registry
	engine   *Engine
	basket   *types.Basket
}

func defaultParams() InitParams {
	return InitParams{
		Name:             "Blue chips",
		Authority:        acct("authority"),
		GovernanceMint:   govMint,
		Threshold:        10,
		Strategy:         1,
		EligibleAssets:   []string{"uatom", "uosmo"},
		QuorumPercentage: 50,
		CooldownSeconds:  60,
		BaseReward:       100,
		LamportReward:    5,
		SlashFactor:      2,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	var seq atomic.Int64
	f := &fixture{
		ctx:     context.Background(),
		store:   state.NewMemoryStore(),
		ledger:  ledger.NewMemory(),
		clock:   clock.NewManual(startTime),
		rec:     &events.Recorder{},
		metrics: metrics.New(),
	}
	cfg := Config{
		Store:    f.store,
		Ledger:   f.ledger,
		Clock:    f.clock,
		Notifier: f.rec,
		Metrics:  f.metrics,
		NewID:    func() string { return fmt.Sprintf("id-%d", seq.Add(1)) },
	}
	var err error
	f.registry, err = NewRegistry(cfg)
	require.NoError(t, err)
	f.engine, err = NewEngine(cfg)
	require.NoError(t, err)
	f.basket, err = f.registry.InitializeBasket(f.ctx, defaultParams())
	require.NoError(t, err)
	return f
}

// staker opens a holding account for name and credits amount tokens.
func (f *fixture) staker(t *testing.T, name string, amount uint64) (owner, holding sdk.AccAddress) {
	t.Helper()
	owner = acct(name)
	holding = acct(name + "/holding")
	require.NoError(t, f.ledger.OpenTokenAccount(f.ctx, holding, govMint, owner))
	if amount > 0 {
		require.NoError(t, f.ledger.Credit(f.ctx, holding, amount))
	}
	return owner, holding
}

func (f *fixture) vote(owner, holding sdk.AccAddress, proposalID string, accept bool) error {
	_, _, err := f.engine.Vote(f.ctx, VoteRequest{
		ProposalID:     proposalID,
		Voter:          owner,
		HoldingAccount: holding,
		Accept:         accept,
	})
	return err
}

func (f *fixture) reloadBasket(t *testing.T) *types.Basket {
	t.Helper()
	b, err := f.registry.GetBasket(f.ctx, f.basket.ID)
	require.NoError(t, err)
	return b
}
