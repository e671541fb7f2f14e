package incentive

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/rebal/internal/clock"
	"github.com/elys-network/rebal/internal/events"
	"github.com/elys-network/rebal/internal/governance"
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
	return sdk.AccAddress(address.Module("incentive-test", []byte(name)))
}

type fixture struct {
	ctx      context.Context
	store    *state.MemoryStore
	ledger   *ledger.Memory
	clock    *clock.Manual
	rec      *events.Recorder
	registry *governance.Registry
	engine   *Engine
	basket   *types.Basket
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:    context.Background(),
		store:  state.NewMemoryStore(),
		ledger: ledger.NewMemory(),
		clock:  clock.NewManual(startTime),
		rec:    &events.Recorder{},
	}
	var err error
	f.registry, err = governance.NewRegistry(governance.Config{
		Store:  f.store,
		Ledger: f.ledger,
		Clock:  f.clock,
	})
	require.NoError(t, err)
	f.basket, err = f.registry.InitializeBasket(f.ctx, governance.InitParams{
		Name:             "Majors",
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
	})
	require.NoError(t, err)
	require.NoError(t, f.ledger.FundNative(f.ctx, f.basket.Treasury, 1_000))

	f.engine, err = NewEngine(Config{
		Store:    f.store,
		Ledger:   f.ledger,
		Clock:    f.clock,
		Notifier: f.rec,
		Metrics:  metrics.New(),
	})
	require.NoError(t, err)
	return f
}

// bot opens a reward account for name and returns the execute request
// template for it.
func (f *fixture) bot(t *testing.T, name string) ExecuteRequest {
	t.Helper()
	owner := acct(name)
	holding := acct(name + "/rewards")
	require.NoError(t, f.ledger.OpenTokenAccount(f.ctx, holding, govMint, owner))
	return ExecuteRequest{BasketID: f.basket.ID, Executor: owner, ExecutorTokenAccount: holding}
}

func (f *fixture) execute(req ExecuteRequest, deviation uint64) (*Result, error) {
	req.CurrentDeviation = deviation
	return f.engine.Execute(f.ctx, req)
}

func TestExecutePaysRewardAndTreasury(t *testing.T) {
	f := newFixture(t)
	bot := f.bot(t, "bot")

	res, err := f.execute(bot, 5)
	require.NoError(t, err)
	assert.Equal(t, &Result{TokenReward: 50, NativeReward: 5, Timestamp: startTime}, res)

	bal, _ := f.ledger.BalanceOf(f.ctx, bot.ExecutorTokenAccount)
	assert.Equal(t, uint64(50), bal)
	supply, _ := f.ledger.Supply(f.ctx, govMint)
	assert.Equal(t, uint64(50), supply)
	native, _ := f.ledger.NativeBalance(f.ctx, bot.Executor)
	assert.Equal(t, uint64(5), native)
	treasury, _ := f.ledger.NativeBalance(f.ctx, f.basket.Treasury)
	assert.Equal(t, uint64(995), treasury)

	b, err := f.store.GetBasket(f.ctx, f.basket.ID)
	require.NoError(t, err)
	assert.Equal(t, startTime, b.LastRebalanceTs)

	evs := f.rec.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, types.RebalanceExecuted{
		Basket: f.basket.ID, Bot: bot.Executor, TokenReward: 50, LamportReward: 5, Timestamp: startTime,
	}, evs[0])

	receipts, err := f.engine.Receipts(f.ctx, f.basket.ID, 0)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, uint64(5), receipts[0].CurrentDeviation)
	assert.False(t, receipts[0].Slashed)
}

func TestExecuteSlashesExcessiveDeviation(t *testing.T) {
	f := newFixture(t)
	res, err := f.execute(f.bot(t, "bot"), 20)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), res.TokenReward)
	assert.True(t, res.Slashed)
}

func TestCooldownGate(t *testing.T) {
	f := newFixture(t)
	bot := f.bot(t, "bot")
	_, err := f.execute(bot, 5)
	require.NoError(t, err)

	f.clock.Set(startTime + 59)
	_, err = f.execute(bot, 5)
	assert.ErrorIs(t, err, types.ErrCooldownActive)

	f.clock.Set(startTime + 60)
	_, err = f.execute(bot, 5)
	require.NoError(t, err)

	summary, err := f.engine.Summary(f.ctx, f.basket.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Executions)
	assert.Equal(t, uint64(100), summary.TotalTokenReward)
	assert.Equal(t, uint64(10), summary.TotalLamportReward)
	assert.Equal(t, startTime+60, summary.LastRebalanceTs)

	next, err := f.engine.NextEligible(f.ctx, f.basket.ID)
	require.NoError(t, err)
	assert.Equal(t, startTime+120, next)
}

func TestFirstCallIgnoresCooldown(t *testing.T) {
	f := newFixture(t)
	b, err := f.store.GetBasket(f.ctx, f.basket.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.Atomically(f.ctx, b.ID, func(tx state.Tx) error {
		nb := tx.Basket()
		nb.CooldownSeconds = 1 << 40
		return tx.SaveBasket(nb)
	}))

	next, err := f.engine.NextEligible(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, next)

	_, err = f.execute(f.bot(t, "bot"), 5)
	assert.NoError(t, err)
}

func TestWhitelistGate(t *testing.T) {
	f := newFixture(t)
	allowed := f.bot(t, "allowed")
	stranger := f.bot(t, "stranger")
	_, err := f.registry.SetWhitelist(f.ctx, f.basket.ID, acct("authority"), []sdk.AccAddress{allowed.Executor})
	require.NoError(t, err)

	_, err = f.execute(stranger, 5)
	assert.ErrorIs(t, err, types.ErrNotWhitelisted)

	_, err = f.execute(allowed, 5)
	require.NoError(t, err)

	// cooldown is checked before the whitelist
	_, err = f.execute(stranger, 5)
	assert.ErrorIs(t, err, types.ErrCooldownActive)
}

func TestPayoutFailureKeepsBasketRetryable(t *testing.T) {
	f := newFixture(t)
	bot := f.bot(t, "bot")

	f.ledger.FailNextApply(errors.New("node unreachable"))
	_, err := f.execute(bot, 5)
	require.Error(t, err)

	b, _ := f.store.GetBasket(f.ctx, f.basket.ID)
	assert.Zero(t, b.LastRebalanceTs)
	receipts, _ := f.engine.Receipts(f.ctx, f.basket.ID, 10)
	assert.Empty(t, receipts)
	assert.Empty(t, f.rec.Events())

	_, err = f.execute(bot, 5)
	require.NoError(t, err, "no cooldown started by the failed call")
}

func TestEmptyTreasuryFailsWholeCall(t *testing.T) {
	f := newFixture(t)
	bot := f.bot(t, "bot")
	treasury := f.basket.Treasury

	// drain the treasury
	require.NoError(t, f.ledger.Apply(f.ctx, ledger.NativeTransfer(treasury, acct("sink"), 1_000, treasury)))

	_, err := f.execute(bot, 5)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	bal, _ := f.ledger.BalanceOf(f.ctx, bot.ExecutorTokenAccount)
	assert.Zero(t, bal, "mint rolled back with the failed disbursement")
	b, _ := f.store.GetBasket(f.ctx, f.basket.ID)
	assert.Zero(t, b.LastRebalanceTs)
}

func TestExecutorAccountChecks(t *testing.T) {
	f := newFixture(t)
	bot := f.bot(t, "bot")

	other := f.bot(t, "other")
	_, err := f.execute(ExecuteRequest{BasketID: f.basket.ID, Executor: bot.Executor, ExecutorTokenAccount: other.ExecutorTokenAccount}, 5)
	assert.ErrorIs(t, err, types.ErrNotAccountOwner)

	require.NoError(t, f.ledger.CreateMint(f.ctx, "uother", acct("other-authority")))
	foreign := acct("bot/foreign")
	require.NoError(t, f.ledger.OpenTokenAccount(f.ctx, foreign, "uother", bot.Executor))
	_, err = f.execute(ExecuteRequest{BasketID: f.basket.ID, Executor: bot.Executor, ExecutorTokenAccount: foreign}, 5)
	assert.ErrorIs(t, err, types.ErrWrongMint)

	_, err = f.execute(ExecuteRequest{BasketID: "missing", Executor: bot.Executor, ExecutorTokenAccount: bot.ExecutorTokenAccount}, 5)
	assert.ErrorIs(t, err, types.ErrBasketNotFound)

	_, err = f.execute(ExecuteRequest{BasketID: f.basket.ID}, 5)
	assert.ErrorIs(t, err, ErrMissingExecutor)
}

func TestCorruptedAuthorityIsRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Atomically(f.ctx, f.basket.ID, func(tx state.Tx) error {
		b := tx.Basket()
		b.Treasury = acct("attacker")
		return tx.SaveBasket(b)
	}))

	_, err := f.execute(f.bot(t, "bot"), 5)
	assert.ErrorIs(t, err, ErrAuthorityMismatch)
}
