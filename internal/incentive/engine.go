package incentive

import (
	"context"
	"errors"
	"fmt"
	"math"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/rebal/internal/authority"
	"github.com/elys-network/rebal/internal/clock"
	"github.com/elys-network/rebal/internal/events"
	"github.com/elys-network/rebal/internal/ledger"
	"github.com/elys-network/rebal/internal/logger"
	"github.com/elys-network/rebal/internal/metrics"
	"github.com/elys-network/rebal/internal/state"
	"github.com/elys-network/rebal/internal/types"
	"github.com/elys-network/rebal/internal/utils"
)

var (
	// ErrAuthorityMismatch is returned when a basket record does not match its
	// derived delegated identities.
	ErrAuthorityMismatch = errors.New("basket authority does not match derivation")
	ErrMissingExecutor   = errors.New("executor and executor token account are required")
)

// Config holds the engine collaborators.
type Config struct {
	Store    state.Store
	Ledger   ledger.Ledger
	Clock    clock.Clock
	Notifier events.Notifier  // optional
	Metrics  *metrics.Metrics // optional
}

// Engine validates and pays out rebalance executions.
type Engine struct {
	cfg Config
	log zerolog.Logger
}

// NewEngine creates an incentive engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("ledger cannot be nil")
	}
	if cfg.Clock == nil {
		return nil, errors.New("clock cannot be nil")
	}
	return &Engine{cfg: cfg, log: logger.GetForComponent("incentive")}, nil
}

// ExecuteRequest is an executor's claim after rebalancing a basket.
type ExecuteRequest struct {
	BasketID             string
	Executor             sdk.AccAddress
	ExecutorTokenAccount sdk.AccAddress // Receives the minted reward
	CurrentDeviation     uint64
}

// Result reports what was paid.
type Result struct {
	TokenReward  uint64 `json:"token_reward"`
	NativeReward uint64 `json:"native_reward"`
	Slashed      bool   `json:"slashed"`
	Timestamp    int64  `json:"timestamp"`
}

// Execute checks cooldown, then the whitelist, computes the reward and pays
// it. The mint and the treasury disbursement run as one ledger batch; the
// cooldown clock only restarts when both succeed.
func (e *Engine) Execute(ctx context.Context, req ExecuteRequest) (*Result, error) {
	if req.Executor.Empty() || req.ExecutorTokenAccount.Empty() {
		e.cfg.Metrics.Rejected("execute", "invalid_request")
		return nil, ErrMissingExecutor
	}

	var res *Result
	err := e.cfg.Store.Atomically(ctx, req.BasketID, func(tx state.Tx) error {
		b := tx.Basket()
		now := e.cfg.Clock.Now()

		ok, err := cooldownElapsed(now, b.LastRebalanceTs, b.CooldownSeconds)
		if err != nil {
			return fmt.Errorf("cooldown check failed: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: last rebalance %d, cooldown %ds, now %d", types.ErrCooldownActive, b.LastRebalanceTs, b.CooldownSeconds, now)
		}
		if !b.IsWhitelisted(req.Executor) {
			return types.ErrNotWhitelisted
		}

		reward, slashed, err := ComputeReward(b.BaseReward, b.Threshold, b.SlashFactor, req.CurrentDeviation)
		if err != nil {
			return err
		}

		dst, err := e.cfg.Ledger.Account(ctx, req.ExecutorTokenAccount)
		if err != nil {
			return fmt.Errorf("failed to load executor token account: %w", err)
		}
		if dst.Mint != b.GovernanceMint {
			return types.ErrWrongMint
		}
		if !dst.Owner.Equals(req.Executor) {
			return types.ErrNotAccountOwner
		}

		mintCap, ok := authority.Delegate(b, authority.PurposeMint)
		if !ok {
			return fmt.Errorf("%w: %s", ErrAuthorityMismatch, authority.PurposeMint)
		}
		treasuryCap, ok := authority.Delegate(b, authority.PurposeTreasury)
		if !ok {
			return fmt.Errorf("%w: %s", ErrAuthorityMismatch, authority.PurposeTreasury)
		}

		b.LastRebalanceTs = now
		if err := tx.SaveBasket(b); err != nil {
			return err
		}
		receipt := &types.RebalanceReceipt{
			BasketID:         b.ID,
			Bot:              req.Executor,
			CurrentDeviation: req.CurrentDeviation,
			TokenReward:      reward,
			LamportReward:    b.LamportReward,
			Slashed:          slashed,
			Timestamp:        now,
		}
		if err := tx.SaveReceipt(receipt); err != nil {
			return err
		}

		// Last step: a failed payout discards the timestamp and receipt above.
		err = e.cfg.Ledger.Apply(ctx,
			ledger.MintTo(b.GovernanceMint, req.ExecutorTokenAccount, reward, mintCap.Address()),
			ledger.NativeTransfer(treasuryCap.Address(), req.Executor, b.LamportReward, treasuryCap.Address()),
		)
		if err != nil {
			return fmt.Errorf("failed to pay rebalance reward: %w", err)
		}
		res = &Result{TokenReward: reward, NativeReward: b.LamportReward, Slashed: slashed, Timestamp: now}
		return nil
	})
	if err != nil {
		e.cfg.Metrics.Rejected("execute", reasonOf(err))
		return nil, err
	}

	e.cfg.Metrics.RebalanceExecuted(req.BasketID, res.Slashed, res.TokenReward, res.NativeReward)
	events.Emit(ctx, e.cfg.Notifier, types.RebalanceExecuted{
		Basket:        req.BasketID,
		Bot:           req.Executor,
		TokenReward:   res.TokenReward,
		LamportReward: res.NativeReward,
		Timestamp:     res.Timestamp,
	})
	e.log.Info().
		Str("basket", req.BasketID).
		Str("bot", req.Executor.String()).
		Uint64("deviation", req.CurrentDeviation).
		Uint64("tokenReward", res.TokenReward).
		Uint64("nativeReward", res.NativeReward).
		Bool("slashed", res.Slashed).
		Msg("Rebalance rewarded")
	return res, nil
}

// Receipts returns the most recent executions of a basket, newest first.
func (e *Engine) Receipts(ctx context.Context, basketID string, limit int) ([]types.RebalanceReceipt, error) {
	return e.cfg.Store.ListReceipts(ctx, basketID, limit)
}

// Summary aggregates every execution of a basket.
func (e *Engine) Summary(ctx context.Context, basketID string) (*state.IncentiveSummary, error) {
	return e.cfg.Store.IncentiveSummary(ctx, basketID)
}

// NextEligible returns the first unix time at which the basket may be
// rebalanced again.
func (e *Engine) NextEligible(ctx context.Context, basketID string) (int64, error) {
	b, err := e.cfg.Store.GetBasket(ctx, basketID)
	if err != nil {
		return 0, err
	}
	if b.LastRebalanceTs == 0 {
		return 0, nil
	}
	next, err := utils.CheckedAdd(uint64(b.LastRebalanceTs), b.CooldownSeconds)
	if err != nil {
		return 0, err
	}
	if next > math.MaxInt64 {
		return 0, fmt.Errorf("%w: next eligible time %d", utils.ErrOverflow, next)
	}
	return int64(next), nil
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, types.ErrCooldownActive):
		return "cooldown"
	case errors.Is(err, types.ErrNotWhitelisted):
		return "not_whitelisted"
	case errors.Is(err, types.ErrBasketNotFound):
		return "not_found"
	case errors.Is(err, types.ErrWrongMint):
		return "wrong_mint"
	case errors.Is(err, types.ErrNotAccountOwner):
		return "not_owner"
	case errors.Is(err, ErrAuthorityMismatch):
		return "authority"
	case errors.Is(err, utils.ErrOverflow), errors.Is(err, utils.ErrUnderflow), errors.Is(err, utils.ErrDivisionByZero):
		return "arithmetic"
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrUnauthorizedSigner), errors.Is(err, ledger.ErrAccountNotFound):
		return "ledger"
	}
	return "other"
}
