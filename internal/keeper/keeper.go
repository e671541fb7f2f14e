// Package keeper is the executor side of the incentive engine: an operator-run
// loop that rebalances a basket and claims the reward.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/rebal/internal/clock"
	"github.com/elys-network/rebal/internal/incentive"
	"github.com/elys-network/rebal/internal/logger"
	"github.com/elys-network/rebal/internal/state"
	"github.com/elys-network/rebal/internal/types"
)

// Rebalancer performs the external trades for a basket and reports the
// deviation it observed before trading. Trade execution lives outside this
// repository.
type Rebalancer interface {
	Rebalance(ctx context.Context, basket *types.Basket) (deviation uint64, err error)
}

// RebalancerFunc adapts a function to Rebalancer.
type RebalancerFunc func(ctx context.Context, basket *types.Basket) (uint64, error)

func (f RebalancerFunc) Rebalance(ctx context.Context, basket *types.Basket) (uint64, error) {
	return f(ctx, basket)
}

// Incentives is the part of the incentive engine the keeper calls.
type Incentives interface {
	Execute(ctx context.Context, req incentive.ExecuteRequest) (*incentive.Result, error)
	NextEligible(ctx context.Context, basketID string) (int64, error)
}

// Outcome describes what one cycle did.
type Outcome string

const (
	OutcomeRewarded Outcome = "rewarded"
	OutcomeCooldown Outcome = "cooldown"
)

// CycleReport is the result of one RunCycle.
type CycleReport struct {
	ID          string
	Number      int
	Outcome     Outcome
	Deviation   uint64
	Reward      *incentive.Result
	NextAttempt int64
}

// Config holds the dependencies of a Keeper.
type Config struct {
	BasketID        string
	Bot             sdk.AccAddress
	BotTokenAccount sdk.AccAddress

	Baskets    state.Store
	Incentives Incentives
	Rebalancer Rebalancer
	Counter    state.CycleCounter
	Clock      clock.Clock
}

// Keeper drives periodic rebalance cycles for a single basket.
type Keeper struct {
	cfg    Config
	logger zerolog.Logger
}

// NewKeeper creates a keeper after validating its dependencies.
func NewKeeper(cfg Config) (*Keeper, error) {
	if err := validateKeeperConfig(cfg); err != nil {
		return nil, fmt.Errorf("keeper configuration validation failed: %w", err)
	}
	k := &Keeper{cfg: cfg, logger: logger.GetForComponent("keeper")}
	k.logger.Info().
		Str("basket", cfg.BasketID).
		Str("bot", cfg.Bot.String()).
		Msg("Keeper created")
	return k, nil
}

func validateKeeperConfig(cfg Config) error {
	if cfg.BasketID == "" {
		return errors.New("basket id cannot be empty")
	}
	if cfg.Bot.Empty() || cfg.BotTokenAccount.Empty() {
		return errors.New("bot address and bot token account are required")
	}
	if cfg.Baskets == nil {
		return errors.New("basket store cannot be nil")
	}
	if cfg.Incentives == nil {
		return errors.New("incentive engine cannot be nil")
	}
	if cfg.Rebalancer == nil {
		return errors.New("rebalancer cannot be nil")
	}
	if cfg.Counter == nil {
		return errors.New("cycle counter cannot be nil")
	}
	if cfg.Clock == nil {
		return errors.New("clock cannot be nil")
	}
	return nil
}

// RunLoop runs a cycle immediately, then once per interval until ctx is done.
func (k *Keeper) RunLoop(ctx context.Context, interval time.Duration) {
	k.logger.Info().Dur("interval", interval).Msg("Starting keeper loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	k.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			k.logger.Info().Msg("Keeper loop stopped due to context cancellation")
			return
		case <-ticker.C:
			k.runLogged(ctx)
		}
	}
}

func (k *Keeper) runLogged(ctx context.Context) {
	if _, err := k.RunCycle(ctx); err != nil {
		k.logger.Error().Err(err).Msg("Keeper cycle failed")
	}
}

// RunCycle rebalances the basket once and claims the reward. A basket still
// in cooldown is skipped without trading.
func (k *Keeper) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{ID: uuid.New().String()}
	cycleLogger := k.logger.With().Str("cycle_id", report.ID).Logger()

	number, err := k.cfg.Counter.Next(ctx)
	if err != nil {
		cycleLogger.Warn().Err(err).Msg("Failed to increment cycle number")
	}
	report.Number = number
	cycleLogger.Info().Int("cycle", number).Msg("--- Starting keeper cycle ---")

	next, err := k.cfg.Incentives.NextEligible(ctx, k.cfg.BasketID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cooldown: %w", err)
	}
	if now := k.cfg.Clock.Now(); now < next {
		cycleLogger.Info().Int64("now", now).Int64("nextEligible", next).Msg("Basket in cooldown, skipping cycle")
		report.Outcome = OutcomeCooldown
		report.NextAttempt = next
		return report, nil
	}

	basket, err := k.cfg.Baskets.GetBasket(ctx, k.cfg.BasketID)
	if err != nil {
		return nil, fmt.Errorf("failed to load basket: %w", err)
	}
	deviation, err := k.cfg.Rebalancer.Rebalance(ctx, basket)
	if err != nil {
		return nil, fmt.Errorf("rebalance failed: %w", err)
	}
	report.Deviation = deviation
	cycleLogger.Info().Uint64("deviation", deviation).Msg("Rebalance trades complete")

	res, err := k.cfg.Incentives.Execute(ctx, incentive.ExecuteRequest{
		BasketID:             k.cfg.BasketID,
		Executor:             k.cfg.Bot,
		ExecutorTokenAccount: k.cfg.BotTokenAccount,
		CurrentDeviation:     deviation,
	})
	if errors.Is(err, types.ErrCooldownActive) {
		// another executor claimed the window while we traded
		cycleLogger.Info().Err(err).Msg("Reward claim lost to cooldown")
		report.Outcome = OutcomeCooldown
		return report, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reward claim failed: %w", err)
	}

	report.Outcome = OutcomeRewarded
	report.Reward = res
	cycleLogger.Info().
		Uint64("tokenReward", res.TokenReward).
		Uint64("nativeReward", res.NativeReward).
		Bool("slashed", res.Slashed).
		Msg("--- Keeper cycle complete ---")
	return report, nil
}
