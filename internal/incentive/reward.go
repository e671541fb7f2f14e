// Package incentive pays executors for rebalancing a basket.
package incentive

import (
	"fmt"

	"github.com/elys-network/rebal/internal/utils"
)

// ComputeReward returns baseReward*deviation/threshold, divided again by
// slashFactor when deviation exceeds threshold. Division truncates. Any
// overflow or zero divisor is returned as an error.
func ComputeReward(baseReward, threshold, slashFactor, deviation uint64) (reward uint64, slashed bool, err error) {
	scaled, err := utils.CheckedMul(baseReward, deviation)
	if err != nil {
		return 0, false, fmt.Errorf("reward scaling failed: %w", err)
	}
	reward, err = utils.CheckedQuo(scaled, threshold)
	if err != nil {
		return 0, false, fmt.Errorf("reward normalisation failed: %w", err)
	}
	if deviation <= threshold {
		return reward, false, nil
	}
	reward, err = utils.CheckedQuo(reward, slashFactor)
	if err != nil {
		return 0, false, fmt.Errorf("reward slashing failed: %w", err)
	}
	return reward, true, nil
}

// cooldownElapsed reports whether a basket last rebalanced at last may run
// again at now. A basket that never rebalanced is always eligible.
func cooldownElapsed(now, last int64, cooldown uint64) (bool, error) {
	if last == 0 {
		return true, nil
	}
	elapsed, err := utils.CheckedSubInt64(now, last)
	if err != nil {
		return false, err
	}
	if elapsed < 0 {
		return false, fmt.Errorf("%w: clock %d is before last rebalance %d", utils.ErrUnderflow, now, last)
	}
	return uint64(elapsed) >= cooldown, nil
}
