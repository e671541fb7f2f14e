/*

This file contains the default parameters for new baskets.

They are applied by callers that create a basket without spelling out every governance and
incentive constant. Each value balances how quickly a basket reacts against how cheaply it can
be drained or captured.

*/

package config

import (
	"github.com/elys-network/rebal/internal/governance"
)

// DefaultBasketParameters fills every numeric field of a new basket. Name, authority and
// governance mint are always supplied by the caller.
var DefaultBasketParameters = governance.InitParams{
	// --- Governed parameters ---
	Threshold: 500, // Deviation bound in basis points (5%).
	// Rationale: Rebalancing below 5% drift rarely pays for its own trading costs.
	// Above it, every additional point of drift is an exposure the holders did not vote for.

	Strategy: 1, // Proportional rebalancing.

	EligibleAssets: []string{}, // Chosen per basket by the first assets proposal.

	// --- Governance constants ---
	QuorumPercentage: 20, // 20% of supply must vote.
	// Rationale: Governance tokens are widely held and most holders are passive.
	// A higher quorum freezes parameters; a lower one lets a small holder rewrite them.

	CooldownSeconds: 3600, // One paid rebalance per hour.
	// Rationale: Bounds treasury outflow to 24 disbursements a day regardless of how
	// many executors compete for the reward.

	// --- Incentive constants ---
	BaseReward: 1_000_000, // Governance tokens paid at exactly threshold deviation.
	// Rationale: Reward scales linearly with deviation, so this is also the largest
	// unslashed payout.

	LamportReward: 50_000, // Native currency per execution.
	// Rationale: Covers the executor's fees for a typical rebalance so that small
	// deviations are still worth correcting.

	SlashFactor: 4, // Reward divided by 4 once deviation exceeds the threshold.
	// Rationale: An executor that waits for drift to grow would otherwise earn more
	// by rebalancing later. A factor of 4 makes waiting past the threshold unprofitable
	// until deviation reaches four times the bound.
}

// WithDefaults returns p with every zero numeric field taken from DefaultBasketParameters.
func WithDefaults(p governance.InitParams) governance.InitParams {
	d := DefaultBasketParameters
	if p.Threshold == 0 {
		p.Threshold = d.Threshold
	}
	if p.Strategy == 0 {
		p.Strategy = d.Strategy
	}
	if p.EligibleAssets == nil {
		p.EligibleAssets = append([]string{}, d.EligibleAssets...)
	}
	if p.QuorumPercentage == 0 {
		p.QuorumPercentage = d.QuorumPercentage
	}
	if p.CooldownSeconds == 0 {
		p.CooldownSeconds = d.CooldownSeconds
	}
	if p.BaseReward == 0 {
		p.BaseReward = d.BaseReward
	}
	if p.LamportReward == 0 {
		p.LamportReward = d.LamportReward
	}
	if p.SlashFactor == 0 {
		p.SlashFactor = d.SlashFactor
	}
	return p
}
