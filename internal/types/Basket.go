/*

This file contains the basket type: the governed pool whose rebalancing parameters
and treasury are controlled by proposals and the rebalance incentive engine.

*/

package types

import (
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// StrategyID is the small tag selecting the rebalancing strategy of a basket.
type StrategyID uint8

// Basket is the governance configuration of one pool.
type Basket struct {
	ID          string         `json:"id"`
	Address     sdk.AccAddress `json:"address"`   // Derived from ID, root of every delegated authority
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Authority   sdk.AccAddress `json:"authority"` // Initializer, the only caller allowed to edit the whitelist

	GovernanceMint string `json:"governance_mint"` // Denom of the governance token used for voting weight and rewards

	// --- Governed parameters (only changed by finalized proposals) ---
	Threshold      uint64     `json:"threshold"` // Deviation bound, always > 0
	Strategy       StrategyID `json:"strategy"`
	EligibleAssets []string   `json:"eligible_assets"`

	// --- Governance constants ---
	QuorumPercentage uint8  `json:"quorum_percentage"` // 0..100
	CooldownSeconds  uint64 `json:"cooldown_seconds"`

	// --- Incentive constants ---
	BaseReward    uint64 `json:"base_reward"`
	LamportReward uint64 `json:"lamport_reward"` // Fixed native disbursement per execute
	SlashFactor   uint64 `json:"slash_factor"`   // Divisor applied when deviation exceeds threshold

	// --- Runtime state ---
	LastRebalanceTs int64 `json:"last_rebalance_ts"` // 0 means never

	Whitelist []sdk.AccAddress `json:"whitelist"` // Empty means unrestricted

	// --- Derived authorities ---
	MintAuthority sdk.AccAddress `json:"mint_authority"`
	Treasury      sdk.AccAddress `json:"treasury"`

	CreatedAt int64 `json:"created_at"`
}

// Validate checks the basket invariants the engines rely on.
func (b *Basket) Validate() error {
	if b.Name == "" {
		return ErrInvalidBasket
	}
	if b.GovernanceMint == "" {
		return ErrInvalidBasket
	}
	if err := sdk.ValidateDenom(b.GovernanceMint); err != nil {
		return ErrInvalidBasket
	}
	if b.Threshold == 0 {
		return ErrZeroThreshold
	}
	if b.QuorumPercentage > 100 {
		return ErrInvalidQuorum
	}
	if b.SlashFactor == 0 {
		return ErrZeroSlashFactor
	}
	return validateAssets(b.EligibleAssets)
}

// IsWhitelisted reports whether executor may call the incentive engine.
func (b *Basket) IsWhitelisted(executor sdk.AccAddress) bool {
	if len(b.Whitelist) == 0 {
		return true
	}
	for _, w := range b.Whitelist {
		if w.Equals(executor) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores never hand out shared slices.
func (b *Basket) Clone() *Basket {
	c := *b
	c.Address = cloneAddr(b.Address)
	c.Authority = cloneAddr(b.Authority)
	c.MintAuthority = cloneAddr(b.MintAuthority)
	c.Treasury = cloneAddr(b.Treasury)
	c.EligibleAssets = append([]string(nil), b.EligibleAssets...)
	c.Whitelist = cloneAddrs(b.Whitelist)
	return &c
}

// RebalanceReceipt records one successful execute call.
type RebalanceReceipt struct {
	ID               int64          `json:"id,omitempty"` // Assigned by the store
	BasketID         string         `json:"basket_id"`
	Bot              sdk.AccAddress `json:"bot"`
	CurrentDeviation uint64         `json:"current_deviation"`
	TokenReward      uint64         `json:"token_reward"`
	LamportReward    uint64         `json:"lamport_reward"`
	Slashed          bool           `json:"slashed"`
	Timestamp        int64          `json:"timestamp"`
}

func validateAssets(assets []string) error {
	seen := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		if err := sdk.ValidateDenom(a); err != nil {
			return ErrInvalidAsset
		}
		if _, dup := seen[a]; dup {
			return ErrDuplicateAsset
		}
		seen[a] = struct{}{}
	}
	return nil
}

func cloneAddr(a sdk.AccAddress) sdk.AccAddress {
	if a == nil {
		return nil
	}
	return append(sdk.AccAddress(nil), a...)
}

func cloneAddrs(in []sdk.AccAddress) []sdk.AccAddress {
	if in == nil {
		return nil
	}
	out := make([]sdk.AccAddress, len(in))
	for i, a := range in {
		out[i] = cloneAddr(a)
	}
	return out
}
