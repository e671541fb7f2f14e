/*

This file contains the proposal types. The three governed parameters share one
proposal shape; the payload is a small sum type selected by ProposalKind.

*/

package types

import (
	"encoding/json"
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"
)

// ProposalKind tags which basket parameter a proposal changes.
type ProposalKind string

const (
	KindThreshold ProposalKind = "threshold"
	KindStrategy  ProposalKind = "strategy"
	KindAssets    ProposalKind = "assets"
)

// AllKinds lists every proposal kind, in a stable order.
var AllKinds = []ProposalKind{KindThreshold, KindStrategy, KindAssets}

// ParseProposalKind converts a wire string into a ProposalKind.
func ParseProposalKind(s string) (ProposalKind, error) {
	switch k := ProposalKind(s); k {
	case KindThreshold, KindStrategy, KindAssets:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// ProposalStatus is the lifecycle state of a proposal.
// Expiry is not stored: an Open proposal past its expiration is Expired.
type ProposalStatus string

const (
	StatusOpen    ProposalStatus = "open"
	StatusApplied ProposalStatus = "applied"
	StatusExpired ProposalStatus = "expired"
)

// Payload is the proposed new value of one governed parameter.
type Payload interface {
	Kind() ProposalKind
	Validate() error
	// Apply writes the payload into the basket. Slices are copied.
	Apply(b *Basket)
}

// ThresholdPayload proposes a new deviation threshold.
type ThresholdPayload struct {
	Threshold uint64 `json:"proposed_threshold"`
}

func (p ThresholdPayload) Kind() ProposalKind { return KindThreshold }

func (p ThresholdPayload) Validate() error {
	if p.Threshold == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, ErrZeroThreshold)
	}
	return nil
}

func (p ThresholdPayload) Apply(b *Basket) { b.Threshold = p.Threshold }

// StrategyPayload proposes a new strategy tag.
type StrategyPayload struct {
	Strategy StrategyID `json:"proposed_strategy"`
}

func (p StrategyPayload) Kind() ProposalKind { return KindStrategy }

func (p StrategyPayload) Validate() error { return nil }

func (p StrategyPayload) Apply(b *Basket) { b.Strategy = p.Strategy }

// AssetsPayload proposes a new eligible asset list.
type AssetsPayload struct {
	Assets []string `json:"proposed_assets"`
}

func (p AssetsPayload) Kind() ProposalKind { return KindAssets }

func (p AssetsPayload) Validate() error {
	if err := validateAssets(p.Assets); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

func (p AssetsPayload) Apply(b *Basket) {
	b.EligibleAssets = append([]string(nil), p.Assets...)
}

// Proposal is one governance proposal against a basket.
type Proposal struct {
	ID       string         `json:"id"`
	BasketID string         `json:"basket_id"`
	Kind     ProposalKind   `json:"kind"`
	Proposer sdk.AccAddress `json:"proposer"`
	Payload  Payload        `json:"-"`

	YesVotes         uint64 `json:"yes_votes"`
	NoVotes          uint64 `json:"no_votes"`
	SnapshotSupply   uint64 `json:"snapshot_supply"`   // Governance token supply at creation
	QuorumPercentage uint8  `json:"quorum_percentage"` // Copied from the basket at creation
	Expiration       int64  `json:"expiration"`

	Voters []sdk.AccAddress `json:"voters"`

	Status      ProposalStatus `json:"status"`
	CreatedAt   int64          `json:"created_at"`
	FinalizedAt int64          `json:"finalized_at,omitempty"`
}

// HasVoted reports whether voter is already in the voter set.
func (p *Proposal) HasVoted(voter sdk.AccAddress) bool {
	for _, v := range p.Voters {
		if v.Equals(voter) {
			return true
		}
	}
	return false
}

// StatusAt resolves the effective status at time now.
func (p *Proposal) StatusAt(now int64) ProposalStatus {
	if p.Status == StatusOpen && now > p.Expiration {
		return StatusExpired
	}
	return p.Status
}

// Clone returns a deep copy.
func (p *Proposal) Clone() *Proposal {
	c := *p
	c.Proposer = cloneAddr(p.Proposer)
	c.Voters = cloneAddrs(p.Voters)
	if a, ok := p.Payload.(AssetsPayload); ok {
		c.Payload = AssetsPayload{Assets: append([]string(nil), a.Assets...)}
	}
	return &c
}

// PayloadFields flattens a payload into its column form.
func PayloadFields(p Payload) (threshold uint64, strategy StrategyID, assets []string) {
	switch v := p.(type) {
	case ThresholdPayload:
		threshold = v.Threshold
	case StrategyPayload:
		strategy = v.Strategy
	case AssetsPayload:
		assets = v.Assets
	}
	return threshold, strategy, assets
}

// PayloadFromFields rebuilds a payload from its column form.
func PayloadFromFields(kind ProposalKind, threshold uint64, strategy StrategyID, assets []string) (Payload, error) {
	switch kind {
	case KindThreshold:
		return ThresholdPayload{Threshold: threshold}, nil
	case KindStrategy:
		return StrategyPayload{Strategy: strategy}, nil
	case KindAssets:
		return AssetsPayload{Assets: assets}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

type proposalJSON struct {
	proposalAlias
	ProposedThreshold *uint64     `json:"proposed_threshold,omitempty"`
	ProposedStrategy  *StrategyID `json:"proposed_strategy,omitempty"`
	ProposedAssets    []string    `json:"proposed_assets,omitempty"`
}

type proposalAlias Proposal

func (p Proposal) MarshalJSON() ([]byte, error) {
	out := proposalJSON{proposalAlias: proposalAlias(p)}
	switch v := p.Payload.(type) {
	case ThresholdPayload:
		out.ProposedThreshold = &v.Threshold
	case StrategyPayload:
		out.ProposedStrategy = &v.Strategy
	case AssetsPayload:
		out.ProposedAssets = v.Assets
	}
	return json.Marshal(out)
}

func (p *Proposal) UnmarshalJSON(data []byte) error {
	var in proposalJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*p = Proposal(in.proposalAlias)
	var threshold uint64
	var strategy StrategyID
	if in.ProposedThreshold != nil {
		threshold = *in.ProposedThreshold
	}
	if in.ProposedStrategy != nil {
		strategy = *in.ProposedStrategy
	}
	payload, err := PayloadFromFields(p.Kind, threshold, strategy, in.ProposedAssets)
	if err != nil {
		return err
	}
	p.Payload = payload
	return nil
}
