/*

This file contains the events emitted for off-chain observers. The engines never
read them back.

*/

package types

import (
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Event is a notification published after a successful call.
type Event interface {
	EventName() string
	BasketRef() string
}

type ProposalCreated struct {
	Basket     string         `json:"basket"`
	ProposalID string         `json:"proposal_id"`
	Kind       ProposalKind   `json:"kind"`
	Proposer   sdk.AccAddress `json:"proposer"`
	Expiration int64          `json:"expiration"`
}

type Voted struct {
	Basket     string         `json:"basket"`
	ProposalID string         `json:"proposal_id"`
	Kind       ProposalKind   `json:"kind"`
	Voter      sdk.AccAddress `json:"voter"`
	Weight     uint64         `json:"weight"`
	Accept     bool           `json:"accept"`
}

type ProposalFinalized struct {
	Basket     string       `json:"basket"`
	ProposalID string       `json:"proposal_id"`
	Kind       ProposalKind `json:"kind"`
	Approved   bool         `json:"approved"`
}

type RebalanceExecuted struct {
	Basket        string         `json:"basket"`
	Bot           sdk.AccAddress `json:"bot"`
	TokenReward   uint64         `json:"token_reward"`
	LamportReward uint64         `json:"lamport_reward"`
	Timestamp     int64          `json:"timestamp"`
}

type WhitelistUpdated struct {
	Basket    string           `json:"basket"`
	Whitelist []sdk.AccAddress `json:"whitelist"`
}

func (ProposalCreated) EventName() string   { return "ProposalCreated" }
func (ProposalFinalized) EventName() string { return "ProposalFinalized" }
func (Voted) EventName() string             { return "Voted" }
func (RebalanceExecuted) EventName() string { return "RebalanceExecuted" }
func (WhitelistUpdated) EventName() string  { return "WhitelistUpdated" }

func (e ProposalCreated) BasketRef() string   { return e.Basket }
func (e ProposalFinalized) BasketRef() string { return e.Basket }
func (e Voted) BasketRef() string             { return e.Basket }
func (e RebalanceExecuted) BasketRef() string { return e.Basket }
func (e WhitelistUpdated) BasketRef() string  { return e.Basket }
