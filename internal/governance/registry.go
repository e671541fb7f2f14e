package governance

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/rebal/internal/authority"
	"github.com/elys-network/rebal/internal/events"
	"github.com/elys-network/rebal/internal/ledger"
	"github.com/elys-network/rebal/internal/logger"
	"github.com/elys-network/rebal/internal/state"
	"github.com/elys-network/rebal/internal/types"
)

// Registry creates baskets and edits the fields that are not governed by proposals.
type Registry struct {
	cfg Config
	log zerolog.Logger
}

// NewRegistry creates a registry over the given collaborators.
func NewRegistry(cfg Config) (*Registry, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("registry configuration validation failed: %w", err)
	}
	return &Registry{cfg: cfg, log: logger.GetForComponent("registry")}, nil
}

// InitParams are the caller-supplied fields of a new basket.
type InitParams struct {
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	Authority        sdk.AccAddress   `json:"authority"`
	GovernanceMint   string           `json:"governance_mint"`
	Threshold        uint64           `json:"threshold"`
	Strategy         types.StrategyID `json:"strategy"`
	EligibleAssets   []string         `json:"eligible_assets"`
	QuorumPercentage uint8            `json:"quorum_percentage"`
	CooldownSeconds  uint64           `json:"cooldown_seconds"`
	BaseReward       uint64           `json:"base_reward"`
	LamportReward    uint64           `json:"lamport_reward"`
	SlashFactor      uint64           `json:"slash_factor"`
	Whitelist        []sdk.AccAddress `json:"whitelist"`
}

// InitializeBasket validates p, derives the basket's delegated identities and
// stores the new basket. When the ledger can provision, the governance mint
// (under the derived mint authority) and one escrow account per proposal kind
// are opened as well.
func (r *Registry) InitializeBasket(ctx context.Context, p InitParams) (*types.Basket, error) {
	if p.Authority.Empty() {
		return nil, fmt.Errorf("%w: authority is required", types.ErrInvalidBasket)
	}
	whitelist, err := normalizeWhitelist(p.Whitelist)
	if err != nil {
		return nil, err
	}

	id := r.cfg.NewID()
	addr := authority.BasketAddress(id)
	b := &types.Basket{
		ID:               id,
		Address:          addr,
		Name:             p.Name,
		Description:      p.Description,
		Authority:        p.Authority,
		GovernanceMint:   p.GovernanceMint,
		Threshold:        p.Threshold,
		Strategy:         p.Strategy,
		EligibleAssets:   append([]string(nil), p.EligibleAssets...),
		QuorumPercentage: p.QuorumPercentage,
		CooldownSeconds:  p.CooldownSeconds,
		BaseReward:       p.BaseReward,
		LamportReward:    p.LamportReward,
		SlashFactor:      p.SlashFactor,
		Whitelist:        whitelist,
		MintAuthority:    authority.Derive(addr, authority.PurposeMint),
		Treasury:         authority.Derive(addr, authority.PurposeTreasury),
		CreatedAt:        r.cfg.Clock.Now(),
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	if prov, ok := ledger.AsProvisioner(r.cfg.Ledger); ok {
		if err := r.provision(ctx, prov, b); err != nil {
			return nil, err
		}
	}

	if err := r.cfg.Store.CreateBasket(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to store basket: %w", err)
	}

	r.log.Info().
		Str("basket", b.ID).
		Str("name", b.Name).
		Str("mint", b.GovernanceMint).
		Uint64("threshold", b.Threshold).
		Uint8("quorum", b.QuorumPercentage).
		Msg("Basket initialized")
	return b, nil
}

// provision opens the governance mint and the escrows in one ledger call.
// A mint held by any authority other than b.MintAuthority fails with
// ErrForeignMint.
func (r *Registry) provision(ctx context.Context, prov ledger.Provisioner, b *types.Basket) error {
	escrows := make([]ledger.TokenAccount, 0, len(types.AllKinds))
	for _, kind := range types.AllKinds {
		escrow := authority.EscrowAddress(b.Address, kind)
		escrows = append(escrows, ledger.TokenAccount{Address: escrow, Owner: escrow})
	}
	err := prov.Provision(ctx, ledger.Mint{Denom: b.GovernanceMint, Authority: b.MintAuthority}, escrows...)
	if errors.Is(err, ledger.ErrMintExists) {
		r.log.Warn().Str("mint", b.GovernanceMint).Str("basket", b.ID).Msg("Governance mint belongs to another authority")
		return fmt.Errorf("%w: %s", types.ErrForeignMint, b.GovernanceMint)
	}
	if err != nil {
		return fmt.Errorf("failed to provision basket accounts: %w", err)
	}
	return nil
}

// GetBasket returns one basket.
func (r *Registry) GetBasket(ctx context.Context, id string) (*types.Basket, error) {
	return r.cfg.Store.GetBasket(ctx, id)
}

// ListBaskets returns every basket.
func (r *Registry) ListBaskets(ctx context.Context) ([]*types.Basket, error) {
	return r.cfg.Store.ListBaskets(ctx)
}

// SetWhitelist replaces the executor whitelist. Only the basket authority may
// call it; an empty list lifts the restriction.
func (r *Registry) SetWhitelist(ctx context.Context, basketID string, caller sdk.AccAddress, list []sdk.AccAddress) (*types.Basket, error) {
	whitelist, err := normalizeWhitelist(list)
	if err != nil {
		return nil, err
	}

	var updated *types.Basket
	err = r.cfg.Store.Atomically(ctx, basketID, func(tx state.Tx) error {
		b := tx.Basket()
		if !b.Authority.Equals(caller) {
			return types.ErrUnauthorized
		}
		b.Whitelist = whitelist
		if err := tx.SaveBasket(b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		r.cfg.Metrics.Rejected("set_whitelist", reasonOf(err))
		return nil, err
	}

	events.Emit(ctx, r.cfg.Notifier, types.WhitelistUpdated{Basket: basketID, Whitelist: whitelist})
	r.log.Info().Str("basket", basketID).Int("entries", len(whitelist)).Msg("Whitelist updated")
	return updated, nil
}

// normalizeWhitelist drops duplicates and rejects empty addresses.
func normalizeWhitelist(in []sdk.AccAddress) ([]sdk.AccAddress, error) {
	out := make([]sdk.AccAddress, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, a := range in {
		if a.Empty() {
			return nil, fmt.Errorf("%w: empty whitelist entry", types.ErrInvalidBasket)
		}
		if _, dup := seen[string(a)]; dup {
			continue
		}
		seen[string(a)] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}
