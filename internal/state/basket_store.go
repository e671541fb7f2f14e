// ./internal/state/basket_store.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/elys-network/rebal/internal/types"
)

const selectBasketSQL = `
	SELECT
		basket_id, address, name, description, authority, governance_mint,
		threshold, strategy, eligible_assets,
		quorum_percentage, cooldown_seconds,
		base_reward, lamport_reward, slash_factor,
		last_rebalance_ts, whitelist, mint_authority, treasury, created_at
	FROM baskets`

const selectProposalSQL = `
	SELECT
		proposal_id, basket_id, kind, proposer,
		proposed_threshold, proposed_strategy, proposed_assets,
		yes_votes, no_votes, snapshot_supply, quorum_percentage, expiration,
		voters, status, created_at, finalized_at
	FROM proposals`

// CreateBasket inserts a new basket row.
func (s *PostgresStore) CreateBasket(ctx context.Context, b *types.Basket) error {
	stmt := `
		INSERT INTO baskets (
			basket_id, address, name, description, authority, governance_mint,
			threshold, strategy, eligible_assets,
			quorum_percentage, cooldown_seconds,
			base_reward, lamport_reward, slash_factor,
			last_rebalance_ts, whitelist, mint_authority, treasury, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11,
			$12, $13, $14,
			$15, $16, $17, $18, $19
		);`
	_, err := s.db.ExecContext(ctx, stmt,
		b.ID, addrString(b.Address), b.Name, b.Description, addrString(b.Authority), b.GovernanceMint,
		u64(b.Threshold), b.Strategy, pq.Array(nonNil(b.EligibleAssets)),
		b.QuorumPercentage, u64(b.CooldownSeconds),
		u64(b.BaseReward), u64(b.LamportReward), u64(b.SlashFactor),
		b.LastRebalanceTs, pq.Array(addrStrings(b.Whitelist)), addrString(b.MintAuthority), addrString(b.Treasury), b.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrBasketExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert basket %s: %w", b.ID, err)
	}
	stateLogger.Info().Str("basket", b.ID).Str("name", b.Name).Msg("Saved basket")
	return nil
}

// GetBasket loads one basket.
func (s *PostgresStore) GetBasket(ctx context.Context, id string) (*types.Basket, error) {
	return scanBasket(s.db.QueryRowContext(ctx, selectBasketSQL+` WHERE basket_id = $1;`, id))
}

// ListBaskets returns every basket, oldest first.
func (s *PostgresStore) ListBaskets(ctx context.Context) ([]*types.Basket, error) {
	rows, err := s.db.QueryContext(ctx, selectBasketSQL+` ORDER BY created_at ASC, basket_id ASC;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query baskets: %w", err)
	}
	defer rows.Close()

	out := []*types.Basket{}
	for rows.Next() {
		b, err := scanBasket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// GetProposal loads one proposal.
func (s *PostgresStore) GetProposal(ctx context.Context, id string) (*types.Proposal, error) {
	return scanProposal(s.db.QueryRowContext(ctx, selectProposalSQL+` WHERE proposal_id = $1;`, id))
}

// ListProposals returns the proposals of one basket, newest first.
func (s *PostgresStore) ListProposals(ctx context.Context, basketID string) ([]*types.Proposal, error) {
	if _, err := s.GetBasket(ctx, basketID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		selectProposalSQL+` WHERE basket_id = $1 ORDER BY created_at DESC, proposal_id ASC;`, basketID)
	if err != nil {
		return nil, fmt.Errorf("failed to query proposals: %w", err)
	}
	defer rows.Close()

	out := []*types.Proposal{}
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func updateBasket(ctx context.Context, db execer, b *types.Basket) error {
	stmt := `
		UPDATE baskets SET
			threshold = $2, strategy = $3, eligible_assets = $4,
			last_rebalance_ts = $5, whitelist = $6
		WHERE basket_id = $1;`
	_, err := db.ExecContext(ctx, stmt,
		b.ID, u64(b.Threshold), b.Strategy, pq.Array(nonNil(b.EligibleAssets)),
		b.LastRebalanceTs, pq.Array(addrStrings(b.Whitelist)),
	)
	if err != nil {
		return fmt.Errorf("failed to update basket %s: %w", b.ID, err)
	}
	return nil
}

func insertProposal(ctx context.Context, db execer, p *types.Proposal) error {
	threshold, strategy, assets := types.PayloadFields(p.Payload)
	stmt := `
		INSERT INTO proposals (
			proposal_id, basket_id, kind, proposer,
			proposed_threshold, proposed_strategy, proposed_assets,
			yes_votes, no_votes, snapshot_supply, quorum_percentage, expiration,
			voters, status, created_at, finalized_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);`
	_, err := db.ExecContext(ctx, stmt,
		p.ID, p.BasketID, string(p.Kind), addrString(p.Proposer),
		u64(threshold), strategy, pq.Array(nonNil(assets)),
		u64(p.YesVotes), u64(p.NoVotes), u64(p.SnapshotSupply), p.QuorumPercentage, p.Expiration,
		pq.Array(addrStrings(p.Voters)), string(p.Status), p.CreatedAt, p.FinalizedAt,
	)
	if isUniqueViolation(err) {
		return ErrProposalExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert proposal %s: %w", p.ID, err)
	}
	return nil
}

func updateProposal(ctx context.Context, db execer, p *types.Proposal) error {
	stmt := `
		UPDATE proposals SET
			yes_votes = $2, no_votes = $3, voters = $4, status = $5, finalized_at = $6
		WHERE proposal_id = $1;`
	res, err := db.ExecContext(ctx, stmt,
		p.ID, u64(p.YesVotes), u64(p.NoVotes), pq.Array(addrStrings(p.Voters)), string(p.Status), p.FinalizedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update proposal %s: %w", p.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return types.ErrProposalNotFound
	}
	return nil
}

func scanBasket(row rowScanner) (*types.Basket, error) {
	var (
		b                                           types.Basket
		address, authority, mintAuthority, treasury string
		whitelist                                   []string
	)
	err := row.Scan(
		&b.ID, &address, &b.Name, &b.Description, &authority, &b.GovernanceMint,
		&b.Threshold, &b.Strategy, pq.Array(&b.EligibleAssets),
		&b.QuorumPercentage, &b.CooldownSeconds,
		&b.BaseReward, &b.LamportReward, &b.SlashFactor,
		&b.LastRebalanceTs, pq.Array(&whitelist), &mintAuthority, &treasury, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrBasketNotFound
		}
		return nil, fmt.Errorf("failed to scan basket: %w", err)
	}
	if b.Address, err = parseAddr(address); err != nil {
		return nil, err
	}
	if b.Authority, err = parseAddr(authority); err != nil {
		return nil, err
	}
	if b.MintAuthority, err = parseAddr(mintAuthority); err != nil {
		return nil, err
	}
	if b.Treasury, err = parseAddr(treasury); err != nil {
		return nil, err
	}
	if b.Whitelist, err = parseAddrs(whitelist); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanProposal(row rowScanner) (*types.Proposal, error) {
	var (
		p              types.Proposal
		kind, status   string
		proposer       string
		threshold      uint64
		strategy       types.StrategyID
		assets, voters []string
	)
	err := row.Scan(
		&p.ID, &p.BasketID, &kind, &proposer,
		&threshold, &strategy, pq.Array(&assets),
		&p.YesVotes, &p.NoVotes, &p.SnapshotSupply, &p.QuorumPercentage, &p.Expiration,
		pq.Array(&voters), &status, &p.CreatedAt, &p.FinalizedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrProposalNotFound
		}
		return nil, fmt.Errorf("failed to scan proposal: %w", err)
	}
	if p.Kind, err = types.ParseProposalKind(kind); err != nil {
		return nil, err
	}
	p.Status = types.ProposalStatus(status)
	if p.Proposer, err = parseAddr(proposer); err != nil {
		return nil, err
	}
	if p.Voters, err = parseAddrs(voters); err != nil {
		return nil, err
	}
	if p.Payload, err = types.PayloadFromFields(p.Kind, threshold, strategy, assets); err != nil {
		return nil, err
	}
	return &p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
