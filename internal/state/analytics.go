package state

import (
	"context"
	"fmt"
)

// IncentiveSummary aggregates every receipt of a basket in one query.
func (s *PostgresStore) IncentiveSummary(ctx context.Context, basketID string) (*IncentiveSummary, error) {
	b, err := s.GetBasket(ctx, basketID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT
			COUNT(*) AS executions,
			COUNT(CASE WHEN slashed THEN 1 END) AS slashed_executions,
			COALESCE(SUM(token_reward), 0) AS total_token_reward,
			COALESCE(SUM(lamport_reward), 0) AS total_lamport_reward
		FROM rebalance_receipts
		WHERE basket_id = $1
	`

	summary := &IncentiveSummary{BasketID: basketID, LastRebalanceTs: b.LastRebalanceTs}
	err = s.db.QueryRowContext(ctx, query, basketID).Scan(
		&summary.Executions,
		&summary.SlashedExecutions,
		&summary.TotalTokenReward,
		&summary.TotalLamportReward,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get incentive summary: %w", err)
	}

	stateLogger.Debug().
		Str("basket", basketID).
		Int("executions", summary.Executions).
		Uint64("total_token_reward", summary.TotalTokenReward).
		Msg("Retrieved incentive summary")
	return summary, nil
}
