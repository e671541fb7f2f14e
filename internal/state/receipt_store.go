// ./internal/state/receipt_store.go
package state

import (
	"context"
	"fmt"

	"github.com/elys-network/rebal/internal/types"
)

func insertReceipt(ctx context.Context, db execer, r *types.RebalanceReceipt) error {
	query := `
		INSERT INTO rebalance_receipts (
			basket_id, bot, current_deviation, token_reward, lamport_reward, slashed, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING receipt_id;
	`
	err := db.QueryRowContext(ctx, query,
		r.BasketID, addrString(r.Bot), u64(r.CurrentDeviation),
		u64(r.TokenReward), u64(r.LamportReward), r.Slashed, r.Timestamp,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to save rebalance receipt: %w", err)
	}

	stateLogger.Info().
		Int64("receipt_id", r.ID).
		Str("basket", r.BasketID).
		Uint64("token_reward", r.TokenReward).
		Bool("slashed", r.Slashed).
		Msg("Rebalance receipt saved to database")
	return nil
}

// ListReceipts retrieves recent receipts of one basket with a bounded limit.
func (s *PostgresStore) ListReceipts(ctx context.Context, basketID string, limit int) ([]types.RebalanceReceipt, error) {
	if _, err := s.GetBasket(ctx, basketID); err != nil {
		return nil, err
	}
	query := `
		SELECT
			receipt_id, basket_id, bot, current_deviation,
			token_reward, lamport_reward, slashed, executed_at
		FROM rebalance_receipts
		WHERE basket_id = $1
		ORDER BY receipt_id DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, basketID, clampLimit(limit))
	if err != nil {
		stateLogger.Error().Err(err).Str("basket", basketID).Msg("Failed to query receipts")
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	receipts := []types.RebalanceReceipt{}
	for rows.Next() {
		var r types.RebalanceReceipt
		var bot string
		if err := rows.Scan(
			&r.ID, &r.BasketID, &bot, &r.CurrentDeviation,
			&r.TokenReward, &r.LamportReward, &r.Slashed, &r.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		if r.Bot, err = parseAddr(bot); err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return receipts, nil
}
