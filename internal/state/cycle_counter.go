/*

This file manages the persistent keeper cycle counter.
The counter is stored in the database so cycle numbers continue across restarts.

*/

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// CycleCounter hands out monotonically increasing keeper cycle numbers.
type CycleCounter interface {
	Current(ctx context.Context) (int, error)
	Next(ctx context.Context) (int, error)
}

// MemoryCycleCounter restarts from zero with the process.
type MemoryCycleCounter struct {
	mu  sync.Mutex
	cur int
}

func (c *MemoryCycleCounter) Current(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur, nil
}

func (c *MemoryCycleCounter) Next(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur++
	return c.cur, nil
}

// PostgresCycleCounter keeps the counter in the single-row cycle_counter table.
type PostgresCycleCounter struct {
	db *sql.DB
}

func NewPostgresCycleCounter(db *sql.DB) (*PostgresCycleCounter, error) {
	if db == nil {
		return nil, ErrDBNotReady
	}
	return &PostgresCycleCounter{db: db}, nil
}

// Current retrieves the current cycle number from the database
func (c *PostgresCycleCounter) Current(ctx context.Context) (int, error) {
	query := `SELECT current_cycle FROM cycle_counter WHERE id = 1;`

	var currentCycle int
	err := c.db.QueryRowContext(ctx, query).Scan(&currentCycle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// EnsureSchema inserts the row, so this only happens on a hand-edited table
			log.Warn().Msg("No cycle counter row found, initializing to 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current cycle number: %w", err)
	}

	log.Debug().Int("currentCycle", currentCycle).Msg("Retrieved current cycle number")
	return currentCycle, nil
}

// Next increments the cycle counter and returns the new value
func (c *PostgresCycleCounter) Next(ctx context.Context) (int, error) {
	updateQuery := `
		UPDATE cycle_counter
		SET current_cycle = current_cycle + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_cycle;`

	var newCycle int
	err := c.db.QueryRowContext(ctx, updateQuery).Scan(&newCycle)
	if err != nil {
		return 0, fmt.Errorf("failed to increment cycle number: %w", err)
	}

	log.Debug().Int("newCycle", newCycle).Msg("Incremented cycle counter")
	return newCycle, nil
}

// Reset sets the cycle counter to a specific value (for maintenance)
func (c *PostgresCycleCounter) Reset(ctx context.Context, cycleNumber int) error {
	if cycleNumber < 0 {
		return fmt.Errorf("cycle number cannot be negative: %d", cycleNumber)
	}

	updateQuery := `
		UPDATE cycle_counter
		SET current_cycle = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1;`

	result, err := c.db.ExecContext(ctx, updateQuery, cycleNumber)
	if err != nil {
		return fmt.Errorf("failed to reset cycle number to %d: %w", cycleNumber, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no rows updated when resetting cycle number")
	}

	log.Warn().Int("cycleNumber", cycleNumber).Msg("Reset cycle counter")
	return nil
}
