package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elys-network/rebal/internal/types"
)

var ErrNoDatabase = errors.New("event log database is nil")

// PostgresNotifier appends events to the event_log table.
type PostgresNotifier struct {
	db *sql.DB
}

func NewPostgresNotifier(db *sql.DB) (*PostgresNotifier, error) {
	if db == nil {
		return nil, ErrNoDatabase
	}
	return &PostgresNotifier{db: db}, nil
}

func (n *PostgresNotifier) Notify(ctx context.Context, ev types.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", ev.EventName(), err)
	}
	_, err = n.db.ExecContext(ctx,
		`INSERT INTO event_log (event_name, basket_id, payload) VALUES ($1, $2, $3);`,
		ev.EventName(), ev.BasketRef(), payload)
	if err != nil {
		return fmt.Errorf("failed to insert %s into event_log: %w", ev.EventName(), err)
	}
	return nil
}
