// Package governance owns the basket registry and the proposal lifecycle.
//
// Every proposal kind goes through the same create, vote and finalize state
// machine; only the payload applied to the basket differs.
package governance

import (
	"errors"

	"github.com/google/uuid"

	"github.com/elys-network/rebal/internal/clock"
	"github.com/elys-network/rebal/internal/events"
	"github.com/elys-network/rebal/internal/ledger"
	"github.com/elys-network/rebal/internal/metrics"
	"github.com/elys-network/rebal/internal/state"
)

// Config holds the collaborators shared by Registry and Engine.
type Config struct {
	Store    state.Store
	Ledger   ledger.Ledger
	Clock    clock.Clock
	Notifier events.Notifier  // optional
	Metrics  *metrics.Metrics // optional

	// NewID generates basket and proposal identifiers. Defaults to uuid v4.
	NewID func() string
}

func validateConfig(cfg *Config) error {
	if cfg.Store == nil {
		return errors.New("store cannot be nil")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger cannot be nil")
	}
	if cfg.Clock == nil {
		return errors.New("clock cannot be nil")
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.New().String() }
	}
	return nil
}
