// Package events delivers governance and incentive events to off-chain observers.
//
// Delivery is best effort: a notifier failure is logged and never fails the call
// that produced the event.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/elys-network/rebal/internal/logger"
	"github.com/elys-network/rebal/internal/types"
)

// Notifier publishes one event.
type Notifier interface {
	Notify(ctx context.Context, ev types.Event) error
}

// Emit hands ev to n and logs, but does not return, any failure.
func Emit(ctx context.Context, n Notifier, ev types.Event) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, ev); err != nil {
		eventsLogger.Warn().Err(err).
			Str("event", ev.EventName()).
			Str("basket", ev.BasketRef()).
			Msg("Failed to deliver event")
	}
}

var eventsLogger = logger.GetForComponent("events")

// LogNotifier writes each event as a structured log line.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.GetForComponent("events")}
}

func (n *LogNotifier) Notify(_ context.Context, ev types.Event) error {
	n.log.Info().
		Str("event", ev.EventName()).
		Str("basket", ev.BasketRef()).
		Interface("payload", ev).
		Msg("Event emitted")
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev types.Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every event in memory. Tests use it to assert on emissions.
type Recorder struct {
	mu     sync.Mutex
	events []types.Event
	Err    error // returned from every Notify when set
}

func (r *Recorder) Notify(_ context.Context, ev types.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.Err
}

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Event(nil), r.events...)
}

// Reset drops every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
