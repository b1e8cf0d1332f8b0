package pipeline

import (
	"context"
	"time"

	"cymbytes.com/cymlure/pkg/contract"
)

// Event is a progress notification. It carries no generated data.
type Event struct {
	RunID    string    `json:"run_id"`
	From     State     `json:"from"`
	To       State     `json:"to"`
	Stage    Stage     `json:"stage,omitempty"`
	Attempts int       `json:"attempts,omitempty"`
	BundleID string    `json:"bundle_id,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Observer receives best-effort progress events. Errors are logged and never
// change the outcome of a run.
type Observer interface {
	Notify(ctx context.Context, ev Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event) error

// Notify calls f.
func (f ObserverFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Observers fans an event out to several observers.
type Observers []Observer

// Notify calls every observer and returns the first error.
func (o Observers) Notify(ctx context.Context, ev Event) error {
	var first error
	for _, obs := range o {
		if err := obs.Notify(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BundleWriter persists finished bundles.
type BundleWriter interface {
	SaveBundle(ctx context.Context, b *contract.FinalBundle) error
}
