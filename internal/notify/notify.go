// Package notify delivers user-facing events. Delivery is best effort: callers log
// failures and never roll back on them.
package notify

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"walletEngine/internal/model"
)

// Dispatcher sends an event to a user.
type Dispatcher interface {
	Notify(ctx context.Context, userID string, event model.Event) error
}

// LogDispatcher writes events to a zap logger.
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Notify(_ context.Context, userID string, event model.Event) error {
	d.logger.Info("notify",
		zap.String("user_id", userID),
		zap.String("kind", string(event.Kind)),
		zap.String("wallet_id", event.WalletID),
		zap.String("tx_id", event.TransactionID),
		zap.String("reason", event.Reason),
	)
	return nil
}

// Fanout delivers to every dispatcher and joins their errors.
type Fanout []Dispatcher

func (f Fanout) Notify(ctx context.Context, userID string, event model.Event) error {
	var errs []error
	for _, d := range f {
		if d == nil {
			continue
		}
		if err := d.Notify(ctx, userID, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps delivered events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (r *Recorder) Notify(_ context.Context, userID string, event model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	event.UserID = userID
	r.events = append(r.events, event)
	return nil
}

// FailWith makes following deliveries fail with err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Events returns the recorded events in delivery order.
func (r *Recorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

// Count returns how many events of kind were delivered for the transaction id.
func (r *Recorder) Count(kind model.EventKind, txID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind && e.TransactionID == txID {
			n++
		}
	}
	return n
}
