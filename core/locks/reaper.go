package locks

import (
	"context"
	"time"

	"github.com/EduardF1/adversus-interview-assignment/core/infra/events"
	"github.com/EduardF1/adversus-interview-assignment/core/infra/logging"
	"github.com/EduardF1/adversus-interview-assignment/core/infra/metrics"
)

// Reaper periodically deletes expired lock rows. Expiry is enforced on
// every manager and gate call regardless; the reaper only keeps the
// relation from accumulating dead rows between those calls.
type Reaper struct {
	store    Store
	interval time.Duration
	metrics  metrics.LockMetrics
	events   events.Publisher
}

// NewReaper wires a reaper over a lock store. A zero or negative interval
// disables it. Nil metrics or publisher default to no-ops.
func NewReaper(store Store, interval time.Duration, m metrics.LockMetrics, pub events.Publisher) *Reaper {
	if m == nil {
		m = metrics.Noop{}
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Reaper{store: store, interval: interval, metrics: m, events: pub}
}

// Run blocks sweeping on the configured interval until the context ends.
func (r *Reaper) Run(ctx context.Context) {
	if r == nil || r.store == nil || r.interval <= 0 {
		return
	}
	logging.Info("REAPER", "reaper started", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Info("REAPER", "reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one reap pass. Failures are logged and swallowed; whatever
// was reaped before the failure is still reported.
func (r *Reaper) Sweep(ctx context.Context) {
	if r == nil || r.store == nil {
		return
	}
	reaped, err := r.store.ReapExpired(ctx)
	if err != nil {
		logging.Error("REAPER", "sweep failed", "error", err)
	}
	if len(reaped) == 0 {
		return
	}
	r.metrics.AddReaped(len(reaped))
	for _, resource := range reaped {
		r.events.Publish(events.Event{Type: events.TypeLockExpired, Resource: resource})
	}
	logging.Info("REAPER", "expired locks reaped", "count", len(reaped))
}
