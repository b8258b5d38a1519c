package locks

import (
	"context"
	"testing"
	"time"

	"github.com/EduardF1/adversus-interview-assignment/core/infra/events"
)

func TestSweepPublishesExpiredEvents(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AcquireOrRenew(ctx, "note:1", "A", time.Minute); err != nil {
		if skipEval(err) {
			t.Skip("miniredis does not support EVAL")
		}
		t.Fatalf("acquire: %v", err)
	}
	if _, err := store.AcquireOrRenew(ctx, "note:2", "A", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	forceExpiry(t, mr, "note:1")

	hub := events.NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	reaper := NewReaper(store, 30*time.Second, nil, hub)
	reaper.Sweep(ctx)

	select {
	case ev := <-ch:
		if ev.Type != events.TypeLockExpired || ev.Resource != "note:1" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no lock.expired event published")
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected second event: %+v", ev)
	default:
	}
	if !mr.Exists(Key("note:2")) {
		t.Fatal("live lock must survive the sweep")
	}
}

func TestSweepNoExpiredRowsIsQuiet(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AcquireOrRenew(ctx, "note:1", "A", time.Minute); err != nil {
		if skipEval(err) {
			t.Skip("miniredis does not support EVAL")
		}
		t.Fatalf("acquire: %v", err)
	}

	hub := events.NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	NewReaper(store, time.Second, nil, hub).Sweep(ctx)

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	default:
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	_, store := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewReaper(store, time.Millisecond, nil, nil).Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}

func TestRunDisabledInterval(t *testing.T) {
	_, store := newTestStore(t)

	done := make(chan struct{})
	go func() {
		NewReaper(store, 0, nil, nil).Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("zero interval should return immediately")
	}
}
