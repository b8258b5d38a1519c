package memstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/EduardF1/adversus-interview-assignment/core/locks"
)

// LockStore implements locks.Store over the shared in-memory state.
type LockStore struct {
	s *Store
}

var _ locks.Store = (*LockStore)(nil)

// AcquireOrRenew performs the conditional insert-or-update under the
// store mutex, the in-memory stand-in for the one atomic statement.
func (l *LockStore) AcquireOrRenew(ctx context.Context, resource, holder string, ttl time.Duration) (locks.Acquisition, error) {
	resource = strings.TrimSpace(resource)
	holder = strings.TrimSpace(holder)
	if resource == "" || holder == "" {
		return locks.Acquisition{}, fmt.Errorf("resource and holder required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()

	cur, ok := s.lockRows.Load(resource)
	switch {
	case !ok:
		lock := locks.Lock{Resource: resource, Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
		s.lockRows.Store(resource, lock)
		return locks.Acquisition{Outcome: locks.OutcomeCreated, Lock: lock}, nil
	case !cur.ExpiresAt.After(now):
		lock := locks.Lock{Resource: resource, Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
		s.lockRows.Store(resource, lock)
		return locks.Acquisition{Outcome: locks.OutcomeTakeover, Lock: lock}, nil
	case cur.Holder == holder:
		lock := locks.Lock{Resource: resource, Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
		s.lockRows.Store(resource, lock)
		return locks.Acquisition{Outcome: locks.OutcomeRenewed, Lock: lock}, nil
	default:
		return locks.Acquisition{Outcome: locks.OutcomeDenied, Lock: cur}, nil
	}
}

// Release deletes the caller's unexpired lock.
func (l *LockStore) Release(ctx context.Context, resource, holder string) (locks.ReleaseResult, error) {
	resource = strings.TrimSpace(resource)
	holder = strings.TrimSpace(holder)
	if resource == "" || holder == "" {
		return locks.ReleaseResult{}, fmt.Errorf("resource and holder required")
	}

	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()

	cur, ok := s.lockRows.Load(resource)
	if !ok {
		return locks.ReleaseResult{Status: locks.ReleaseNoop}, nil
	}
	if !cur.ExpiresAt.After(now) {
		s.lockRows.Delete(resource)
		return locks.ReleaseResult{Status: locks.ReleaseNoop}, nil
	}
	if cur.Holder == holder {
		s.lockRows.Delete(resource)
		return locks.ReleaseResult{Status: locks.ReleaseReleased}, nil
	}
	row := cur
	return locks.ReleaseResult{Status: locks.ReleaseForbidden, Lock: &row}, nil
}

// Validate reports whether the caller holds an unexpired lock.
func (l *LockStore) Validate(ctx context.Context, resource, holder string) (locks.Validation, error) {
	resource = strings.TrimSpace(resource)
	holder = strings.TrimSpace(holder)
	if resource == "" || holder == "" {
		return locks.Validation{}, fmt.Errorf("resource and holder required")
	}

	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validateLocked(resource, holder, s.clock()), nil
}

// Get returns the active lock without side effects.
func (l *LockStore) Get(ctx context.Context, resource string) (*locks.Lock, error) {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return nil, fmt.Errorf("resource required")
	}
	s := l.s
	cur, ok := s.lockRows.Load(resource)
	if !ok || !cur.ExpiresAt.After(s.clock()) {
		return nil, nil
	}
	row := cur
	return &row, nil
}

// Snapshot deletes expired rows among the resources and returns the live
// locks.
func (l *LockStore) Snapshot(ctx context.Context, resources ...string) (map[string]locks.Lock, error) {
	return l.s.snapshot(resources), nil
}

// ReapExpired sweeps every lock row and deletes the expired ones.
func (l *LockStore) ReapExpired(ctx context.Context) ([]string, error) {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()

	var expired []string
	s.lockRows.Range(func(resource string, cur locks.Lock) bool {
		if !cur.ExpiresAt.After(now) {
			expired = append(expired, resource)
		}
		return true
	})
	for _, resource := range expired {
		s.lockRows.Delete(resource)
	}
	return expired, nil
}

func (l *LockStore) Close() error {
	return nil
}
