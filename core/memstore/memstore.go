// Package memstore is a process-local implementation of the lock and note
// stores for development and tests. A single mutex serializes every
// decide-and-write section, standing in for the atomicity of the Redis
// scripts; an injectable clock stands in for the store's TIME. Durability
// is deliberately sacrificed, semantics are not.
package memstore

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/EduardF1/adversus-interview-assignment/core/locks"
	"github.com/EduardF1/adversus-interview-assignment/core/notes"
)

const defaultTTL = 120 * time.Second

// Store holds the shared state behind the lock and note views.
type Store struct {
	mu       sync.Mutex
	lockRows *xsync.MapOf[string, locks.Lock]
	noteRows *xsync.MapOf[string, notes.Note]
	now      func() time.Time
}

// New returns an empty in-memory store using the wall clock.
func New() *Store {
	return &Store{
		lockRows: xsync.NewMapOf[string, locks.Lock](),
		noteRows: xsync.NewMapOf[string, notes.Note](),
		now:      time.Now,
	}
}

// Locks returns the lock store view.
func (s *Store) Locks() *LockStore {
	return &LockStore{s: s}
}

// Notes returns the note store view.
func (s *Store) Notes() *NoteStore {
	return &NoteStore{s: s}
}

// clock returns the store's current time at millisecond precision, the
// same granularity the durable backend keeps.
func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// validateLocked applies the expiry rules for one resource. The caller
// must hold s.mu; expired rows are deleted in passing.
func (s *Store) validateLocked(resource, holder string, now time.Time) locks.Validation {
	cur, ok := s.lockRows.Load(resource)
	if !ok {
		return locks.Validation{}
	}
	if !cur.ExpiresAt.After(now) {
		s.lockRows.Delete(resource)
		return locks.Validation{}
	}
	row := cur
	if cur.Holder == holder {
		return locks.Validation{Valid: true, Lock: &row}
	}
	return locks.Validation{Lock: &row}
}

// snapshot deletes expired rows among the given resources and returns the
// live ones. Takes s.mu itself.
func (s *Store) snapshot(resources []string) map[string]locks.Lock {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	out := make(map[string]locks.Lock, len(resources))
	for _, resource := range resources {
		cur, ok := s.lockRows.Load(resource)
		if !ok {
			continue
		}
		if !cur.ExpiresAt.After(now) {
			s.lockRows.Delete(resource)
			continue
		}
		out[resource] = cur
	}
	return out
}
