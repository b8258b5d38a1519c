package locks

import (
	"context"
	"time"
)

// Outcome classifies how an acquire call left the lock row.
type Outcome string

const (
	// OutcomeCreated means no row existed and a fresh one was inserted.
	OutcomeCreated Outcome = "created"
	// OutcomeRenewed means the caller already held the lock and its
	// timestamps were refreshed.
	OutcomeRenewed Outcome = "renewed"
	// OutcomeTakeover means the previous row had expired and was replaced,
	// regardless of who held it.
	OutcomeTakeover Outcome = "takeover"
	// OutcomeDenied means another holder owns an unexpired lock and the row
	// was left untouched.
	OutcomeDenied Outcome = "denied"
)

// ReleaseStatus classifies the result of a release call.
type ReleaseStatus string

const (
	// ReleaseReleased means the caller held the lock and the row was deleted.
	ReleaseReleased ReleaseStatus = "released"
	// ReleaseNoop means there was nothing to release: no row, or an expired
	// one that was cleaned up in passing.
	ReleaseNoop ReleaseStatus = "noop"
	// ReleaseForbidden means another holder owns an unexpired lock.
	ReleaseForbidden ReleaseStatus = "forbidden"
)

// Lock is one row of the lock relation. A lock is logically active iff its
// row exists and ExpiresAt is strictly in the future by the store's clock;
// an expired row counts as absent whether or not it has been deleted yet.
type Lock struct {
	Resource   string    `json:"resource"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Acquisition is the post-write state of an acquire call. Lock always
// reflects the row as it stands after the write: the caller's row when
// granted, the current holder's row when denied.
type Acquisition struct {
	Outcome Outcome `json:"outcome"`
	Lock    Lock    `json:"lock"`
}

// Granted reports whether the caller holds the lock after the call.
func (a Acquisition) Granted() bool {
	return a.Outcome != OutcomeDenied
}

// ReleaseResult is the outcome of a release call. Lock is set only when the
// release was forbidden, carrying the current holder's row.
type ReleaseResult struct {
	Status ReleaseStatus `json:"status"`
	Lock   *Lock         `json:"lock,omitempty"`
}

// Validation is the outcome of a validity check. Lock carries the caller's
// row when valid, the competing holder's row when one exists, and nil when
// the lock is absent or expired.
type Validation struct {
	Valid bool  `json:"valid"`
	Lock  *Lock `json:"lock,omitempty"`
}

// Store is the durable lock relation. All expiry decisions happen against
// the store's own clock inside the same atomic statement as the write they
// guard, never against a caller-captured timestamp.
type Store interface {
	// AcquireOrRenew performs the conditional insert-or-update: fresh row,
	// takeover of an expired row, renewal for the current holder, or no-op
	// when someone else holds an unexpired lock. The post-write holder
	// decides the outcome.
	AcquireOrRenew(ctx context.Context, resource, holder string, ttl time.Duration) (Acquisition, error)
	// Release deletes the caller's unexpired lock. Expired or absent rows
	// release as a no-op; someone else's unexpired lock is forbidden.
	Release(ctx context.Context, resource, holder string) (ReleaseResult, error)
	// Validate reports whether the caller currently holds an unexpired
	// lock, deleting the row in passing when it is expired.
	Validate(ctx context.Context, resource, holder string) (Validation, error)
	// Get returns the active lock for a resource without side effects, or
	// nil when the row is absent or expired.
	Get(ctx context.Context, resource string) (*Lock, error)
	// Snapshot deletes expired rows among the given resources and returns
	// the still-active locks keyed by resource.
	Snapshot(ctx context.Context, resources ...string) (map[string]Lock, error)
	// ReapExpired sweeps the whole relation and deletes expired rows,
	// returning the affected resource ids.
	ReapExpired(ctx context.Context) ([]string, error)
	Close() error
}

// Key maps a resource id to its storage key.
func Key(resource string) string {
	return "lock:" + resource
}
