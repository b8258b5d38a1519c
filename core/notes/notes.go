package notes

import (
	"context"
	"errors"
	"time"

	"github.com/EduardF1/adversus-interview-assignment/core/locks"
)

var (
	// ErrNotFound reports an unknown note id.
	ErrNotFound = errors.New("note not found")
	// ErrExists reports a create against an id that is already taken.
	ErrExists = errors.New("note already exists")
)

// Note is one shared note. Content is mutated only through Update so the
// lock check and the write stay in one transaction.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Patch carries a partial update. Nil fields keep their current values.
type Patch struct {
	Title *string `json:"title,omitempty"`
	Body  *string `json:"body,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Body == nil
}

// Summary is the listing projection: the note plus its current lock
// visibility. Holder and ExpiresAt are absent when the note is unlocked.
type Summary struct {
	Note
	Locked    bool       `json:"locked"`
	Holder    string     `json:"holder,omitempty"`
	ExpiresAt *time.Time `json:"lock_expires_at,omitempty"`
}

// UpdateStatus classifies the result of a gated update.
type UpdateStatus string

const (
	// UpdateOK means the lock was valid and the patch committed.
	UpdateOK UpdateStatus = "updated"
	// UpdateDenied means the caller held no valid lock; the note is
	// untouched.
	UpdateDenied UpdateStatus = "denied"
	// UpdateNotFound means the note id does not exist; the lock row is
	// untouched apart from expired-row cleanup.
	UpdateNotFound UpdateStatus = "not_found"
)

// UpdateResult is the outcome of a gated update. Note is set on success;
// Lock carries the competing holder's row when the denial had one.
type UpdateResult struct {
	Status UpdateStatus `json:"status"`
	Note   *Note        `json:"note,omitempty"`
	Lock   *locks.Lock  `json:"lock,omitempty"`
}

// Store is the durable note relation plus the gated update.
type Store interface {
	// Create inserts a new note. An empty id is minted; a taken id fails
	// with ErrExists.
	Create(ctx context.Context, note Note) (*Note, error)
	// Get returns a note by id or ErrNotFound.
	Get(ctx context.Context, id string) (*Note, error)
	// List returns up to limit notes, most recently modified first, each
	// with its lock projection. Expired lock rows among the page are
	// deleted in passing.
	List(ctx context.Context, limit int) ([]Summary, error)
	// Update applies a partial patch iff the holder's lock validates, as
	// one transaction. The lock check and the write cannot interleave with
	// another caller's acquire.
	Update(ctx context.Context, id, holder string, patch Patch) (UpdateResult, error)
	// Seed inserts the sample notes when their ids are free.
	Seed(ctx context.Context) error
	// Count returns the number of notes.
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// LockResource maps a note id to its lock resource id.
func LockResource(id string) string {
	return "note:" + id
}

// SampleNotes are seeded into an empty store so a fresh install has
// something to lock and edit.
var SampleNotes = []Note{
	{ID: "1", Title: "Welcome", Body: "This note can be edited by whoever holds its lock."},
	{ID: "2", Title: "Team standup", Body: "Agenda: blockers, progress, next steps."},
	{ID: "3", Title: "Scratchpad", Body: ""},
}
