package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/EduardF1/adversus-interview-assignment/core/notes"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// NoteStore implements notes.Store over the shared in-memory state.
type NoteStore struct {
	s *Store
}

var _ notes.Store = (*NoteStore)(nil)

// Create inserts a new note, minting a UUID when no id is given.
func (n *NoteStore) Create(ctx context.Context, note notes.Note) (*notes.Note, error) {
	note.ID = strings.TrimSpace(note.ID)
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	note.Title = strings.TrimSpace(note.Title)
	if note.Title == "" {
		return nil, fmt.Errorf("title required")
	}

	s := n.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.noteRows.Load(note.ID); ok {
		return nil, notes.ErrExists
	}
	now := s.clock()
	note.CreatedAt = now
	note.UpdatedAt = now
	s.noteRows.Store(note.ID, note)
	return &note, nil
}

// Get returns a note by id.
func (n *NoteStore) Get(ctx context.Context, id string) (*notes.Note, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("id required")
	}
	note, ok := n.s.noteRows.Load(id)
	if !ok {
		return nil, notes.ErrNotFound
	}
	return &note, nil
}

// List returns up to limit notes ordered by recency with their lock
// projection. Expired lock rows among the page are deleted in passing.
func (n *NoteStore) List(ctx context.Context, limit int) ([]notes.Summary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	s := n.s
	page := make([]notes.Note, 0)
	s.noteRows.Range(func(id string, note notes.Note) bool {
		page = append(page, note)
		return true
	})
	sort.Slice(page, func(i, j int) bool {
		if !page[i].UpdatedAt.Equal(page[j].UpdatedAt) {
			return page[i].UpdatedAt.After(page[j].UpdatedAt)
		}
		return page[i].ID > page[j].ID
	})
	if len(page) > limit {
		page = page[:limit]
	}

	resources := make([]string, 0, len(page))
	for _, note := range page {
		resources = append(resources, notes.LockResource(note.ID))
	}
	snap := s.snapshot(resources)

	out := make([]notes.Summary, 0, len(page))
	for _, note := range page {
		summary := notes.Summary{Note: note}
		if lock, ok := snap[notes.LockResource(note.ID)]; ok {
			summary.Locked = true
			summary.Holder = lock.Holder
			expires := lock.ExpiresAt
			summary.ExpiresAt = &expires
		}
		out = append(out, summary)
	}
	return out, nil
}

// Update applies a partial patch iff the holder's lock validates. The
// mutex spans the check and the write, so no acquire can interleave.
func (n *NoteStore) Update(ctx context.Context, id, holder string, patch notes.Patch) (notes.UpdateResult, error) {
	id = strings.TrimSpace(id)
	holder = strings.TrimSpace(holder)
	if id == "" || holder == "" {
		return notes.UpdateResult{}, fmt.Errorf("id and holder required")
	}

	s := n.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()

	check := s.validateLocked(notes.LockResource(id), holder, now)
	if !check.Valid {
		return notes.UpdateResult{Status: notes.UpdateDenied, Lock: check.Lock}, nil
	}
	note, ok := s.noteRows.Load(id)
	if !ok {
		return notes.UpdateResult{Status: notes.UpdateNotFound}, nil
	}
	if patch.Title != nil {
		note.Title = *patch.Title
	}
	if patch.Body != nil {
		note.Body = *patch.Body
	}
	note.UpdatedAt = now
	s.noteRows.Store(id, note)
	return notes.UpdateResult{Status: notes.UpdateOK, Note: &note}, nil
}

// Seed inserts the sample notes, skipping ids that already exist.
func (n *NoteStore) Seed(ctx context.Context) error {
	for _, note := range notes.SampleNotes {
		if _, err := n.Create(ctx, note); err != nil && !errors.Is(err, notes.ErrExists) {
			return err
		}
	}
	return nil
}

// Count returns the number of notes.
func (n *NoteStore) Count(ctx context.Context) (int64, error) {
	return int64(n.s.noteRows.Size()), nil
}

func (n *NoteStore) Ping(ctx context.Context) error {
	return nil
}

func (n *NoteStore) Close() error {
	return nil
}
