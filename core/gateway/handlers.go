package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/EduardF1/adversus-interview-assignment/core/infra/buildinfo"
	"github.com/EduardF1/adversus-interview-assignment/core/infra/events"
	"github.com/EduardF1/adversus-interview-assignment/core/infra/logging"
	"github.com/EduardF1/adversus-interview-assignment/core/infra/schema"
	"github.com/EduardF1/adversus-interview-assignment/core/locks"
	"github.com/EduardF1/adversus-interview-assignment/core/notes"
)

type createNoteRequest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type updateNoteRequest struct {
	Holder string  `json:"holder"`
	Title  *string `json:"title"`
	Body   *string `json:"body"`
}

type acquireLockRequest struct {
	Holder string `json:"holder"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptimeSeconds := int64(0)
	if !s.started.IsZero() {
		uptimeSeconds = int64(now.Sub(s.started).Seconds())
	}

	storeOK := false
	storeErr := ""
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	if err := s.notes.Ping(ctx); err != nil {
		storeErr = err.Error()
	} else {
		storeOK = true
	}
	cancel()

	noteCount := int64(0)
	if storeOK {
		if n, err := s.notes.Count(r.Context()); err == nil {
			noteCount = n
		}
	}

	natsConnected := false
	natsURL := ""
	if s.nats != nil {
		natsConnected = s.nats.IsConnected()
		natsURL = s.nats.ConnectedURL()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"time":              now.Format(time.RFC3339),
		"uptime_seconds":    uptimeSeconds,
		"version":           buildinfo.Version,
		"commit":            buildinfo.Commit,
		"backend":           s.backend,
		"store_ok":          storeOK,
		"store_error":       storeErr,
		"notes":             noteCount,
		"nats_connected":    natsConnected,
		"nats_url":          natsURL,
		"event_subscribers": s.hub.Subscribers(),
		"lock_ttl_seconds":  int64(s.lockTTL.Seconds()),
	})
}

// handleSession mints an opaque identity for callers that want one. The
// server never checks that a holder string came from here.
func (s *server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"session_id": uuid.NewString()})
}

func (s *server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	summaries, err := s.notes.List(r.Context(), limit)
	if err != nil {
		logging.Error("gateway", "list notes failed", "error", err)
		http.Error(w, "list notes failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": summaries, "count": len(summaries)})
}

func (s *server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var req createNoteRequest
	if !decodeRequest(w, r, schema.RequestCreateNote, &req) {
		return
	}
	note, err := s.notes.Create(r.Context(), notes.Note{ID: req.ID, Title: req.Title, Body: req.Body})
	if err != nil {
		if errors.Is(err, notes.ErrExists) {
			http.Error(w, "note already exists", http.StatusConflict)
			return
		}
		logging.Error("gateway", "create note failed", "error", err)
		http.Error(w, "create note failed", http.StatusInternalServerError)
		return
	}

	s.events.Publish(events.Event{
		Type:     events.TypeNoteCreated,
		Resource: notes.LockResource(note.ID),
	})
	writeJSON(w, http.StatusCreated, note)
}

func (s *server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	note, err := s.notes.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, notes.ErrNotFound) {
			http.Error(w, "note not found", http.StatusNotFound)
			return
		}
		logging.Error("gateway", "get note failed", "id", id, "error", err)
		http.Error(w, "get note failed", http.StatusInternalServerError)
		return
	}

	// Side-effect-free lock peek; expired rows read as absent.
	lock, err := s.locks.Get(r.Context(), notes.LockResource(id))
	if err != nil {
		logging.Error("gateway", "lock peek failed", "id", id, "error", err)
		http.Error(w, "lock peek failed", http.StatusInternalServerError)
		return
	}
	summary := notes.Summary{Note: *note}
	if lock != nil {
		summary.Locked = true
		summary.Holder = lock.Holder
		exp := lock.ExpiresAt
		summary.ExpiresAt = &exp
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	var req updateNoteRequest
	if !decodeRequest(w, r, schema.RequestUpdateNote, &req) {
		return
	}

	res, err := s.notes.Update(r.Context(), id, req.Holder, notes.Patch{Title: req.Title, Body: req.Body})
	if err != nil {
		logging.Error("gateway", "update note failed", "id", id, "error", err)
		http.Error(w, "update note failed", http.StatusInternalServerError)
		return
	}

	switch res.Status {
	case notes.UpdateOK:
		s.events.Publish(events.Event{
			Type:     events.TypeNoteUpdated,
			Resource: notes.LockResource(id),
			Holder:   req.Holder,
		})
		writeJSON(w, http.StatusOK, res.Note)
	case notes.UpdateNotFound:
		http.Error(w, "note not found", http.StatusNotFound)
	default:
		if s.lockMetrics != nil {
			s.lockMetrics.IncUpdateDenied()
		}
		body := map[string]any{"error": "a valid lock is required to edit this note"}
		if res.Lock != nil {
			body["holder"] = res.Lock.Holder
			body["expires_at"] = res.Lock.ExpiresAt.Format(time.RFC3339)
		}
		writeJSON(w, http.StatusConflict, body)
	}
}

func (s *server) handleAcquireLock(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	var req acquireLockRequest
	if !decodeRequest(w, r, schema.RequestAcquireLock, &req) {
		return
	}
	if !s.noteExists(w, r, id) {
		return
	}

	acq, err := s.locks.AcquireOrRenew(r.Context(), notes.LockResource(id), req.Holder, s.lockTTL)
	if err != nil {
		logging.Error("gateway", "acquire lock failed", "id", id, "error", err)
		http.Error(w, "acquire lock failed", http.StatusInternalServerError)
		return
	}
	if s.lockMetrics != nil {
		s.lockMetrics.IncAcquire(string(acq.Outcome))
	}

	if !acq.Granted() {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "lock held by another session",
			"holder":     acq.Lock.Holder,
			"expires_at": acq.Lock.ExpiresAt.Format(time.RFC3339),
		})
		return
	}

	exp := acq.Lock.ExpiresAt
	s.events.Publish(events.Event{
		Type:      events.TypeLockAcquired,
		Resource:  acq.Lock.Resource,
		Holder:    acq.Lock.Holder,
		Outcome:   string(acq.Outcome),
		ExpiresAt: &exp,
	})
	writeJSON(w, http.StatusOK, acq)
}

func (s *server) handleReleaseLock(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	holder := holderFromRequest(r)
	if holder == "" {
		http.Error(w, "holder required", http.StatusBadRequest)
		return
	}
	if !s.noteExists(w, r, id) {
		return
	}

	res, err := s.locks.Release(r.Context(), notes.LockResource(id), holder)
	if err != nil {
		logging.Error("gateway", "release lock failed", "id", id, "error", err)
		http.Error(w, "release lock failed", http.StatusInternalServerError)
		return
	}
	if s.lockMetrics != nil {
		s.lockMetrics.IncRelease(string(res.Status))
	}

	if res.Status == locks.ReleaseForbidden {
		body := map[string]any{"error": "lock held by another session"}
		if res.Lock != nil {
			body["holder"] = res.Lock.Holder
			body["expires_at"] = res.Lock.ExpiresAt.Format(time.RFC3339)
		}
		writeJSON(w, http.StatusForbidden, body)
		return
	}

	if res.Status == locks.ReleaseReleased {
		s.events.Publish(events.Event{
			Type:     events.TypeLockReleased,
			Resource: notes.LockResource(id),
			Holder:   holder,
		})
	}
	// Releasing an absent or expired lock lands here too: both are a no-op
	// success for the caller.
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if !s.noteExists(w, r, id) {
		return
	}
	lock, err := s.locks.Get(r.Context(), notes.LockResource(id))
	if err != nil {
		logging.Error("gateway", "get lock failed", "id", id, "error", err)
		http.Error(w, "get lock failed", http.StatusInternalServerError)
		return
	}
	if lock == nil {
		writeJSON(w, http.StatusOK, map[string]any{"locked": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locked": true, "lock": lock})
}

// noteExists writes a 404 and returns false when the id names no note. Lock
// routes use it so the lock relation never accumulates rows for resources
// that do not exist.
func (s *server) noteExists(w http.ResponseWriter, r *http.Request, id string) bool {
	if _, err := s.notes.Get(r.Context(), id); err != nil {
		if errors.Is(err, notes.ErrNotFound) {
			http.Error(w, "note not found", http.StatusNotFound)
			return false
		}
		logging.Error("gateway", "note lookup failed", "id", id, "error", err)
		http.Error(w, "note lookup failed", http.StatusInternalServerError)
		return false
	}
	return true
}

func holderFromRequest(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("X-Holder")); h != "" {
		return h
	}
	return strings.TrimSpace(r.URL.Query().Get("holder"))
}

// decodeRequest reads a bounded JSON body, checks it against the named
// request schema and unmarshals it into dst. On failure it writes the error
// response and returns false.
func decodeRequest(w http.ResponseWriter, r *http.Request, schemaName string, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return false
	}
	if err := schema.ValidateRequest(schemaName, json.RawMessage(body)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
