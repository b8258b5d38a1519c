package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// stubServer mimics the server's lock surface: "editor" holds the lock on
// note "1", everyone else is denied.
func stubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/session", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session_id":"s-fresh"}`))
	})

	mux.HandleFunc("GET /api/v1/notes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"notes":[{"id":"1","title":"Welcome","locked":true,"holder":"editor","lock_expires_at":"2026-01-02T15:04:05Z"}],"count":1}`))
	})

	mux.HandleFunc("POST /api/v1/notes", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "n-new", "title": req["title"], "body": req["body"]})
	})

	mux.HandleFunc("POST /api/v1/notes/{id}/lock", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req["holder"] != "editor" {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"lock held by another session","holder":"editor","expires_at":"2026-01-02T15:04:05Z"}`))
			return
		}
		_, _ = w.Write([]byte(`{"outcome":"created","lock":{"resource":"note:1","holder":"editor","acquired_at":"2026-01-02T15:02:05Z","expires_at":"2026-01-02T15:04:05Z"}}`))
	})

	mux.HandleFunc("DELETE /api/v1/notes/{id}/lock", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Holder") != "editor" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"lock held by another session","holder":"editor"}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("PATCH /api/v1/notes/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if r.PathValue("id") != "1" {
			http.Error(w, "note not found", http.StatusNotFound)
			return
		}
		if req["holder"] != "editor" {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"a valid lock is required to edit this note","holder":"editor"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "1", "title": "Welcome", "body": "edited"})
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func testClient(base, session string) *apiClient {
	return &apiClient{base: base, session: session, hc: &http.Client{Timeout: 5 * time.Second}}
}

func TestMintSession(t *testing.T) {
	ts := stubServer(t)
	id, err := testClient(ts.URL, "").mintSession(context.Background())
	if err != nil {
		t.Fatalf("mint session: %v", err)
	}
	if id != "s-fresh" {
		t.Fatalf("session = %q", id)
	}
}

func TestListNotesDecoding(t *testing.T) {
	ts := stubServer(t)
	summaries, err := testClient(ts.URL, "").listNotes(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("summaries = %d", len(summaries))
	}
	got := summaries[0]
	if got.ID != "1" || !got.Locked || got.Holder != "editor" || got.ExpiresAt == nil {
		t.Fatalf("summary = %+v", got)
	}
}

func TestCreateNote(t *testing.T) {
	ts := stubServer(t)
	note, err := testClient(ts.URL, "").createNote(context.Background(), "", "Minutes", "draft")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if note.ID != "n-new" || note.Title != "Minutes" {
		t.Fatalf("note = %+v", note)
	}
}

func TestAcquireGrantAndDenial(t *testing.T) {
	ts := stubServer(t)

	granted, err := testClient(ts.URL, "editor").acquire(context.Background(), "1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !granted.Granted || granted.Acq.Outcome != "created" || granted.Acq.Lock.Holder != "editor" {
		t.Fatalf("granted = %+v", granted)
	}

	denied, err := testClient(ts.URL, "intruder").acquire(context.Background(), "1")
	if err != nil {
		t.Fatalf("denied acquire: %v", err)
	}
	if denied.Granted || denied.Denial.Holder != "editor" {
		t.Fatalf("denied = %+v", denied)
	}
}

func TestReleaseOutcomes(t *testing.T) {
	ts := stubServer(t)

	ok, err := testClient(ts.URL, "editor").release(context.Background(), "1")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if !ok.Released {
		t.Fatalf("release = %+v", ok)
	}

	forbidden, err := testClient(ts.URL, "intruder").release(context.Background(), "1")
	if err != nil {
		t.Fatalf("forbidden release: %v", err)
	}
	if forbidden.Released || forbidden.Denial.Holder != "editor" {
		t.Fatalf("forbidden = %+v", forbidden)
	}
}

func TestUpdateOutcomes(t *testing.T) {
	ts := stubServer(t)
	body := "edited"

	updated, err := testClient(ts.URL, "editor").update(context.Background(), "1", nil, &body)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Updated || updated.Note.Body != "edited" {
		t.Fatalf("updated = %+v", updated)
	}

	denied, err := testClient(ts.URL, "intruder").update(context.Background(), "1", nil, &body)
	if err != nil {
		t.Fatalf("denied update: %v", err)
	}
	if denied.Updated || denied.Denial.Holder != "editor" {
		t.Fatalf("denied = %+v", denied)
	}

	if _, err := testClient(ts.URL, "editor").update(context.Background(), "ghost", nil, &body); err == nil {
		t.Fatal("unknown note should surface as an error")
	} else if !strings.Contains(err.Error(), "404") {
		t.Fatalf("unknown note error = %v", err)
	}
}

func TestHolderRequiredLocally(t *testing.T) {
	ts := stubServer(t)
	c := testClient(ts.URL, "")

	if _, err := c.acquire(context.Background(), "1"); err == nil {
		t.Fatal("acquire without session should fail")
	}
	if _, err := c.release(context.Background(), "1"); err == nil {
		t.Fatal("release without session should fail")
	}
	if _, err := c.update(context.Background(), "1", nil, nil); err == nil {
		t.Fatal("update without session should fail")
	}
}
