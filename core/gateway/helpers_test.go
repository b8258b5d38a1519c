package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/EduardF1/adversus-interview-assignment/core/infra/config"
	"github.com/EduardF1/adversus-interview-assignment/core/infra/events"
	"github.com/EduardF1/adversus-interview-assignment/core/infra/redisutil"
	"github.com/EduardF1/adversus-interview-assignment/core/locks"
	"github.com/EduardF1/adversus-interview-assignment/core/notes"
)

func newTestGateway(t *testing.T) (*server, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	client, err := redisutil.NewClient("redis://" + srv.Addr())
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	lockStore := locks.NewRedisStoreWithClient(client)
	noteStore := notes.NewRedisStore(client, lockStore)
	t.Cleanup(func() {
		_ = noteStore.Close()
		_ = lockStore.Close()
	})

	// Probe scripting support once so every test can rely on it.
	ctx := context.Background()
	if _, err := lockStore.AcquireOrRenew(ctx, "warmup", "warmup", time.Minute); err != nil {
		if skipEval(err) {
			t.Skip("miniredis does not support EVAL")
		}
		t.Fatalf("warmup acquire: %v", err)
	}
	if _, err := lockStore.Release(ctx, "warmup", "warmup"); err != nil {
		t.Fatalf("warmup release: %v", err)
	}

	hub := events.NewHub()
	s := &server{
		locks:   lockStore,
		notes:   noteStore,
		hub:     hub,
		events:  hub,
		backend: config.BackendRedis,
		lockTTL: 2 * time.Minute,
		started: time.Now().UTC(),
	}
	return s, srv
}

func createTestNote(t *testing.T, s *server, title, body string) *notes.Note {
	t.Helper()
	note, err := s.notes.Create(context.Background(), notes.Note{Title: title, Body: body})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	return note
}

func doJSON(t *testing.T, fn http.HandlerFunc, method, target string, body any, pathValues map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	rr := httptest.NewRecorder()
	fn(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

// forceLockExpiry rewrites a lock row's expiry into the past so the next
// store-side check observes it as expired.
func forceLockExpiry(t *testing.T, srv *miniredis.Miniredis, resource string) {
	t.Helper()
	key := locks.Key(resource)
	if !srv.Exists(key) {
		t.Fatalf("no lock row for %s", resource)
	}
	past := time.Now().Add(-time.Minute).UnixMilli()
	srv.HSet(key, "expires_at", strconv.FormatInt(past, 10))
}

func skipEval(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "eval") && strings.Contains(msg, "unknown")
}
