package notes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/EduardF1/adversus-interview-assignment/core/locks"
)

const (
	indexKey = "notes:index"

	defaultListLimit = 100
	maxListLimit     = 500
)

// RedisStore keeps notes in Redis hashes with a recency index. The gated
// update runs as one Lua script over the note row, the index, and the lock
// row, so the lock check and the content write commit together or not at
// all.
type RedisStore struct {
	client redis.UniversalClient
	locks  locks.Store
}

// NewRedisStore wraps an existing client, normally the same one backing the
// lock store. The lock store supplies the listing projection.
func NewRedisStore(client redis.UniversalClient, lockStore locks.Store) *RedisStore {
	return &RedisStore{client: client, locks: lockStore}
}

// Close shuts down the Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Ping checks store connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("note store unavailable")
	}
	return s.client.Ping(ctx).Err()
}

// Create inserts a new note, minting a UUID when no id is given.
func (s *RedisStore) Create(ctx context.Context, note Note) (*Note, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("note store unavailable")
	}
	note.ID = strings.TrimSpace(note.ID)
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	note.Title = strings.TrimSpace(note.Title)
	if note.Title == "" {
		return nil, fmt.Errorf("title required")
	}

	res, err := s.client.Eval(ctx, createNoteScript, []string{noteKey(note.ID), indexKey},
		note.ID,
		note.Title,
		note.Body,
	).Result()
	if err != nil {
		return nil, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) == 0 {
		return nil, fmt.Errorf("unexpected create reply %v", res)
	}
	status, _ := vals[0].(string)
	if status == "exists" {
		return nil, ErrExists
	}
	if status != "created" || len(vals) != 2 {
		return nil, fmt.Errorf("unexpected create reply %v", res)
	}
	now, err := replyMillis(vals[1])
	if err != nil {
		return nil, err
	}
	note.CreatedAt = time.UnixMilli(now).UTC()
	note.UpdatedAt = note.CreatedAt
	return &note, nil
}

// Get returns a note by id.
func (s *RedisStore) Get(ctx context.Context, id string) (*Note, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("note store unavailable")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("id required")
	}
	fields, err := s.client.HGetAll(ctx, noteKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	note := noteFromFields(fields)
	return &note, nil
}

// List returns up to limit notes ordered by recency, each carrying its lock
// projection. Expired lock rows among the page are deleted in passing by
// the lock snapshot.
func (s *RedisStore) List(ctx context.Context, limit int) ([]Summary, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("note store unavailable")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	ids, err := s.client.ZRevRange(ctx, indexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	// Batch the note reads to avoid N+1 round trips.
	pipe := s.client.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(ids))
	for _, id := range ids {
		cmds[id] = pipe.HGetAll(ctx, noteKey(id))
	}
	_, _ = pipe.Exec(ctx)

	snap := map[string]locks.Lock{}
	if s.locks != nil {
		resources := make([]string, 0, len(ids))
		for _, id := range ids {
			resources = append(resources, LockResource(id))
		}
		snap, err = s.locks.Snapshot(ctx, resources...)
		if err != nil {
			return nil, err
		}
	}

	for _, id := range ids {
		fields, err := cmds[id].Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		summary := Summary{Note: noteFromFields(fields)}
		if lock, ok := snap[LockResource(id)]; ok {
			summary.Locked = true
			summary.Holder = lock.Holder
			expires := lock.ExpiresAt
			summary.ExpiresAt = &expires
		}
		out = append(out, summary)
	}
	return out, nil
}

// Update applies a partial patch iff the holder's lock validates. The whole
// check-and-write runs as one script, so no acquire can slip between the
// validation and the commit.
func (s *RedisStore) Update(ctx context.Context, id, holder string, patch Patch) (UpdateResult, error) {
	if s == nil || s.client == nil {
		return UpdateResult{}, fmt.Errorf("note store unavailable")
	}
	id = strings.TrimSpace(id)
	holder = strings.TrimSpace(holder)
	if id == "" || holder == "" {
		return UpdateResult{}, fmt.Errorf("id and holder required")
	}

	titleFlag, title := "0", ""
	if patch.Title != nil {
		titleFlag, title = "1", *patch.Title
	}
	bodyFlag, body := "0", ""
	if patch.Body != nil {
		bodyFlag, body = "1", *patch.Body
	}

	res, err := s.client.Eval(ctx, updateNoteScript,
		[]string{noteKey(id), indexKey, locks.Key(LockResource(id))},
		holder,
		id,
		titleFlag,
		title,
		bodyFlag,
		body,
	).Result()
	if err != nil {
		return UpdateResult{}, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) == 0 {
		return UpdateResult{}, fmt.Errorf("unexpected update reply %v", res)
	}
	status, _ := vals[0].(string)
	switch status {
	case "updated":
		if len(vals) != 5 {
			return UpdateResult{}, fmt.Errorf("unexpected update reply %v", res)
		}
		noteTitle, _ := vals[1].(string)
		noteBody, _ := vals[2].(string)
		created, err := replyMillis(vals[3])
		if err != nil {
			return UpdateResult{}, err
		}
		updated, err := replyMillis(vals[4])
		if err != nil {
			return UpdateResult{}, err
		}
		return UpdateResult{Status: UpdateOK, Note: &Note{
			ID:        id,
			Title:     noteTitle,
			Body:      noteBody,
			CreatedAt: time.UnixMilli(created).UTC(),
			UpdatedAt: time.UnixMilli(updated).UTC(),
		}}, nil
	case "denied":
		result := UpdateResult{Status: UpdateDenied}
		if len(vals) == 4 {
			lockHolder, _ := vals[1].(string)
			acquired, err := replyMillis(vals[2])
			if err != nil {
				return UpdateResult{}, err
			}
			expires, err := replyMillis(vals[3])
			if err != nil {
				return UpdateResult{}, err
			}
			result.Lock = &locks.Lock{
				Resource:   LockResource(id),
				Holder:     lockHolder,
				AcquiredAt: time.UnixMilli(acquired).UTC(),
				ExpiresAt:  time.UnixMilli(expires).UTC(),
			}
		}
		return result, nil
	case "not_found":
		return UpdateResult{Status: UpdateNotFound}, nil
	}
	return UpdateResult{}, fmt.Errorf("unexpected update status %q", status)
}

// Seed inserts the sample notes, skipping ids that already exist.
func (s *RedisStore) Seed(ctx context.Context) error {
	for _, note := range SampleNotes {
		if _, err := s.Create(ctx, note); err != nil && !errors.Is(err, ErrExists) {
			return err
		}
	}
	return nil
}

// Count returns the number of indexed notes.
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	if s == nil || s.client == nil {
		return 0, fmt.Errorf("note store unavailable")
	}
	return s.client.ZCard(ctx, indexKey).Result()
}

func noteKey(id string) string {
	return "note:" + id
}

func noteFromFields(fields map[string]string) Note {
	created, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	updated, _ := strconv.ParseInt(fields["updated_at"], 10, 64)
	return Note{
		ID:        fields["id"],
		Title:     fields["title"],
		Body:      fields["body"],
		CreatedAt: time.UnixMilli(created).UTC(),
		UpdatedAt: time.UnixMilli(updated).UTC(),
	}
}

func replyMillis(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected timestamp %T", v)
	}
}

const createNoteScript = `
local noteKey = KEYS[1]
local indexKey = KEYS[2]
local id = ARGV[1]
local title = ARGV[2]
local body = ARGV[3]
if redis.call("EXISTS", noteKey) == 1 then
  return {"exists"}
end
local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
redis.call("HSET", noteKey, "id", id, "title", title, "body", body, "created_at", now, "updated_at", now)
redis.call("ZADD", indexKey, now, id)
return {"created", now}
`

const updateNoteScript = `
local noteKey = KEYS[1]
local indexKey = KEYS[2]
local lockKey = KEYS[3]
local holder = ARGV[1]
local id = ARGV[2]
local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local row = redis.call("HMGET", lockKey, "holder", "acquired_at", "expires_at")
if not row[1] then
  return {"denied"}
end
if (tonumber(row[3]) or 0) <= now then
  redis.call("DEL", lockKey)
  return {"denied"}
end
if row[1] ~= holder then
  return {"denied", row[1], tonumber(row[2]) or 0, tonumber(row[3]) or 0}
end
if redis.call("EXISTS", noteKey) == 0 then
  return {"not_found"}
end
if ARGV[3] == "1" then
  redis.call("HSET", noteKey, "title", ARGV[4])
end
if ARGV[5] == "1" then
  redis.call("HSET", noteKey, "body", ARGV[6])
end
redis.call("HSET", noteKey, "updated_at", now)
redis.call("ZADD", indexKey, now, id)
local fields = redis.call("HMGET", noteKey, "title", "body", "created_at")
return {"updated", fields[1] or "", fields[2] or "", tonumber(fields[3]) or 0, now}
`
