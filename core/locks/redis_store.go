package locks

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/EduardF1/adversus-interview-assignment/core/infra/redisutil"
)

const (
	defaultTTL = 120 * time.Second

	scanCount = 256
	reapBatch = 128
)

// RedisStore keeps lock rows in Redis hashes. Every conditional write runs
// as one Lua script so the branch decision and the write cannot interleave
// with a concurrent caller, and "now" comes from the Redis TIME command
// inside that same script.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore dials Redis at the provided URL and verifies connectivity.
func NewRedisStore(url string) (*RedisStore, error) {
	client, err := redisutil.NewClient(url)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client. The caller keeps
// ownership of the client's lifecycle.
func NewRedisStoreWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
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
		return fmt.Errorf("lock store unavailable")
	}
	return s.client.Ping(ctx).Err()
}

// AcquireOrRenew runs the conditional insert-or-update for one resource.
func (s *RedisStore) AcquireOrRenew(ctx context.Context, resource, holder string, ttl time.Duration) (Acquisition, error) {
	if s == nil || s.client == nil {
		return Acquisition{}, fmt.Errorf("lock store unavailable")
	}
	resource = strings.TrimSpace(resource)
	holder = strings.TrimSpace(holder)
	if resource == "" || holder == "" {
		return Acquisition{}, fmt.Errorf("resource and holder required")
	}
	ttl = normalizeTTL(ttl)

	res, err := s.client.Eval(ctx, acquireScript, []string{Key(resource)},
		holder,
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		return Acquisition{}, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 4 {
		return Acquisition{}, fmt.Errorf("unexpected acquire reply %v", res)
	}
	outcome, _ := vals[0].(string)
	lock, err := lockFromReply(resource, vals[1:])
	if err != nil {
		return Acquisition{}, err
	}
	// The post-write holder decides the outcome, not the write itself.
	if lock.Holder != holder {
		outcome = string(OutcomeDenied)
	}
	return Acquisition{Outcome: Outcome(outcome), Lock: lock}, nil
}

// Release deletes the caller's lock when it is theirs and still active.
func (s *RedisStore) Release(ctx context.Context, resource, holder string) (ReleaseResult, error) {
	if s == nil || s.client == nil {
		return ReleaseResult{}, fmt.Errorf("lock store unavailable")
	}
	resource = strings.TrimSpace(resource)
	holder = strings.TrimSpace(holder)
	if resource == "" || holder == "" {
		return ReleaseResult{}, fmt.Errorf("resource and holder required")
	}

	res, err := s.client.Eval(ctx, releaseScript, []string{Key(resource)}, holder).Result()
	if err != nil {
		return ReleaseResult{}, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) == 0 {
		return ReleaseResult{}, fmt.Errorf("unexpected release reply %v", res)
	}
	status, _ := vals[0].(string)
	result := ReleaseResult{Status: ReleaseStatus(status)}
	if len(vals) == 4 {
		lock, err := lockFromReply(resource, vals[1:])
		if err != nil {
			return ReleaseResult{}, err
		}
		result.Lock = &lock
	}
	return result, nil
}

// Validate reports whether the caller holds an active lock on the resource.
func (s *RedisStore) Validate(ctx context.Context, resource, holder string) (Validation, error) {
	if s == nil || s.client == nil {
		return Validation{}, fmt.Errorf("lock store unavailable")
	}
	resource = strings.TrimSpace(resource)
	holder = strings.TrimSpace(holder)
	if resource == "" || holder == "" {
		return Validation{}, fmt.Errorf("resource and holder required")
	}

	res, err := s.client.Eval(ctx, validateScript, []string{Key(resource)}, holder).Result()
	if err != nil {
		return Validation{}, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) == 0 {
		return Validation{}, fmt.Errorf("unexpected validate reply %v", res)
	}
	status, _ := vals[0].(string)
	result := Validation{Valid: status == "valid"}
	if len(vals) == 4 {
		lock, err := lockFromReply(resource, vals[1:])
		if err != nil {
			return Validation{}, err
		}
		result.Lock = &lock
	}
	return result, nil
}

// Get returns the active lock without touching expired rows.
func (s *RedisStore) Get(ctx context.Context, resource string) (*Lock, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("lock store unavailable")
	}
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return nil, fmt.Errorf("resource required")
	}

	res, err := s.client.Eval(ctx, peekScript, []string{Key(resource)}).Result()
	if err != nil {
		return nil, err
	}
	vals, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected peek reply %v", res)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	lock, err := lockFromReply(resource, vals)
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

// Snapshot deletes expired rows among the given resources and returns the
// remaining active locks keyed by resource id.
func (s *RedisStore) Snapshot(ctx context.Context, resources ...string) (map[string]Lock, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("lock store unavailable")
	}
	out := make(map[string]Lock, len(resources))
	if len(resources) == 0 {
		return out, nil
	}
	keys := make([]string, 0, len(resources))
	for _, resource := range resources {
		resource = strings.TrimSpace(resource)
		if resource == "" {
			continue
		}
		keys = append(keys, Key(resource))
	}
	if len(keys) == 0 {
		return out, nil
	}

	res, err := s.client.Eval(ctx, snapshotScript, keys).Result()
	if err != nil {
		return nil, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals)%4 != 0 {
		return nil, fmt.Errorf("unexpected snapshot reply %v", res)
	}
	for i := 0; i < len(vals); i += 4 {
		key, _ := vals[i].(string)
		resource := strings.TrimPrefix(key, Key(""))
		lock, err := lockFromReply(resource, vals[i+1:i+4])
		if err != nil {
			return nil, err
		}
		out[resource] = lock
	}
	return out, nil
}

// ReapExpired sweeps all lock rows and deletes the expired ones.
func (s *RedisStore) ReapExpired(ctx context.Context) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("lock store unavailable")
	}
	var (
		cursor uint64
		reaped []string
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, Key("*"), scanCount).Result()
		if err != nil {
			return reaped, err
		}
		for start := 0; start < len(keys); start += reapBatch {
			end := start + reapBatch
			if end > len(keys) {
				end = len(keys)
			}
			res, err := s.client.Eval(ctx, reapScript, keys[start:end]).Result()
			if err != nil {
				return reaped, err
			}
			vals, ok := res.([]interface{})
			if !ok {
				return reaped, fmt.Errorf("unexpected reap reply %v", res)
			}
			for _, v := range vals {
				key, _ := v.(string)
				reaped = append(reaped, strings.TrimPrefix(key, Key("")))
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return reaped, nil
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}

func lockFromReply(resource string, vals []interface{}) (Lock, error) {
	if len(vals) != 3 {
		return Lock{}, fmt.Errorf("unexpected lock reply %v", vals)
	}
	holder, _ := vals[0].(string)
	acquired, err := replyMillis(vals[1])
	if err != nil {
		return Lock{}, err
	}
	expires, err := replyMillis(vals[2])
	if err != nil {
		return Lock{}, err
	}
	return Lock{
		Resource:   resource,
		Holder:     holder,
		AcquiredAt: time.UnixMilli(acquired).UTC(),
		ExpiresAt:  time.UnixMilli(expires).UTC(),
	}, nil
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

// Scripts compute "now" from the Redis TIME command so every expiry
// comparison uses the store's clock inside the same atomic statement as
// the write it guards.

const acquireScript = `
local key = KEYS[1]
local holder = ARGV[1]
local ttl = tonumber(ARGV[2])
local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local expires = now + ttl
local row = redis.call("HMGET", key, "holder", "acquired_at", "expires_at")
if not row[1] then
  redis.call("HSET", key, "holder", holder, "acquired_at", now, "expires_at", expires)
  return {"created", holder, now, expires}
end
if (tonumber(row[3]) or 0) <= now then
  redis.call("DEL", key)
  redis.call("HSET", key, "holder", holder, "acquired_at", now, "expires_at", expires)
  return {"takeover", holder, now, expires}
end
if row[1] == holder then
  redis.call("HSET", key, "acquired_at", now, "expires_at", expires)
  return {"renewed", holder, now, expires}
end
return {"denied", row[1], tonumber(row[2]) or 0, tonumber(row[3]) or 0}
`

const releaseScript = `
local key = KEYS[1]
local holder = ARGV[1]
local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local row = redis.call("HMGET", key, "holder", "acquired_at", "expires_at")
if not row[1] then
  return {"noop"}
end
if (tonumber(row[3]) or 0) <= now then
  redis.call("DEL", key)
  return {"noop"}
end
if row[1] == holder then
  redis.call("DEL", key)
  return {"released"}
end
return {"forbidden", row[1], tonumber(row[2]) or 0, tonumber(row[3]) or 0}
`

const validateScript = `
local key = KEYS[1]
local holder = ARGV[1]
local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local row = redis.call("HMGET", key, "holder", "acquired_at", "expires_at")
if not row[1] then
  return {"invalid"}
end
if (tonumber(row[3]) or 0) <= now then
  redis.call("DEL", key)
  return {"invalid"}
end
if row[1] == holder then
  return {"valid", row[1], tonumber(row[2]) or 0, tonumber(row[3]) or 0}
end
return {"invalid", row[1], tonumber(row[2]) or 0, tonumber(row[3]) or 0}
`

const peekScript = `
local key = KEYS[1]
local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local row = redis.call("HMGET", key, "holder", "acquired_at", "expires_at")
if not row[1] then
  return {}
end
if (tonumber(row[3]) or 0) <= now then
  return {}
end
return {row[1], tonumber(row[2]) or 0, tonumber(row[3]) or 0}
`

const snapshotScript = `
local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local out = {}
for i = 1, #KEYS do
  local row = redis.call("HMGET", KEYS[i], "holder", "acquired_at", "expires_at")
  if row[1] then
    if (tonumber(row[3]) or 0) <= now then
      redis.call("DEL", KEYS[i])
    else
      out[#out + 1] = KEYS[i]
      out[#out + 1] = row[1]
      out[#out + 1] = tonumber(row[2]) or 0
      out[#out + 1] = tonumber(row[3]) or 0
    end
  end
end
return out
`

const reapScript = `
local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local reaped = {}
for i = 1, #KEYS do
  local expires = redis.call("HGET", KEYS[i], "expires_at")
  if expires and (tonumber(expires) or 0) <= now then
    redis.call("DEL", KEYS[i])
    reaped[#reaped + 1] = KEYS[i]
  end
end
return reaped
`
