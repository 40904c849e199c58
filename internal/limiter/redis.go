package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript performs increment-and-read in one round trip: the first
// increment of a key arms its expiry. No client-side read-then-write race.
var incrScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {c, ttl}
`)

// RedisStore implements CounterStore on a Redis instance.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore constructs a Redis-backed counter store. prefix namespaces
// all keys; empty means no namespace.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// Incr atomically increments key and returns the in-window count plus the
// remaining window life.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s.prefix != "" {
		key = s.prefix + ":" + key
	}
	res, err := incrScript.Run(ctx, s.rdb, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, err
	}
	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		return 0, 0, fmt.Errorf("unexpected script reply %T", res)
	}
	count, _ := vals[0].(int64)
	ttlMillis, _ := vals[1].(int64)
	if ttlMillis < 0 {
		ttlMillis = window.Milliseconds()
	}
	return count, time.Duration(ttlMillis) * time.Millisecond, nil
}
