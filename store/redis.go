package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// addSetMemberScript inserts a member scored by its eviction instant and
// keeps the set key alive until its longest-lived member expires.
const addSetMemberScript = `
redis.call("ZADD", KEYS[1], ARGV[1], ARGV[2])
local last = redis.call("ZRANGE", KEYS[1], -1, -1, "WITHSCORES")
redis.call("PEXPIREAT", KEYS[1], math.floor(tonumber(last[2])))
return 1
`

// incrementScript applies the TTL only on the increment that creates the
// counter, so the expiry set by the first failure is never pushed out by
// later ones.
const incrementScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`

var (
	addSetMemberLua = redis.NewScript(addSetMemberScript)
	incrementLua    = redis.NewScript(incrementScript)
)

// Redis is a TTLStore backed by a shared Redis deployment, for multi-instance
// setups where in-process state cannot be the source of truth. Scalar entries
// rely on native key expiry; sets with per-member TTLs are sorted sets scored
// by eviction time in unix milliseconds.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis creates a Redis-backed store. All keys are namespaced under
// prefix, which defaults to "ac".
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "ac"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(key string) string {
	return r.prefix + ":" + key
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := incrementLua.Run(ctx, r.client, []string{r.key(key)}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}

func (r *Redis) AddSetMember(ctx context.Context, key, member string, ttl time.Duration) error {
	eviction := time.Now().Add(ttl).UnixMilli()
	if err := addSetMemberLua.Run(ctx, r.client, []string{r.key(key)}, eviction, member).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) RemoveSetMember(ctx context.Context, key, member string) error {
	if err := r.client.ZRem(ctx, r.key(key), member).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) SetMembers(ctx context.Context, key string) ([]string, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := r.client.ZRemRangeByScore(ctx, r.key(key), "-inf", "("+now).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	members, err := r.client.ZRange(ctx, r.key(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return members, nil
}

// Purge prunes expired members from every set in the namespace. Scalar keys
// need no help here since Redis evicts them natively.
func (r *Redis) Purge(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+":*", 100).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, key := range keys {
			kind, err := r.client.Type(ctx, key).Result()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			if kind != "zset" {
				continue
			}
			if err := r.client.ZRemRangeByScore(ctx, key, "-inf", "("+now).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
