package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	counterKeyPrefix = "quota:"
	// Counters outlive their day so late requests near midnight still see them.
	counterTTL = 48 * time.Hour
)

// incrementBelow returns {count, 1} after incrementing, or {count, 0} when
// the counter is already at ARGV[1].
var incrementBelow = redis.NewScript(`
local n = tonumber(redis.call("GET", KEYS[1]) or "0")
if n >= tonumber(ARGV[1]) then
	return {n, 0}
end
n = redis.call("INCR", KEYS[1])
redis.call("EXPIRE", KEYS[1], ARGV[2])
return {n, 1}
`)

// RedisCounter keeps daily request counters in Redis.
type RedisCounter struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCounter wraps client. A non-positive ttl uses two days.
func NewRedisCounter(client redis.UniversalClient, ttl time.Duration) (*RedisCounter, error) {
	if client == nil {
		return nil, errors.New("repository: redis client must not be nil")
	}
	if ttl <= 0 {
		ttl = counterTTL
	}
	return &RedisCounter{client: client, ttl: ttl}, nil
}

func (c *RedisCounter) key(identity, date string) string {
	return counterKeyPrefix + identity + ":" + date
}

func (c *RedisCounter) IncrementIfBelow(ctx context.Context, identity, date string, limit int) (int, bool, error) {
	res, err := incrementBelow.Run(ctx, c.client,
		[]string{c.key(identity, date)},
		limit, int(c.ttl.Seconds()),
	).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("repository: redis increment: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("repository: redis increment: unexpected reply %v", res)
	}
	return int(res[0]), res[1] == 1, nil
}

func (c *RedisCounter) Close() error {
	return c.client.Close()
}
