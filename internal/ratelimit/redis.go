package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript increments the window counter and arms its expiry on the first hit, all in
// one server-side step. Returns {count, pttl}.
var hitScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisCounter keeps windows in Redis so every API instance shares them.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter creates a counter on client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// Hit implements Counter.
func (r *RedisCounter) Hit(ctx context.Context, key string, win time.Duration) (int64, time.Duration, error) {
	ms := win.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	res, err := hitScript.Run(ctx, r.client, []string{key}, ms).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, errors.New("unexpected rate limit script reply")
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}
