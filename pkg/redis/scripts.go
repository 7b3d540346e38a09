package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// fixedWindow counts a hit in KEYS[1] and starts its ARGV[1] millisecond
// window on the first hit.
var fixedWindow = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// DelIfValue deletes key when its current value equals expected. A key that
// expired and was taken by another owner is left alone.
func (c *Client) DelIfValue(ctx context.Context, key, expected string) (bool, error) {
	if c.scripts == nil {
		return false, errNotInitialized
	}
	n, err := compareAndDelete.Run(ctx, c.scripts, []string{key}, expected).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// FixedWindowAllow counts one request against scope and reports whether the
// window still has room. The counter and its expiry are set atomically.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if c.scripts == nil {
		return false, 0, errNotInitialized
	}
	if window < time.Millisecond {
		window = time.Second
	}
	count, err := fixedWindow.Run(ctx, c.scripts, []string{c.RateLimitKey(scope)}, window.Milliseconds()).Int64()
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}
