package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// extendLua sets KEYS[1] to expire in ARGV[1] milliseconds unless it
// already lives longer.
const extendLua = `
local ttl = redis.call('PTTL', KEYS[1])
if ttl < tonumber(ARGV[1]) then
    redis.call('SET', KEYS[1], '1', 'PX', ARGV[1])
    return 1
end
return 0
`

// maxGatePoll bounds a single sleep while another process holds the slot.
const maxGatePoll = time.Second

// Gate spaces requests to one marketplace across every process sharing the
// Redis instance. A request slot is a key that lives for the interval; the
// next caller may go once it expires.
type Gate struct {
	rdb      *redis.Client
	key      string
	interval time.Duration
	extendSc *redis.Script
}

// NewGate returns a shared gate for source allowing one request per
// interval.
func NewGate(c *Client, source string, interval time.Duration) *Gate {
	return &Gate{
		rdb:      c.rdb,
		key:      c.Key("ratelimit", source),
		interval: interval,
		extendSc: redis.NewScript(extendLua),
	}
}

// Acquire blocks until this process owns the next request slot.
func (g *Gate) Acquire(ctx context.Context) error {
	if g.interval <= 0 {
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("redis: gate %s: %w", g.key, err)
		}

		ok, err := g.rdb.SetNX(ctx, g.key, "1", g.interval).Result()
		if err != nil {
			return fmt.Errorf("redis: gate %s: %w", g.key, err)
		}
		if ok {
			return nil
		}

		wait, err := g.rdb.PTTL(ctx, g.key).Result()
		if err != nil {
			return fmt.Errorf("redis: gate %s ttl: %w", g.key, err)
		}
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		if wait > maxGatePoll {
			wait = maxGatePoll
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: gate %s: %w", g.key, ctx.Err())
		case <-timer.C:
		}
	}
}

// Penalize keeps the slot closed for at least d, so every process backs
// off after the server throttles one of them. Failures are ignored; the
// local limiter still applies the penalty.
func (g *Gate) Penalize(d time.Duration) {
	if d <= 0 {
		d = g.interval
	}
	if d <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = g.extendSc.Run(ctx, g.rdb, []string{g.key}, d.Milliseconds()).Err()
}
