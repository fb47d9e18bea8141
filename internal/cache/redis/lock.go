package redis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/mpimport/internal/domain"
)

// releaseLua deletes the run lock only while it still carries our holder
// token.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// renewLua resets the run lock's TTL while it still carries our holder
// token. It returns 0 once the lock has been lost.
const renewLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// LockManager hands out import run locks. A held lock is renewed every
// third of its TTL until released, so a long backfill never loses it
// mid-run; a crashed importer's lock still expires after one TTL.
type LockManager struct {
	client    *Client
	releaseSc *redis.Script
	renewSc   *redis.Script
	holder    string
	logger    *slog.Logger
}

// NewLockManager creates a LockManager backed by c.
func NewLockManager(c *Client, logger *slog.Logger) *LockManager {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &LockManager{
		client:    c,
		releaseSc: redis.NewScript(releaseLua),
		renewSc:   redis.NewScript(renewLua),
		holder:    fmt.Sprintf("%s/%d", host, os.Getpid()),
		logger:    logger.With(slog.String("component", "redis_lock")),
	}
}

func (lm *LockManager) lockKey(key string) string {
	return lm.client.Key("lock", key)
}

// Acquire takes the lock for key for ttl and keeps renewing it. The
// returned unlock function stops the renewal and releases the lock; it is
// safe to call more than once.
//
// When another run holds the lock the error wraps domain.ErrLockHeld and
// names the holder.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	rdb := lm.client.rdb
	lk := lm.lockKey(key)
	token := lm.holder + "/" + uuid.NewString()

	ok, err := rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, lm.heldError(ctx, key, lk)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go lm.renew(lk, token, ttl, stop, done)

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			close(stop)
			<-done
			// The run's context may already be cancelled by now.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := lm.releaseSc.Run(releaseCtx, rdb, []string{lk}, token).Err(); err != nil {
				lm.logger.Warn("lock release failed", slog.String("key", key), slog.String("error", err.Error()))
			}
		})
	}
	return unlock, nil
}

func (lm *LockManager) heldError(ctx context.Context, key, lk string) error {
	holder, err := lm.client.rdb.Get(ctx, lk).Result()
	if err != nil {
		return fmt.Errorf("redis: lock %s: %w", key, domain.ErrLockHeld)
	}
	left, _ := lm.client.rdb.PTTL(ctx, lk).Result()
	return fmt.Errorf("redis: lock %s held by %s (expires in %s): %w",
		key, holder, left.Round(time.Second), domain.ErrLockHeld)
}

func (lm *LockManager) renew(lk, token string, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	every := ttl / 3
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), every)
		kept, err := lm.renewSc.Run(ctx, lm.client.rdb, []string{lk}, token, ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			lm.logger.Warn("lock renewal failed", slog.String("key", lk), slog.String("error", err.Error()))
		case kept == 0:
			lm.logger.Error("run lock lost; another import may start on this source", slog.String("key", lk))
			return
		}
	}
}

var _ domain.LockManager = (*LockManager)(nil)
