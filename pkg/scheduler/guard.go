package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a cross-process guard taken in addition to the in-process
// JobStates, so that only one scheduler of a deployment runs a job.
type Lock interface {
	// TryLock takes the lock for job, identified by token, for at most
	// ttl. It reports false when another holder owns it.
	TryLock(ctx context.Context, job, token string, ttl time.Duration) (bool, error)

	// Unlock releases the lock if token still owns it.
	Unlock(ctx context.Context, job, token string) error
}

// unlockScript deletes the key only when it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisGuard implements Lock with SET NX and a compare-and-delete script.
type RedisGuard struct {
	client redis.Cmdable
	prefix string
}

// NewRedisGuard creates a guard storing its keys under prefix.
func NewRedisGuard(client redis.Cmdable, prefix string) *RedisGuard {
	if prefix == "" {
		prefix = "aibrain:job:"
	}
	return &RedisGuard{client: client, prefix: prefix}
}

// TryLock implements Lock.
func (g *RedisGuard) TryLock(ctx context.Context, job, token string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+job, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock %s: %w", job, err)
	}
	return ok, nil
}

// Unlock implements Lock.
func (g *RedisGuard) Unlock(ctx context.Context, job, token string) error {
	if err := unlockScript.Run(ctx, g.client, []string{g.prefix + job}, token).Err(); err != nil {
		return fmt.Errorf("redis unlock %s: %w", job, err)
	}
	return nil
}
