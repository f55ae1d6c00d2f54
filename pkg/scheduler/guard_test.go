package scheduler_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odiumxp/ai-brain/pkg/scheduler"
)

func requireRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("AIBRAIN_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  500 * time.Millisecond,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis is not available at %s: %v", addr, err)
	}

	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestRedisGuard(t *testing.T) {
	client := requireRedisClient(t)
	ctx := context.Background()
	prefix := "aibrain:test:" + t.Name() + ":"
	t.Cleanup(func() { client.Del(context.Background(), prefix+"evolve") })

	guard := scheduler.NewRedisGuard(client, prefix)

	ok, err := guard.TryLock(ctx, "evolve", "run-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.TryLock(ctx, "evolve", "run-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "held by run-1")

	require.NoError(t, guard.Unlock(ctx, "evolve", "run-2"))
	assert.Equal(t, "run-1", client.Get(ctx, prefix+"evolve").Val(), "only the owner unlocks")

	require.NoError(t, guard.Unlock(ctx, "evolve", "run-1"))
	ok, err = guard.TryLock(ctx, "evolve", "run-3", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, guard.Unlock(ctx, "evolve", "run-3"))
}

func TestScheduler_WithRedisGuard(t *testing.T) {
	client := requireRedisClient(t)
	prefix := "aibrain:test:" + t.Name() + ":"

	first := scheduler.New(scheduler.WithLock(scheduler.NewRedisGuard(client, prefix), time.Minute))
	second := scheduler.New(scheduler.WithLock(scheduler.NewRedisGuard(client, prefix), time.Minute))

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, first.Register(scheduler.Job{Name: "evolve", Before: []scheduler.Step{{Name: "wait", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}}}))
	require.NoError(t, second.Register(scheduler.Job{Name: "evolve"}))

	done := make(chan error, 1)
	go func() {
		_, err := first.RunNow(context.Background(), "evolve")
		done <- err
	}()
	<-started

	_, err := second.RunNow(context.Background(), "evolve")
	assert.ErrorIs(t, err, scheduler.ErrJobRunning)

	close(release)
	require.NoError(t, <-done)

	_, err = second.RunNow(context.Background(), "evolve")
	assert.NoError(t, err)
}
