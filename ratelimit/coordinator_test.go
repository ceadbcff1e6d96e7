package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantheon-ai/mnemo/types"
)

func setupCoordinator(t *testing.T, limit int, window time.Duration) (*Coordinator, *miniredis.Miniredis) {
	t.Helper()

	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)

	rl, err := NewRedis(RedisOptions{
		URL:    "redis://" + mr.Addr() + "/0",
		Limit:  limit,
		Window: window,
		Logger: discard,
	})
	require.NoError(t, err)

	c := NewCoordinator(CoordinatorOptions{
		Redis:  rl,
		Limit:  limit,
		Window: window,
		Logger: discard,
	})
	t.Cleanup(func() {
		c.Close()
	})

	return c, mr
}

func TestCoordinatorPrefersRedis(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCoordinator(t, 3, time.Minute)

	res, err := c.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, BackendRedis, res.Backend)
	assert.Equal(t, BackendRedis, c.Mode())
}

func TestCoordinatorTripsToLocal(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCoordinator(t, 3, time.Minute)

	mr.Close()

	res, err := c.Allow(ctx, "client-a")
	require.NoError(t, err, "fallback must absorb the coordinator outage")
	assert.True(t, res.Allowed)
	assert.Equal(t, BackendLocal, res.Backend)
	assert.Equal(t, BackendLocal, c.Mode())
}

func TestCoordinatorLocalStillEnforces(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCoordinator(t, 2, time.Minute)

	mr.Close()

	for i := 0; i < 2; i++ {
		res, err := c.Allow(ctx, "client-a")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	res, err := c.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, BackendLocal, res.Backend)
}

func TestCoordinatorCooldownHoldsLocal(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCoordinator(t, 3, time.Minute)
	c.cooldown = time.Hour

	mr.Close()

	_, err := c.Allow(ctx, "client-a")
	require.NoError(t, err)
	require.Equal(t, BackendLocal, c.Mode())

	// Within the cooldown the dead coordinator is not probed again.
	res, err := c.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, res.Backend)
}

func TestCoordinatorRestoresAfterProbe(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCoordinator(t, 3, time.Minute)

	// Pretend a past failure tripped the limiter, with the cooldown
	// already served. The next request probes the healthy coordinator.
	c.mu.Lock()
	c.usingLocal = true
	c.trippedAt = time.Now().Add(-time.Hour)
	c.mu.Unlock()

	res, err := c.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, res.Backend)
	assert.Equal(t, BackendRedis, c.Mode())
}

func TestCoordinatorLocalOnly(t *testing.T) {
	ctx := context.Background()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	c := NewCoordinator(CoordinatorOptions{
		Limit:  2,
		Window: time.Minute,
		Logger: discard,
	})
	t.Cleanup(func() {
		c.Close()
	})

	res, err := c.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, BackendLocal, res.Backend)
	assert.Equal(t, BackendLocal, c.Mode())

	status := c.Health(ctx)
	assert.Equal(t, types.StatusDegraded, status.Status)
}

func TestCoordinatorHealth(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCoordinator(t, 3, time.Minute)

	status := c.Health(ctx)
	assert.Equal(t, types.StatusHealthy, status.Status)
	assert.Equal(t, BackendRedis, status.Details["mode"])

	mr.Close()

	status = c.Health(ctx)
	assert.Equal(t, types.StatusDegraded, status.Status)
}
