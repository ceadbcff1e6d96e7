package ratelimit

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/pantheon-ai/mnemo/types"
)

// DefaultCooldown is how long the coordinator stays on the local limiter
// after a Redis failure before probing Redis again.
const DefaultCooldown = 30 * time.Second

// CoordinatorOptions configures the failover limiter.
type CoordinatorOptions struct {
	// Redis is the coordinated limiter. Nil runs local-only.
	Redis *RedisLimiter

	// Local is the fallback limiter. Built from Limit and Window when
	// nil.
	Local *LocalLimiter

	// Limit and Window configure the fallback when Local is nil. They
	// should match the Redis limiter so a mode switch does not change
	// the budget.
	Limit  int
	Window time.Duration

	// Cooldown is how long to stay local after a Redis failure. Zero
	// means DefaultCooldown.
	Cooldown time.Duration

	// Logger receives mode transitions. Defaults to a JSON logger on
	// stdout.
	Logger *slog.Logger
}

// Coordinator prefers the Redis limiter and trips to the local one when
// Redis errors, so rate limiting keeps working while the coordinator is
// down. Every mode transition is logged; after the cooldown the next
// request probes Redis again.
type Coordinator struct {
	redis    *RedisLimiter
	local    *LocalLimiter
	cooldown time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	usingLocal bool
	trippedAt  time.Time
}

var (
	_ Limiter = (*RedisLimiter)(nil)
	_ Limiter = (*LocalLimiter)(nil)
	_ Limiter = (*Coordinator)(nil)
)

// NewCoordinator creates the failover limiter.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if opts.Local == nil {
		opts.Local = NewLocal(LocalOptions{
			Limit:  opts.Limit,
			Window: opts.Window,
			Logger: opts.Logger,
		})
	}

	return &Coordinator{
		redis:    opts.Redis,
		local:    opts.Local,
		cooldown: opts.Cooldown,
		logger:   opts.Logger,
	}
}

// Allow delegates to Redis when it is trusted, falling back to the local
// limiter on error. Local decisions are marked with their backend so
// callers can tell the modes apart.
func (c *Coordinator) Allow(ctx context.Context, key string) (Result, error) {
	if c.redis != nil && c.shouldTryRedis() {
		res, err := c.redis.Allow(ctx, key)
		if err == nil {
			c.noteRedisHealthy()
			return res, nil
		}
		c.trip(err)
	}
	return c.local.Allow(ctx, key)
}

// Mode reports which limiter currently decides: BackendRedis or
// BackendLocal.
func (c *Coordinator) Mode() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.redis == nil || c.usingLocal {
		return BackendLocal
	}
	return BackendRedis
}

// Health reports healthy when Redis coordinates, degraded when running
// on the local fallback or when the coordinator stops answering.
func (c *Coordinator) Health(ctx context.Context) types.HealthStatus {
	mode := c.Mode()
	if mode == BackendLocal {
		return types.NewDegradedStatus("rate limiter running locally", map[string]any{
			"mode": BackendLocal,
		})
	}
	if err := c.redis.Ping(ctx); err != nil {
		return types.NewDegradedStatus("rate limit coordinator unreachable", map[string]any{
			"mode":  mode,
			"error": err.Error(),
		})
	}
	return types.NewHealthyStatus("rate limiter coordinated").
		WithDetail("mode", mode)
}

// Close releases both limiters.
func (c *Coordinator) Close() error {
	var firstErr error
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			firstErr = err
		}
	}
	if err := c.local.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// shouldTryRedis reports whether Redis is trusted or due for a probe.
func (c *Coordinator) shouldTryRedis() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.usingLocal {
		return true
	}
	return time.Since(c.trippedAt) >= c.cooldown
}

// noteRedisHealthy restores coordinated mode after a successful round.
func (c *Coordinator) noteRedisHealthy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.usingLocal {
		c.usingLocal = false
		c.logger.Info("rate limiter restored to coordinated mode")
	}
}

// trip switches to the local limiter and stamps the cooldown.
func (c *Coordinator) trip(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.usingLocal {
		c.logger.Warn("rate limiter falling back to local mode", "error", err)
	}
	c.usingLocal = true
	c.trippedAt = time.Now()
}
