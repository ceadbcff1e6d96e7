package ratelimit

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pantheon-ai/mnemo/memerr"
)

const component = "ratelimit"

// DefaultConnectTimeout bounds the initial dial and ping.
const DefaultConnectTimeout = 5 * time.Second

// expiryEpsilon pads the key expiry so a full window always outlives its
// newest entry.
const expiryEpsilon = time.Second

// RedisOptions configures the coordinated limiter.
type RedisOptions struct {
	// URL is the Redis connection string. Rate-limit keys live in the
	// service-state database, so the URL should select database 0.
	URL string

	// TLS enables TLS on the connection when set.
	TLS *tls.Config

	// ConnectTimeout bounds the initial dial. Zero means
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// Limit is the request budget per window. Zero means DefaultLimit.
	Limit int

	// Window is the sliding window width. Zero means DefaultWindow.
	Window time.Duration

	// Logger receives limiter events. Defaults to a JSON logger on
	// stdout.
	Logger *slog.Logger
}

// RedisLimiter enforces a sliding window against a shared Redis, so every
// service instance draws from the same budget. Each key keeps a sorted
// set of request timestamps; admission trims, counts, and records in one
// transactional pipeline.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	logger *slog.Logger
	seq    atomic.Uint64
}

// NewRedis creates a Redis-coordinated limiter and verifies connectivity.
func NewRedis(opts RedisOptions) (*RedisLimiter, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379/0"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	return &RedisLimiter{
		client: client,
		limit:  opts.Limit,
		window: opts.Window,
		logger: logger,
	}, nil
}

// Allow runs the sliding-window round for the key: trim entries older
// than the window, count the remainder, record this request, and refresh
// the key expiry, all in one transactional pipeline. When the count is
// already at the limit the just-recorded entry is removed again, so
// denied requests never consume budget.
//
// Concurrent denials can briefly inflate the count between the add and
// its removal. That over-counts toward denial, never past the limit.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now()
	windowStart := now.Add(-l.window)
	member := fmt.Sprintf("%d-%d", now.UnixNano(), l.seq.Add(1))
	rkey := rateKey(key)

	var (
		card   *redis.IntCmd
		oldest *redis.ZSliceCmd
	)

	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, rkey, "-inf", strconv.FormatInt(windowStart.UnixNano(), 10))
		card = pipe.ZCard(ctx, rkey)
		pipe.ZAdd(ctx, rkey, redis.Z{Score: float64(now.UnixNano()), Member: member})
		oldest = pipe.ZRangeWithScores(ctx, rkey, 0, 0)
		pipe.Expire(ctx, rkey, l.window+expiryEpsilon)
		return nil
	})
	if err != nil {
		return Result{}, memerr.New(component, "allow", memerr.ErrCodeBackendUnavailable,
			"rate limit pipeline failed").WithCause(err)
	}

	// card counted the window before this request was recorded.
	used := int(card.Val())
	reset := l.resetFrom(oldest.Val(), now)

	if used >= l.limit {
		if rmErr := l.client.ZRem(ctx, rkey, member).Err(); rmErr != nil {
			l.logger.Warn("failed to remove denied rate limit entry",
				"key", key, "error", rmErr)
		}

		retryAfter := time.Until(reset)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Result{
			Allowed:    false,
			Limit:      l.limit,
			Remaining:  0,
			Reset:      reset,
			RetryAfter: retryAfter,
			Backend:    BackendRedis,
		}, nil
	}

	return Result{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - used - 1,
		Reset:     reset,
		Backend:   BackendRedis,
	}, nil
}

// Ping verifies the coordinator connection.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// resetFrom converts the oldest surviving entry into the moment the
// window frees up. An empty set resets a full window from now.
func (l *RedisLimiter) resetFrom(entries []redis.Z, now time.Time) time.Time {
	if len(entries) == 0 {
		return now.Add(l.window)
	}
	return time.Unix(0, int64(entries[0].Score)).Add(l.window)
}

// rateKey returns the service-state key for a client.
func rateKey(client string) string {
	return "rate_limit:" + client
}
