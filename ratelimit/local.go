package ratelimit

import (
	"context"
	"hash/fnv"
	"log/slog"
	"os"
	"sync"
	"time"
)

// shardCount spreads keys over independent locks so hot keys do not
// serialize unrelated clients.
const shardCount = 16

// localJanitorInterval is how often idle keys are swept.
const localJanitorInterval = time.Minute

// LocalOptions configures the in-process fallback limiter.
type LocalOptions struct {
	// Limit is the request budget per window. Zero means DefaultLimit.
	Limit int

	// Window is the sliding window width. Zero means DefaultWindow.
	Window time.Duration

	// Logger receives limiter events. Defaults to a JSON logger on
	// stdout.
	Logger *slog.Logger
}

// LocalLimiter enforces the sliding window from process memory. It keeps
// the same semantics as the Redis limiter but coordinates nothing across
// instances: each process grants the full budget on its own. A janitor
// goroutine sweeps keys that have gone idle for a full window.
type LocalLimiter struct {
	limit  int
	window time.Duration
	logger *slog.Logger
	shards [shardCount]*localShard

	stopOnce sync.Once
	stop     chan struct{}
}

// localShard is one lock domain of the key space.
type localShard struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

// NewLocal creates an in-process limiter and starts its janitor.
func NewLocal(opts LocalOptions) *LocalLimiter {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	l := &LocalLimiter{
		limit:  opts.Limit,
		window: opts.Window,
		logger: opts.Logger,
		stop:   make(chan struct{}),
	}
	for i := range l.shards {
		l.shards[i] = &localShard{entries: make(map[string][]time.Time)}
	}

	go l.janitor()

	return l
}

// Allow applies the sliding window to the key. Timestamps are kept in
// arrival order, so trimming drops a prefix and the oldest survivor is
// always the slice head.
func (l *LocalLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now()
	cutoff := now.Add(-l.window)

	shard := l.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	stamps := trimBefore(shard.entries[key], cutoff)

	if len(stamps) >= l.limit {
		shard.entries[key] = stamps

		reset := stamps[0].Add(l.window)
		retryAfter := reset.Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Result{
			Allowed:    false,
			Limit:      l.limit,
			Remaining:  0,
			Reset:      reset,
			RetryAfter: retryAfter,
			Backend:    BackendLocal,
		}, nil
	}

	stamps = append(stamps, now)
	shard.entries[key] = stamps

	return Result{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - len(stamps),
		Reset:     stamps[0].Add(l.window),
		Backend:   BackendLocal,
	}, nil
}

// Close stops the janitor. Safe to call more than once.
func (l *LocalLimiter) Close() error {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
	return nil
}

func (l *LocalLimiter) shard(key string) *localShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return l.shards[h.Sum32()%shardCount]
}

// janitor periodically drops keys whose every entry has left the window.
func (l *LocalLimiter) janitor() {
	ticker := time.NewTicker(localJanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep(time.Now())
		}
	}
}

// sweep trims every key and deletes the ones left empty.
func (l *LocalLimiter) sweep(now time.Time) {
	cutoff := now.Add(-l.window)

	for _, shard := range l.shards {
		shard.mu.Lock()
		for key, stamps := range shard.entries {
			trimmed := trimBefore(stamps, cutoff)
			if len(trimmed) == 0 {
				delete(shard.entries, key)
				continue
			}
			shard.entries[key] = trimmed
		}
		shard.mu.Unlock()
	}
}

// trimBefore drops the leading timestamps at or before the cutoff.
func trimBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}
