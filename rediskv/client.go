package rediskv

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pantheon-ai/mnemo/isolation"
	"github.com/pantheon-ai/mnemo/memory"
)

// Default connection and expiry settings, used when Options leaves the
// corresponding field zero.
const (
	DefaultURL            = "redis://localhost:6379/0"
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	DefaultWriteTimeout   = 5 * time.Second

	// DefaultWorkingTTL bounds the working tier: items either consolidate
	// into a long-term tier within the hour or expire.
	DefaultWorkingTTL = time.Hour

	// DefaultEpisodicTTL keeps recent experience hot for a day.
	DefaultEpisodicTTL = 24 * time.Hour

	// DefaultCacheTTL applies to semantic and procedural entries, which
	// only pass through the fast tier as a read cache.
	DefaultCacheTTL = 5 * time.Minute
)

// Options configures the Redis connection and per-kind expiry.
type Options struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379/0").
	// The database index in the URL is the service database; persona
	// namespaces use the logical database from their isolation profile.
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration

	// WorkingTTL, EpisodicTTL and CacheTTL are the base expiries per kind
	// before the persona multiplier is applied.
	WorkingTTL  time.Duration
	EpisodicTTL time.Duration
	CacheTTL    time.Duration

	// Resolver maps personas to namespaces. A default resolver with the
	// built-in profiles is created when nil.
	Resolver *isolation.Resolver

	// Logger receives structured logs. Defaults to a JSON logger on stdout.
	Logger *slog.Logger
}

// Store implements memory.Backend on Redis. It is the fast tier: the
// working set, the episodic hot window and a read cache for long-term
// kinds, with one connection pool per persona namespace.
type Store struct {
	base     *redis.Client
	opts     redis.Options
	resolver *isolation.Resolver
	logger   *slog.Logger

	workingTTL  time.Duration
	episodicTTL time.Duration
	cacheTTL    time.Duration

	mu    sync.Mutex
	pools map[int]*redis.Client
}

var _ memory.Backend = (*Store)(nil)

// New creates a Redis-backed fast tier store with the given options and
// verifies connectivity with a ping.
func New(opts Options) (*Store, error) {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}

	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}

	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}

	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	if opts.WorkingTTL == 0 {
		opts.WorkingTTL = DefaultWorkingTTL
	}

	if opts.EpisodicTTL == 0 {
		opts.EpisodicTTL = DefaultEpisodicTTL
	}

	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

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

	resolver := opts.Resolver
	if resolver == nil {
		resolver = isolation.NewResolver(isolation.Options{Logger: logger})
	}

	return &Store{
		base:        client,
		opts:        *redisOpts,
		resolver:    resolver,
		logger:      logger,
		workingTTL:  opts.WorkingTTL,
		episodicTTL: opts.EpisodicTTL,
		cacheTTL:    opts.CacheTTL,
		pools:       make(map[int]*redis.Client),
	}, nil
}

// pool returns the connection pool for a persona's namespace, creating it
// lazily. Resolution never fails here: a persona the resolver rejects is
// served from the shared namespace with a warning.
func (s *Store) pool(persona memory.Persona) (*redis.Client, *isolation.Profile) {
	profile, err := s.resolver.Resolve(persona)
	if err != nil {
		s.logger.Warn("persona resolution failed, using shared namespace",
			"persona", persona.String(),
			"error", err.Error())
		profile, _ = s.resolver.Resolve(memory.PersonaShared)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if client, ok := s.pools[profile.NamespaceID]; ok {
		return client, profile
	}

	opts := s.opts
	opts.DB = profile.NamespaceID
	client := redis.NewClient(&opts)
	s.pools[profile.NamespaceID] = client

	return client, profile
}

// openPools returns a snapshot of the pools created so far, keyed by
// namespace database index.
func (s *Store) openPools() map[int]*redis.Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[int]*redis.Client, len(s.pools))
	for db, client := range s.pools {
		snapshot[db] = client
	}
	return snapshot
}

// ttlFor returns the base expiry for a kind before persona scaling.
// Long-term kinds only pass through as cache entries.
func (s *Store) ttlFor(kind memory.Kind) time.Duration {
	switch kind {
	case memory.KindWorking:
		return s.workingTTL
	case memory.KindEpisodic:
		return s.episodicTTL
	default:
		return s.cacheTTL
	}
}

// memoryKey returns the primary key for an item.
func memoryKey(id string) string {
	return "memory:" + id
}

// personaKey returns the per-persona importance index key for a kind.
func personaKey(persona memory.Persona, kind memory.Kind) string {
	return formatKeyName("persona", persona.String(), kind.String())
}

// typeKey returns the kind membership set key.
func typeKey(kind memory.Kind) string {
	return "type:" + kind.String()
}

// formatKeyName ensures consistent key naming with colon-separated parts.
func formatKeyName(parts ...string) string {
	return strings.Join(parts, ":")
}
