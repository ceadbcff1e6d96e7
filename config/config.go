// Package config provides loading and parsing of mnemo.yaml configuration
// files. The configuration covers backend connectivity, per-kind TTLs,
// lifecycle scheduling, rate limiting, and access control.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents a mnemo.yaml configuration file.
// Zero values fall back to service defaults through the Get* helpers, so
// a missing or minimal file still yields a working service.
type Config struct {
	// RedisURL is the fast-tier connection string (redis:// or rediss://).
	// Empty means the fast tier and the distributed rate limiter run
	// against localhost:6379.
	RedisURL string `yaml:"redis_url,omitempty"`

	// DurablePath is the filesystem path of the durable store database.
	// Default: mnemo.db in the working directory.
	DurablePath string `yaml:"durable_path,omitempty"`

	// VectorPath is the filesystem path of the vector index database.
	// Default: mnemo-vectors.db in the working directory.
	VectorPath string `yaml:"vector_path,omitempty"`

	// EmbeddingDim is the dimension of content embeddings.
	// Default: 256
	EmbeddingDim int `yaml:"embedding_dim,omitempty"`

	// CacheSize is the capacity of the router's in-process result cache.
	// Default: 1024
	CacheSize int `yaml:"cache_size,omitempty"`

	// MaxContentBytes caps the serialized size of item content.
	// Default: 65536
	MaxContentBytes int `yaml:"max_content_bytes,omitempty"`

	// Production enables production behavior: unknown personas are
	// rejected instead of falling back to the shared namespace.
	Production bool `yaml:"production,omitempty"`

	// AuthEnabled toggles token authentication. Unset means enabled.
	AuthEnabled *bool `yaml:"auth_enabled,omitempty"`

	// TokenTTL is the lifetime of issued access tokens.
	// Format: Go duration string (e.g., "24h")
	// Default: 24h
	TokenTTL string `yaml:"token_ttl,omitempty"`

	// TTL configures fast-tier expiry per memory kind.
	TTL *TTLConfig `yaml:"ttl,omitempty"`

	// Lifecycle configures the consolidation and pruning workers.
	Lifecycle *LifecycleConfig `yaml:"lifecycle,omitempty"`

	// RateLimit configures the sliding-window request limiter.
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`

	// Etcd configures the optional lease manager used to elect the
	// lifecycle writer across replicas.
	Etcd *EtcdConfig `yaml:"etcd,omitempty"`
}

// TTLConfig defines fast-tier expiry per memory kind.
// Durations are Go duration strings (e.g., "1h", "24h", "5m").
type TTLConfig struct {
	// Working is the TTL for working memory.
	// Default: 1h
	Working string `yaml:"working,omitempty"`

	// Episodic is the TTL for episodic memory.
	// Default: 24h
	Episodic string `yaml:"episodic,omitempty"`

	// Cache is the TTL for fast-tier copies of semantic and procedural
	// items, and for router cache entries.
	// Default: 5m
	Cache string `yaml:"cache,omitempty"`
}

// GetWorking parses the working TTL and returns a duration.
// Returns the default value if not set or invalid.
func (t *TTLConfig) GetWorking() time.Duration {
	if t == nil || t.Working == "" {
		return time.Hour
	}
	d, err := time.ParseDuration(t.Working)
	if err != nil {
		return time.Hour
	}
	return d
}

// GetEpisodic parses the episodic TTL and returns a duration.
// Returns the default value if not set or invalid.
func (t *TTLConfig) GetEpisodic() time.Duration {
	if t == nil || t.Episodic == "" {
		return 24 * time.Hour
	}
	d, err := time.ParseDuration(t.Episodic)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// GetCache parses the cache TTL and returns a duration.
// Returns the default value if not set or invalid.
func (t *TTLConfig) GetCache() time.Duration {
	if t == nil || t.Cache == "" {
		return 5 * time.Minute
	}
	d, err := time.ParseDuration(t.Cache)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// LifecycleConfig defines the schedule of the background lifecycle engine.
type LifecycleConfig struct {
	// Disabled turns the background workers off entirely. Cycles can
	// still be driven manually.
	Disabled bool `yaml:"disabled,omitempty"`

	// ConsolidationInterval is the period between consolidation sweeps.
	// Format: Go duration string (e.g., "5m")
	// Default: 5m
	ConsolidationInterval string `yaml:"consolidation_interval,omitempty"`

	// PruneInterval is the period between forgetting-curve sweeps.
	// Format: Go duration string (e.g., "1h")
	// Default: 1h
	PruneInterval string `yaml:"prune_interval,omitempty"`
}

// GetConsolidationInterval parses the consolidation interval and returns
// a duration. Returns the default value if not set or invalid.
func (l *LifecycleConfig) GetConsolidationInterval() time.Duration {
	if l == nil || l.ConsolidationInterval == "" {
		return 5 * time.Minute
	}
	d, err := time.ParseDuration(l.ConsolidationInterval)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// GetPruneInterval parses the prune interval and returns a duration.
// Returns the default value if not set or invalid.
func (l *LifecycleConfig) GetPruneInterval() time.Duration {
	if l == nil || l.PruneInterval == "" {
		return time.Hour
	}
	d, err := time.ParseDuration(l.PruneInterval)
	if err != nil {
		return time.Hour
	}
	return d
}

// IsDisabled reports whether the background workers should stay off.
func (l *LifecycleConfig) IsDisabled() bool {
	return l != nil && l.Disabled
}

// RateLimitConfig defines the sliding-window request limiter.
type RateLimitConfig struct {
	// Limit is the maximum number of requests per window per client.
	// Default: 100
	Limit int `yaml:"limit,omitempty"`

	// Window is the sliding window length.
	// Format: Go duration string (e.g., "60s")
	// Default: 60s
	Window string `yaml:"window,omitempty"`
}

// GetLimit returns the configured request budget or the default value.
func (r *RateLimitConfig) GetLimit() int {
	if r == nil || r.Limit <= 0 {
		return 100
	}
	return r.Limit
}

// GetWindow parses the window length and returns a duration.
// Returns the default value if not set or invalid.
func (r *RateLimitConfig) GetWindow() time.Duration {
	if r == nil || r.Window == "" {
		return time.Minute
	}
	d, err := time.ParseDuration(r.Window)
	if err != nil {
		return time.Minute
	}
	return d
}

// EtcdConfig defines the optional etcd lease manager. When Endpoints is
// empty the lease manager is skipped and every replica runs its own
// lifecycle engine.
type EtcdConfig struct {
	// Endpoints lists the etcd cluster endpoints.
	Endpoints []string `yaml:"endpoints,omitempty"`

	// Namespace prefixes every lease key.
	// Default: mnemo
	Namespace string `yaml:"namespace,omitempty"`

	// TTL is the lease time-to-live in seconds.
	// Default: 30
	TTL int64 `yaml:"ttl,omitempty"`

	// TLS configures transport security for etcd connections.
	TLS *TLSConfig `yaml:"tls,omitempty"`
}

// GetNamespace returns the lease key namespace or the default value.
func (e *EtcdConfig) GetNamespace() string {
	if e == nil || e.Namespace == "" {
		return "mnemo"
	}
	return e.Namespace
}

// GetTTL returns the lease TTL in seconds or the default value.
func (e *EtcdConfig) GetTTL() int64 {
	if e == nil || e.TTL <= 0 {
		return 30
	}
	return e.TTL
}

// TLSConfig contains TLS settings for etcd connections.
type TLSConfig struct {
	// Enabled determines if TLS is used.
	Enabled bool `yaml:"enabled,omitempty"`

	// CertFile is the path to the client certificate.
	CertFile string `yaml:"cert_file,omitempty"`

	// KeyFile is the path to the client key.
	KeyFile string `yaml:"key_file,omitempty"`

	// CAFile is the path to the certificate authority bundle.
	CAFile string `yaml:"ca_file,omitempty"`
}

// GetDurablePath returns the durable store path or the default value.
func (c *Config) GetDurablePath() string {
	if c == nil || c.DurablePath == "" {
		return "mnemo.db"
	}
	return c.DurablePath
}

// GetVectorPath returns the vector index path or the default value.
func (c *Config) GetVectorPath() string {
	if c == nil || c.VectorPath == "" {
		return "mnemo-vectors.db"
	}
	return c.VectorPath
}

// GetRedisURL returns the fast-tier connection string or the default value.
func (c *Config) GetRedisURL() string {
	if c == nil || c.RedisURL == "" {
		return "redis://localhost:6379/0"
	}
	return c.RedisURL
}

// GetEmbeddingDim returns the embedding dimension or the default value.
func (c *Config) GetEmbeddingDim() int {
	if c == nil || c.EmbeddingDim <= 0 {
		return 256
	}
	return c.EmbeddingDim
}

// GetCacheSize returns the router cache capacity or the default value.
func (c *Config) GetCacheSize() int {
	if c == nil || c.CacheSize <= 0 {
		return 1024
	}
	return c.CacheSize
}

// GetMaxContentBytes returns the content size cap or the default value.
func (c *Config) GetMaxContentBytes() int {
	if c == nil || c.MaxContentBytes <= 0 {
		return 65536
	}
	return c.MaxContentBytes
}

// GetAuthEnabled reports whether token authentication is on.
// Unset means enabled.
func (c *Config) GetAuthEnabled() bool {
	if c == nil || c.AuthEnabled == nil {
		return true
	}
	return *c.AuthEnabled
}

// GetTokenTTL parses the token lifetime and returns a duration.
// Returns the default value if not set or invalid.
func (c *Config) GetTokenTTL() time.Duration {
	if c == nil || c.TokenTTL == "" {
		return 24 * time.Hour
	}
	d, err := time.ParseDuration(c.TokenTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// Validate checks that explicitly set values are usable. Unset values
// are fine because the Get* helpers supply defaults.
func (c *Config) Validate() error {
	if c.EmbeddingDim < 0 {
		return fmt.Errorf("embedding_dim must be positive, got %d", c.EmbeddingDim)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be positive, got %d", c.CacheSize)
	}
	if c.MaxContentBytes < 0 {
		return fmt.Errorf("max_content_bytes must be positive, got %d", c.MaxContentBytes)
	}
	if c.Production {
		if !c.GetAuthEnabled() {
			return fmt.Errorf("auth_enabled cannot be false in production")
		}
		if c.DurablePath == "" {
			return fmt.Errorf("durable_path must be set in production")
		}
	}

	if err := checkDuration("token_ttl", c.TokenTTL); err != nil {
		return err
	}
	if c.TTL != nil {
		if err := checkDuration("ttl.working", c.TTL.Working); err != nil {
			return err
		}
		if err := checkDuration("ttl.episodic", c.TTL.Episodic); err != nil {
			return err
		}
		if err := checkDuration("ttl.cache", c.TTL.Cache); err != nil {
			return err
		}
	}
	if c.Lifecycle != nil {
		if err := checkDuration("lifecycle.consolidation_interval", c.Lifecycle.ConsolidationInterval); err != nil {
			return err
		}
		if err := checkDuration("lifecycle.prune_interval", c.Lifecycle.PruneInterval); err != nil {
			return err
		}
	}
	if c.RateLimit != nil {
		if c.RateLimit.Limit < 0 {
			return fmt.Errorf("rate_limit.limit must be positive, got %d", c.RateLimit.Limit)
		}
		if err := checkDuration("rate_limit.window", c.RateLimit.Window); err != nil {
			return err
		}
	}
	return nil
}

// checkDuration rejects set-but-unparseable duration strings. Empty is
// fine; the Get* helpers will use defaults.
func checkDuration(name, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("invalid duration for %s: %q", name, value)
	}
	return nil
}

// ApplyEnv overlays MNEMO_* environment variables onto the config.
// Environment values win over file values so deployments can override
// a baked-in file without editing it.
//
// Recognized variables:
//
//	MNEMO_REDIS_URL       fast-tier connection string
//	MNEMO_DURABLE_PATH    durable store path
//	MNEMO_VECTOR_PATH     vector index path
//	MNEMO_EMBEDDING_DIM   embedding dimension
//	MNEMO_CACHE_SIZE      router cache capacity
//	MNEMO_AUTH_ENABLED    "true" or "false"
//	MNEMO_PRODUCTION      "true" or "false"
//	MNEMO_TOKEN_TTL       token lifetime duration
//	MNEMO_RATE_LIMIT      requests per window
//	MNEMO_RATE_WINDOW     window duration
//	MNEMO_ETCD_ENDPOINTS  comma-separated etcd endpoints
//	MNEMO_ETCD_NAMESPACE  lease key namespace
func (c *Config) ApplyEnv() {
	if v := os.Getenv("MNEMO_REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("MNEMO_DURABLE_PATH"); v != "" {
		c.DurablePath = v
	}
	if v := os.Getenv("MNEMO_VECTOR_PATH"); v != "" {
		c.VectorPath = v
	}
	if v := os.Getenv("MNEMO_EMBEDDING_DIM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.EmbeddingDim = n
		}
	}
	if v := os.Getenv("MNEMO_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CacheSize = n
		}
	}
	if v := os.Getenv("MNEMO_AUTH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AuthEnabled = &b
		}
	}
	if v := os.Getenv("MNEMO_PRODUCTION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Production = b
		}
	}
	if v := os.Getenv("MNEMO_TOKEN_TTL"); v != "" {
		c.TokenTTL = v
	}
	if v := os.Getenv("MNEMO_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			if c.RateLimit == nil {
				c.RateLimit = &RateLimitConfig{}
			}
			c.RateLimit.Limit = n
		}
	}
	if v := os.Getenv("MNEMO_RATE_WINDOW"); v != "" {
		if c.RateLimit == nil {
			c.RateLimit = &RateLimitConfig{}
		}
		c.RateLimit.Window = v
	}
	if v := os.Getenv("MNEMO_ETCD_ENDPOINTS"); v != "" {
		if c.Etcd == nil {
			c.Etcd = &EtcdConfig{}
		}
		c.Etcd.Endpoints = strings.Split(v, ",")
	}
	if v := os.Getenv("MNEMO_ETCD_NAMESPACE"); v != "" {
		if c.Etcd == nil {
			c.Etcd = &EtcdConfig{}
		}
		c.Etcd.Namespace = v
	}
}

// Default returns a configuration with every field unset, relying on the
// Get* helpers for service defaults. Environment overrides are applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyEnv()
	return cfg
}

// Load reads and parses a mnemo.yaml file from the given path.
// If the path is a directory, it looks for mnemo.yaml or mnemo.yml in
// that directory. Environment overrides are applied after parsing.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	var configPath string
	if info.IsDir() {
		// Try mnemo.yaml first, then mnemo.yml
		yamlPath := filepath.Join(path, "mnemo.yaml")
		if _, err := os.Stat(yamlPath); err == nil {
			configPath = yamlPath
		} else {
			ymlPath := filepath.Join(path, "mnemo.yml")
			if _, err := os.Stat(ymlPath); err == nil {
				configPath = ymlPath
			} else {
				return nil, fmt.Errorf("no mnemo.yaml or mnemo.yml found in %s", path)
			}
		}
	} else {
		configPath = path
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// LoadFromDir searches for mnemo.yaml starting from the given directory
// and walking up to parent directories until found or root is reached.
func LoadFromDir(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	for {
		config, err := Load(absDir)
		if err == nil {
			return config, nil
		}

		// Move to parent directory
		parent := filepath.Dir(absDir)
		if parent == absDir {
			// Reached root
			return nil, fmt.Errorf("no mnemo.yaml found in %s or parent directories", dir)
		}
		absDir = parent
	}
}
