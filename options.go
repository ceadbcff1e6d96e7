package mnemo

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/pantheon-ai/mnemo/lease"
	"github.com/pantheon-ai/mnemo/memory"
	"github.com/pantheon-ai/mnemo/ratelimit"
	"github.com/pantheon-ai/mnemo/vector"
)

// Option configures the Service.
type Option func(*serviceConfig)

// serviceConfig holds construction-time overrides for the Service.
type serviceConfig struct {
	logger        *slog.Logger
	tracer        trace.Tracer
	meterProvider metric.MeterProvider
	embedder      vector.Embedder
	leases        *lease.Manager
	limiter       ratelimit.Limiter

	fast    memory.Backend
	vec     memory.Backend
	durable memory.Backend
	// backendsSet distinguishes an explicit all-nil WithBackends call
	// from the default driver construction path.
	backendsSet bool
}

// WithLogger sets a custom logger for the service.
// If not provided, a JSON logger writing to stdout is created.
func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) {
		c.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer. When set, every service
// operation runs inside a span.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *serviceConfig) {
		c.tracer = tracer
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider the service
// registers its instruments with. Without it no metrics are recorded.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *serviceConfig) {
		c.meterProvider = mp
	}
}

// WithEmbedder sets the embedder the vector tier uses for items and
// query text. Defaults to the deterministic hash embedder at the
// configured dimension.
func WithEmbedder(e vector.Embedder) Option {
	return func(c *serviceConfig) {
		c.embedder = e
	}
}

// WithLease sets the writer-lease manager. Lifecycle sweeps for a
// persona then run only while this instance holds the persona's lease.
// Without it the service runs in single-instance mode.
func WithLease(m *lease.Manager) Option {
	return func(c *serviceConfig) {
		c.leases = m
	}
}

// WithLimiter replaces the rate limiter built from the configuration.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *serviceConfig) {
		c.limiter = l
	}
}

// WithBackends replaces the storage drivers built from the
// configuration. Any tier may be nil; the router routes around it.
// Intended for tests and embedders with their own storage.
func WithBackends(fast, vec, durable memory.Backend) Option {
	return func(c *serviceConfig) {
		c.fast = fast
		c.vec = vec
		c.durable = durable
		c.backendsSet = true
	}
}
