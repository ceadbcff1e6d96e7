package mnemo

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pantheon-ai/mnemo/memory"
)

// meterName scopes the service's instruments.
const meterName = "github.com/pantheon-ai/mnemo"

// serviceMetrics holds the OTel instruments the service records into. A
// nil receiver disables every method, so callers never branch on
// whether metrics are configured.
type serviceMetrics struct {
	rememberCount   metric.Int64Counter
	recallDuration  metric.Float64Histogram
	recallResults   metric.Int64Counter
	ratelimitDenied metric.Int64Counter
	consolidated    metric.Int64Counter
	pruned          metric.Int64Counter
}

// newServiceMetrics registers the instruments with the provider.
func newServiceMetrics(mp metric.MeterProvider) (*serviceMetrics, error) {
	meter := mp.Meter(meterName)
	m := &serviceMetrics{}
	var err error

	if m.rememberCount, err = meter.Int64Counter("memory.remember.count",
		metric.WithDescription("Items stored through Remember")); err != nil {
		return nil, fmt.Errorf("failed to create remember counter: %w", err)
	}
	if m.recallDuration, err = meter.Float64Histogram("memory.recall.duration",
		metric.WithDescription("Recall latency"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("failed to create recall histogram: %w", err)
	}
	if m.recallResults, err = meter.Int64Counter("memory.recall.results",
		metric.WithDescription("Results returned by Recall")); err != nil {
		return nil, fmt.Errorf("failed to create recall results counter: %w", err)
	}
	if m.ratelimitDenied, err = meter.Int64Counter("memory.ratelimit.denied",
		metric.WithDescription("Requests denied by the rate limiter")); err != nil {
		return nil, fmt.Errorf("failed to create ratelimit counter: %w", err)
	}
	if m.consolidated, err = meter.Int64Counter("memory.lifecycle.consolidated",
		metric.WithDescription("Items promoted by consolidation sweeps")); err != nil {
		return nil, fmt.Errorf("failed to create consolidated counter: %w", err)
	}
	if m.pruned, err = meter.Int64Counter("memory.lifecycle.pruned",
		metric.WithDescription("Items destroyed by pruning sweeps")); err != nil {
		return nil, fmt.Errorf("failed to create pruned counter: %w", err)
	}

	return m, nil
}

func personaAttr(persona memory.Persona) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("persona", persona.String()))
}

func (m *serviceMetrics) recordRemember(ctx context.Context, persona memory.Persona, kind memory.Kind) {
	if m == nil {
		return
	}
	m.rememberCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("persona", persona.String()),
		attribute.String("kind", kind.String()),
	))
}

func (m *serviceMetrics) recordRecall(ctx context.Context, persona memory.Persona, elapsed time.Duration, results int) {
	if m == nil {
		return
	}
	m.recallDuration.Record(ctx, float64(elapsed.Microseconds())/1000.0, personaAttr(persona))
	m.recallResults.Add(ctx, int64(results), personaAttr(persona))
}

func (m *serviceMetrics) recordDenied(ctx context.Context, persona memory.Persona) {
	if m == nil {
		return
	}
	m.ratelimitDenied.Add(ctx, 1, personaAttr(persona))
}

func (m *serviceMetrics) recordConsolidated(persona memory.Persona, n int) {
	if m == nil || n == 0 {
		return
	}
	m.consolidated.Add(context.Background(), int64(n), personaAttr(persona))
}

func (m *serviceMetrics) recordPruned(persona memory.Persona, n int) {
	if m == nil || n == 0 {
		return
	}
	m.pruned.Add(context.Background(), int64(n), personaAttr(persona))
}
