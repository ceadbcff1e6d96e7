package mnemo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/pantheon-ai/mnemo/memory"
)

// collect flushes the manual reader and indexes the scope metrics by
// instrument name.
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	byName := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			byName[m.Name] = m
		}
	}
	return byName
}

func counterValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 counter", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestServiceMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	m, err := newServiceMetrics(provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.recordRemember(ctx, memory.PersonaAthena, memory.KindEpisodic)
	m.recordRemember(ctx, memory.PersonaAthena, memory.KindSemantic)
	m.recordRecall(ctx, memory.PersonaArtemis, 3*time.Millisecond, 7)
	m.recordDenied(ctx, memory.PersonaBellona)
	m.recordConsolidated(memory.PersonaAthena, 4)
	m.recordPruned(memory.PersonaSeshat, 2)

	// Zero sweep counts are not recorded at all.
	m.recordConsolidated(memory.PersonaAthena, 0)
	m.recordPruned(memory.PersonaSeshat, 0)

	byName := collect(t, reader)

	assert.EqualValues(t, 2, counterValue(t, byName["memory.remember.count"]))
	assert.EqualValues(t, 7, counterValue(t, byName["memory.recall.results"]))
	assert.EqualValues(t, 1, counterValue(t, byName["memory.ratelimit.denied"]))
	assert.EqualValues(t, 4, counterValue(t, byName["memory.lifecycle.consolidated"]))
	assert.EqualValues(t, 2, counterValue(t, byName["memory.lifecycle.pruned"]))

	hist, ok := byName["memory.recall.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.EqualValues(t, 1, hist.DataPoints[0].Count)
	assert.InDelta(t, 3.0, hist.DataPoints[0].Sum, 0.5)
}

func TestServiceMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *serviceMetrics
	ctx := context.Background()

	// Every recorder must be a no-op on a nil receiver.
	m.recordRemember(ctx, memory.PersonaAthena, memory.KindWorking)
	m.recordRecall(ctx, memory.PersonaAthena, time.Millisecond, 1)
	m.recordDenied(ctx, memory.PersonaAthena)
	m.recordConsolidated(memory.PersonaAthena, 3)
	m.recordPruned(memory.PersonaAthena, 3)
}
