package metric

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherNames(t *testing.T, registry *MetricsRegistry) map[string]bool {
	t.Helper()

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(metricFamilies))
	for _, mf := range metricFamilies {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	err := registry.RegisterCounter("engine", "test_counter", counter)
	require.NoError(t, err)

	counter.Inc()

	names := gatherNames(t, registry)
	assert.True(t, names["test_counter"], "counter should be registered in Prometheus registry")
}

func TestMetricsRegistry_RegisterGauge(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "A test gauge",
	})

	err := registry.RegisterGauge("engine", "test_gauge", gauge)
	require.NoError(t, err)

	gauge.Set(42.0)

	names := gatherNames(t, registry)
	assert.True(t, names["test_gauge"], "gauge should be registered in Prometheus registry")
}

func TestMetricsRegistry_PreventDuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	counter1 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_counter",
		Help: "First counter",
	})

	counter2 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_counter",
		Help: "First counter", // same help to avoid a Prometheus validation error
	})

	err := registry.RegisterCounter("owner1", "duplicate_counter", counter1)
	require.NoError(t, err)

	err = registry.RegisterCounter("owner2", "duplicate_counter", counter2)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "prometheus conflict")
}

func TestMetricsRegistry_UnregisterMetric(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unregister_counter",
		Help: "A counter to unregister",
	})

	err := registry.RegisterCounter("engine", "unregister_counter", counter)
	require.NoError(t, err)
	assert.True(t, gatherNames(t, registry)["unregister_counter"])

	success := registry.Unregister("engine", "unregister_counter")
	assert.True(t, success)
	assert.False(t, gatherNames(t, registry)["unregister_counter"])

	// A second unregister of the same key is a no-op
	assert.False(t, registry.Unregister("engine", "unregister_counter"))
}

func TestMetricsRegistry_ThreadSafety(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	numGoroutines := 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			counter := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_counter_%d", id),
				Help: "A concurrent counter",
			})

			err := registry.RegisterCounter("engine",
				fmt.Sprintf("concurrent_counter_%d", id), counter)
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()

	counterCount := 0
	for name := range gatherNames(t, registry) {
		if strings.HasPrefix(name, "concurrent_counter_") {
			counterCount++
		}
	}
	assert.Equal(t, numGoroutines, counterCount,
		"all concurrent counters should be registered")
}

func TestMetricsRegistry_CoreMetricsInitialization(t *testing.T) {
	registry := NewMetricsRegistry()

	// Vector metrics only appear in Gather() once they carry a value,
	// so record through the core metrics first.
	coreMetrics := registry.CoreMetrics()
	coreMetrics.RecordPulse(time.Millisecond)
	coreMetrics.RecordGeneration("msg1")
	coreMetrics.RecordGenerationError("msg1")
	coreMetrics.RecordRenderDuration("msg1", 100*time.Microsecond)
	coreMetrics.RecordDispatch("msg1", "stdout")
	coreMetrics.RecordDefinitionsLoaded(1)
	coreMetrics.RecordStoreStatus(true)

	expectedCoreMetrics := []string{
		"varmsg_scheduler_pulses_total",
		"varmsg_scheduler_pulse_duration_seconds",
		"varmsg_messages_generations_total",
		"varmsg_messages_generation_errors_total",
		"varmsg_messages_render_duration_seconds",
		"varmsg_sink_dispatches_total",
		"varmsg_registry_definitions_loaded",
		"varmsg_store_connected",
	}

	names := gatherNames(t, registry)
	for _, expectedMetric := range expectedCoreMetrics {
		assert.True(t, names[expectedMetric],
			"core metric %s should be initialized", expectedMetric)
	}
}

func TestCoreMetrics_RecordMethods(t *testing.T) {
	registry := NewMetricsRegistry()
	coreMetrics := registry.CoreMetrics()

	coreMetrics.RecordPulse(5 * time.Millisecond)
	coreMetrics.RecordGeneration("fast")
	coreMetrics.RecordGenerationError("fast")
	coreMetrics.RecordRenderDuration("fast", time.Millisecond)
	coreMetrics.RecordDispatch("fast", "mqueue")
	coreMetrics.RecordDefinitionsLoaded(3)
	coreMetrics.RecordStoreStatus(false)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.Greater(t, len(metricFamilies), 0, "should have recorded metrics")
}
