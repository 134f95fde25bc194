package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCollector(t *testing.T) {
	c := NewInMemoryCollector()

	c.CounterInc(RunsTotal.Name, "status", "clean")
	c.CounterAdd(RunsTotal.Name, 2, "status", "clean")
	c.CounterInc(RunsTotal.Name, "status", "failed")
	assert.Equal(t, 3.0, c.GetCounter(RunsTotal.Name, "status", "clean"))
	assert.Equal(t, 1.0, c.GetCounter(RunsTotal.Name, "status", "failed"))

	c.GaugeSet(DirectMatches.Name, 4)
	c.GaugeSet(DirectMatches.Name, 2)
	assert.Equal(t, 2.0, c.GetGauge(DirectMatches.Name))

	c.HistogramObserve(RunDuration.Name, 0.5)
	c.HistogramObserve(RunDuration.Name, 1.5)
	assert.Equal(t, []float64{0.5, 1.5}, c.GetHistogram(RunDuration.Name))
}

func TestTimer(t *testing.T) {
	c := NewInMemoryCollector()
	timer := NewTimer(c, RunDuration.Name)
	time.Sleep(5 * time.Millisecond)
	d := timer.ObserveDuration()

	obs := c.GetHistogram(RunDuration.Name)
	require.Len(t, obs, 1)
	assert.GreaterOrEqual(t, d, 5*time.Millisecond)
	assert.InDelta(t, d.Seconds(), obs[0], 1e-9)
}

func TestOrNop(t *testing.T) {
	assert.IsType(t, &NopCollector{}, OrNop(nil))
	c := NewInMemoryCollector()
	assert.Same(t, c, OrNop(c))
}

func TestPrometheusCollector(t *testing.T) {
	c := NewPrometheusCollector()

	c.CounterInc(RunsTotal.Name, "status", "matched")
	c.CounterAdd(NodesVisitedTotal.Name, 42, "strategy", "nested-tree")
	c.GaugeSet(LockfileMatches.Name, 3)
	c.HistogramObserve(RunDuration.Name, 0.2)

	// unregistered names are ignored
	c.CounterInc("npm_audit_unknown_total")

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	got := make(map[string]int)
	for _, mf := range families {
		got[mf.GetName()] = len(mf.GetMetric())
	}
	assert.Equal(t, 1, got[RunsTotal.Name])
	assert.Equal(t, 1, got[NodesVisitedTotal.Name])
	assert.Equal(t, 1, got[LockfileMatches.Name])
	assert.Equal(t, 1, got[RunDuration.Name])
	assert.NotContains(t, got, "npm_audit_unknown_total")

	assert.NoError(t, c.Register(RunsTotal), "re-registering is a no-op")
	assert.Error(t, c.Register(MetricDefinition{Name: "x", Type: "summary"}))
}

func TestPrometheusCollector_WriteTextfile(t *testing.T) {
	c := NewPrometheusCollector()
	c.CounterInc(RunsTotal.Name, "status", "clean")
	c.GaugeSet(DirectMatches.Name, 1)

	path := filepath.Join(t.TempDir(), "npm_audit.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `npm_audit_runs_total{status="clean"} 1`)
	assert.Contains(t, string(data), "npm_audit_direct_matches 1")
	assert.Contains(t, string(data), "# HELP npm_audit_direct_matches")
}
