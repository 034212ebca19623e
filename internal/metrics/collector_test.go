package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

// =============================================================================
// Test Helpers
// =============================================================================

// newTestCollector creates a collector with an isolated registry.
func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	c := NewCollectorWithRegistry(CollectorConfig{
		SidecarName: "openprofia-server",
		Port:        3000,
		Version:     "test",
	}, registry)
	return c, registry
}

func findFamily(t *testing.T, registry *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// =============================================================================
// Tests
// =============================================================================

func TestNewCollector_Info(t *testing.T) {
	_, registry := newTestCollector(t)

	mf := findFamily(t, registry, "sidecar_info")
	if mf == nil {
		t.Fatal("sidecar_info not registered")
	}
	if len(mf.GetMetric()) != 1 {
		t.Fatalf("sidecar_info has %d series, want 1", len(mf.GetMetric()))
	}

	labels := map[string]string{}
	for _, lp := range mf.GetMetric()[0].GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	want := map[string]string{"version": "test", "sidecar": "openprofia-server", "port": "3000"}
	for k, v := range want {
		if labels[k] != v {
			t.Errorf("label %s = %q, want %q", k, labels[k], v)
		}
	}
}

func TestNewCollector_DefaultVersion(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollectorWithRegistry(CollectorConfig{SidecarName: "x", Port: 1}, registry)

	if got := testutil.ToFloat64(c.info.WithLabelValues("dev", "x", "1")); got != 1 {
		t.Errorf("sidecar_info{version=dev} = %v, want 1", got)
	}
}

func TestCollector_StartAndStopCalls(t *testing.T) {
	c, _ := newTestCollector(t)

	c.StartCalled("started")
	c.StartCalled("already_running")
	c.StartCalled("already_running")
	c.StartFailed("spawn")
	c.StopCalled("stopped")
	c.StopCalled("not_running")
	c.SignalSent()

	tests := []struct {
		name   string
		metric prometheus.Collector
		want   float64
	}{
		{"started", c.startsTotal.WithLabelValues("started"), 1},
		{"already_running", c.startsTotal.WithLabelValues("already_running"), 2},
		{"error", c.startsTotal.WithLabelValues("error"), 1},
		{"error kind", c.startErrors.WithLabelValues("spawn"), 1},
		{"stopped", c.stopsTotal.WithLabelValues("stopped"), 1},
		{"not_running", c.stopsTotal.WithLabelValues("not_running"), 1},
		{"signals", c.signalsTotal, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.metric); got != tt.want {
				t.Errorf("value = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollector_RunningAndAlive(t *testing.T) {
	c, _ := newTestCollector(t)

	c.SetRunning(true)
	c.ChildSpawned()
	if got := testutil.ToFloat64(c.running); got != 1 {
		t.Errorf("running = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.alive); got != 1 {
		t.Errorf("alive = %v, want 1", got)
	}

	// A crash is observed but the slot is still held.
	c.RecordExit(1, 2*time.Second)
	if got := testutil.ToFloat64(c.running); got != 1 {
		t.Errorf("running after exit = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.alive); got != 0 {
		t.Errorf("alive after exit = %v, want 0", got)
	}

	c.SetRunning(false)
	if got := testutil.ToFloat64(c.running); got != 0 {
		t.Errorf("running = %v, want 0", got)
	}
}

func TestCollector_RecordLines(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordLines("stdout", 10, 0)
	c.RecordLines("stdout", 5, 2)
	c.RecordLines("stderr", 0, 0)

	if got := testutil.ToFloat64(c.linesTotal.WithLabelValues("stdout")); got != 15 {
		t.Errorf("stdout lines = %v, want 15", got)
	}
	if got := testutil.ToFloat64(c.droppedTotal.WithLabelValues("stdout")); got != 2 {
		t.Errorf("stdout dropped = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(c.linesTotal); got != 1 {
		t.Errorf("line series = %d, want 1 (zero adds create no series)", got)
	}
}

func TestCollector_RecordExitCategories(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		category string
	}{
		{"clean", 0, "success"},
		{"error", 1, "error"},
		{"killed", 137, "signal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCollector(t)
			c.RecordExit(tt.code, time.Second)

			if got := testutil.ToFloat64(c.exitsTotal.WithLabelValues(tt.category)); got != 1 {
				t.Errorf("exits{%s} = %v, want 1", tt.category, got)
			}
			s := c.GenerateSummary()
			if s.TotalExits != 1 || s.LastExitCode != tt.code {
				t.Errorf("summary exits = %d code = %d", s.TotalExits, s.LastExitCode)
			}
		})
	}
}

func TestCollector_ReadyLatency(t *testing.T) {
	c, registry := newTestCollector(t)

	s := c.GenerateSummary()
	if s.ReadySamples != 0 || s.ReadyP50 != 0 {
		t.Errorf("empty summary = %+v", s)
	}

	for i := 1; i <= 100; i++ {
		c.RecordReady(time.Duration(i) * 10 * time.Millisecond)
	}

	s = c.GenerateSummary()
	if s.ReadySamples != 100 {
		t.Errorf("ReadySamples = %d, want 100", s.ReadySamples)
	}
	if s.LastReadyTime != time.Second {
		t.Errorf("LastReadyTime = %v, want 1s", s.LastReadyTime)
	}
	if s.ReadyP50 < 400*time.Millisecond || s.ReadyP50 > 600*time.Millisecond {
		t.Errorf("ReadyP50 = %v, want ~500ms", s.ReadyP50)
	}
	if s.ReadyP99 < s.ReadyP95 || s.ReadyP95 < s.ReadyP50 {
		t.Errorf("percentiles out of order: p50=%v p95=%v p99=%v", s.ReadyP50, s.ReadyP95, s.ReadyP99)
	}

	if got := testutil.ToFloat64(c.readyTotal); got != 100 {
		t.Errorf("ready_total = %v, want 100", got)
	}
	mf := findFamily(t, registry, "sidecar_ready_latency_seconds")
	if mf == nil {
		t.Fatal("latency histogram not gathered")
	}
	if got := mf.GetMetric()[0].GetHistogram().GetSampleCount(); got != 100 {
		t.Errorf("histogram sample count = %d, want 100", got)
	}
}

func TestCollector_SpawnCount(t *testing.T) {
	c, _ := newTestCollector(t)
	c.ChildSpawned()
	c.ChildSpawned()

	if got := c.GenerateSummary().TotalStarts; got != 2 {
		t.Errorf("TotalStarts = %d, want 2", got)
	}
}
