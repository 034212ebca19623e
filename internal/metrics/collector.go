// Package metrics provides Prometheus metrics for sidecar-supervisor.
//
// Metrics describe the supervisor's control operations (starts, stops,
// failures by kind) and what the background listener observed about the
// child (output volume, readiness, exits).
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns the sidecar metrics and a few in-process aggregates the
// control panel shows.
type Collector struct {
	info          *prometheus.GaugeVec
	running       prometheus.Gauge
	alive         prometheus.Gauge
	startsTotal   *prometheus.CounterVec
	startErrors   *prometheus.CounterVec
	stopsTotal    *prometheus.CounterVec
	signalsTotal  prometheus.Counter
	linesTotal    *prometheus.CounterVec
	droppedTotal  *prometheus.CounterVec
	readyTotal    prometheus.Counter
	readyLatency  prometheus.Histogram
	exitsTotal    *prometheus.CounterVec
	uptimeSeconds prometheus.Histogram

	mu            sync.Mutex
	readyDigest   *tdigest.TDigest
	totalStarts   int64
	totalExits    int64
	lastExitCode  int
	lastReadyTime time.Duration
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	SidecarName string
	Port        int
	Version     string
}

// NewCollector creates a collector registered with the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sidecar_info",
				Help: "Information about the supervised sidecar (value always 1)",
			},
			[]string{"version", "sidecar", "port"},
		),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sidecar_running",
			Help: "Whether the supervisor holds a sidecar handle (status)",
		}),
		alive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sidecar_process_alive",
			Help: "Whether the listener has not yet observed the current child terminate",
		}),
		startsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sidecar_start_calls_total",
				Help: "Start operations by result (started, already_running, error)",
			},
			[]string{"result"},
		),
		startErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sidecar_start_errors_total",
				Help: "Failed start operations by error kind",
			},
			[]string{"kind"},
		),
		stopsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sidecar_stop_calls_total",
				Help: "Stop operations by result (stopped, not_running, error)",
			},
			[]string{"result"},
		),
		signalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sidecar_termination_signals_total",
			Help: "Termination signals sent to sidecar processes",
		}),
		linesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sidecar_output_lines_total",
				Help: "Lines read from the sidecar by stream",
			},
			[]string{"stream"},
		),
		droppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sidecar_output_lines_dropped_total",
				Help: "Lines dropped because the listener fell behind, by stream",
			},
			[]string{"stream"},
		),
		readyTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sidecar_ready_total",
			Help: "Times the readiness marker was observed",
		}),
		readyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sidecar_ready_latency_seconds",
			Help:    "Time from spawn to the readiness marker",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		exitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sidecar_exits_total",
				Help: "Observed sidecar terminations by category (success, error, signal)",
			},
			[]string{"category"},
		),
		uptimeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sidecar_uptime_seconds",
			Help:    "Sidecar lifetime from spawn to observed termination",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		readyDigest: tdigest.NewWithCompression(100),
	}

	registry.MustRegister(
		c.info,
		c.running,
		c.alive,
		c.startsTotal,
		c.startErrors,
		c.stopsTotal,
		c.signalsTotal,
		c.linesTotal,
		c.droppedTotal,
		c.readyTotal,
		c.readyLatency,
		c.exitsTotal,
		c.uptimeSeconds,
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	c.info.WithLabelValues(version, cfg.SidecarName, strconv.Itoa(cfg.Port)).Set(1)

	return c
}

// =============================================================================
// Control Operations
// =============================================================================

// StartCalled records the outcome of a start operation.
func (c *Collector) StartCalled(result string) {
	c.startsTotal.WithLabelValues(result).Inc()
}

// StartFailed records a failed start by error kind.
func (c *Collector) StartFailed(kind string) {
	c.startsTotal.WithLabelValues("error").Inc()
	c.startErrors.WithLabelValues(kind).Inc()
}

// StopCalled records the outcome of a stop operation.
func (c *Collector) StopCalled(result string) {
	c.stopsTotal.WithLabelValues(result).Inc()
}

// SignalSent records a termination signal.
func (c *Collector) SignalSent() {
	c.signalsTotal.Inc()
}

// SetRunning mirrors the supervisor's status.
func (c *Collector) SetRunning(running bool) {
	c.running.Set(boolValue(running))
}

// =============================================================================
// Listener Observations
// =============================================================================

// ChildSpawned records a successful spawn.
func (c *Collector) ChildSpawned() {
	c.alive.Set(1)

	c.mu.Lock()
	c.totalStarts++
	c.mu.Unlock()
}

// RecordLines adds read and dropped line counts for a stream.
func (c *Collector) RecordLines(stream string, read, dropped int64) {
	if read > 0 {
		c.linesTotal.WithLabelValues(stream).Add(float64(read))
	}
	if dropped > 0 {
		c.droppedTotal.WithLabelValues(stream).Add(float64(dropped))
	}
}

// RecordReady records the readiness marker and the time it took.
func (c *Collector) RecordReady(latency time.Duration) {
	c.readyTotal.Inc()
	c.readyLatency.Observe(latency.Seconds())

	c.mu.Lock()
	c.readyDigest.Add(latency.Seconds(), 1)
	c.lastReadyTime = latency
	c.mu.Unlock()
}

// RecordExit records an observed termination.
func (c *Collector) RecordExit(exitCode int, uptime time.Duration) {
	c.alive.Set(0)

	category := "error"
	if exitCode == 0 {
		category = "success"
	} else if exitCode > 128 {
		category = "signal"
	}
	c.exitsTotal.WithLabelValues(category).Inc()
	c.uptimeSeconds.Observe(uptime.Seconds())

	c.mu.Lock()
	c.totalExits++
	c.lastExitCode = exitCode
	c.mu.Unlock()
}

// =============================================================================
// Summary
// =============================================================================

// Summary holds in-process aggregates for display.
type Summary struct {
	TotalStarts   int64
	TotalExits    int64
	LastExitCode  int
	LastReadyTime time.Duration
	ReadyP50      time.Duration
	ReadyP95      time.Duration
	ReadyP99      time.Duration
	ReadySamples  int
}

// GenerateSummary returns the current aggregates.
func (c *Collector) GenerateSummary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		TotalStarts:   c.totalStarts,
		TotalExits:    c.totalExits,
		LastExitCode:  c.lastExitCode,
		LastReadyTime: c.lastReadyTime,
		ReadySamples:  int(c.readyDigest.Count()),
	}

	if s.ReadySamples > 0 {
		s.ReadyP50 = seconds(c.readyDigest.Quantile(0.50))
		s.ReadyP95 = seconds(c.readyDigest.Quantile(0.95))
		s.ReadyP99 = seconds(c.readyDigest.Quantile(0.99))
	}

	return s
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
