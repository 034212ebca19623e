// Package orchestrator wires the sidecar supervisor into a running host:
// preflight checks, the metrics and control server, autostart with a
// health probe, the optional terminal panel, and reclaiming the sidecar
// on shutdown.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/sidecar-supervisor/internal/appdir"
	"github.com/randomizedcoder/sidecar-supervisor/internal/config"
	"github.com/randomizedcoder/sidecar-supervisor/internal/control"
	"github.com/randomizedcoder/sidecar-supervisor/internal/health"
	"github.com/randomizedcoder/sidecar-supervisor/internal/logging"
	"github.com/randomizedcoder/sidecar-supervisor/internal/metrics"
	"github.com/randomizedcoder/sidecar-supervisor/internal/preflight"
	"github.com/randomizedcoder/sidecar-supervisor/internal/process"
	"github.com/randomizedcoder/sidecar-supervisor/internal/supervisor"
	"github.com/randomizedcoder/sidecar-supervisor/internal/tui"
)

// shutdownTimeout bounds the server shutdown.
const shutdownTimeout = 10 * time.Second

// Orchestrator coordinates all components of the host.
type Orchestrator struct {
	config  *config.Config
	logger  *slog.Logger
	stdout  io.Writer
	version string

	resolver   appdir.Resolver
	runner     *process.SidecarRunner
	output     *logging.OutputHandler
	supervisor *supervisor.Supervisor
	metrics    *metrics.Collector
	server     *metrics.Server
	prober     *health.Prober

	started   chan struct{}
	startTime time.Time
}

// Options holds optional dependencies. Zero values select the defaults.
type Options struct {
	// Registry receives the collector; the default registry when nil.
	Registry *prometheus.Registry

	// Stdout receives the preflight report and exit summary.
	Stdout io.Writer

	Version string
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts Options) *Orchestrator {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if opts.Registry != nil {
		registerer = opts.Registry
		gatherer = opts.Registry
	}

	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		SidecarName: sidecarName(cfg),
		Port:        cfg.Port,
		Version:     opts.Version,
	}, registerer)

	o := &Orchestrator{
		config:   cfg,
		logger:   logger,
		stdout:   stdout,
		version:  opts.Version,
		resolver: appdir.NewPlatform(cfg.Identifier, cfg.DataDir),
		runner: process.NewSidecarRunner(&process.SidecarConfig{
			Name: cfg.SidecarName,
			Path: cfg.SidecarPath,
			Args: cfg.SidecarArgs,
		}),
		output:  logging.NewOutputHandler(logger, logging.DefaultBufferedLines, cfg.Verbose),
		metrics: collector,
		prober: health.NewProber(health.Config{
			Port:     cfg.Port,
			Path:     cfg.HealthPath,
			Interval: cfg.HealthInterval,
			Attempts: cfg.HealthAttempts,
			Logger:   logger,
		}),
		started: make(chan struct{}),
	}

	o.supervisor = supervisor.New(supervisor.Config{
		Resolver:    o.resolver,
		Env:         EnvSpec(cfg),
		Builder:     o.runner,
		Logger:      logger,
		Output:      o.output,
		ReadyMarker: cfg.ReadyMarker,
		BufferSize:  cfg.OutputBufferSize,
		ReclaimWait: cfg.ReclaimWait,
		Callbacks: supervisor.Callbacks{
			OnStart:  o.onStart,
			OnStop:   o.onStop,
			OnSpawn:  o.onSpawn,
			OnReady:  o.onReady,
			OnExit:   o.onExit,
			OnOutput: collector.RecordLines,
		},
	})

	o.server = metrics.NewServer(cfg.ControlAddr, logger,
		metrics.WithGatherer(gatherer),
		metrics.WithReadiness(o.supervisor.Ready),
	)
	control.NewHandler(o.supervisor, logger).Register(o.server)

	return o
}

// EnvSpec returns the child environment contract described by cfg.
func EnvSpec(cfg *config.Config) process.EnvSpec {
	return process.EnvSpec{
		ModeKey:    cfg.ModeEnv,
		ModeValue:  cfg.ModeValue,
		DataDirKey: cfg.DataDirEnv,
		PortKey:    cfg.PortEnv,
		Port:       cfg.Port,
	}
}

// Run starts the host and blocks until ctx ends, SIGINT/SIGTERM arrives,
// or the terminal panel quits. The sidecar is reclaimed before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()

	// Run preflight checks
	if !o.config.SkipPreflight {
		result := preflight.RunAll(preflight.Options{
			Sidecar:  o.runner,
			Resolver: o.resolver,
			Port:     o.config.Port,
		})
		preflight.PrintResults(o.stdout, result)
		if !result.Passed {
			return fmt.Errorf("preflight checks failed (use -skip-preflight to override)")
		}
	}

	// Start metrics and control server
	if err := o.server.Start(); err != nil {
		o.supervisor.Close()
		return fmt.Errorf("failed to start control server: %w", err)
	}
	close(o.started)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if o.config.Autostart {
		g.Go(func() error {
			o.autostart(gctx)
			return nil
		})
	}

	if o.config.TUIEnabled {
		g.Go(func() error {
			defer cancel()
			return o.runTUI(gctx)
		})
	}

	<-gctx.Done()
	o.logger.Info("host_stopping", "reason", context.Cause(gctx).Error())

	err := g.Wait()

	if closeErr := o.supervisor.Close(); closeErr != nil {
		o.logger.Warn("sidecar_reclaim_error", "error", closeErr)
	}
	o.supervisor.Wait()
	o.metrics.SetRunning(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if shutdownErr := o.server.Shutdown(shutdownCtx); shutdownErr != nil {
		o.logger.Warn("metrics_server_shutdown_error", "error", shutdownErr)
	}

	o.printExitSummary()
	return err
}

// autostart starts the sidecar and waits for it to answer its health
// endpoint. Failures are logged; the host keeps running so the operator
// can retry through the control surface.
func (o *Orchestrator) autostart(ctx context.Context) {
	result, err := o.supervisor.Start()
	if err != nil {
		return
	}
	if result != supervisor.Started {
		return
	}
	if _, err := o.prober.Wait(ctx); err != nil && ctx.Err() == nil {
		o.logger.Warn("sidecar_health_failed", "url", o.prober.URL(), "error", err)
	}
}

// runTUI runs the control panel until it quits or ctx ends.
func (o *Orchestrator) runTUI(ctx context.Context) error {
	model := tui.New(tui.Config{
		SidecarName: sidecarName(o.config),
		Port:        o.config.Port,
		ControlAddr: o.server.Addr(),
		Controller:  o.supervisor,
		Output:      o.output,
		Summary:     o.metrics,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	events, unsubscribe := o.supervisor.Subscribe()
	defer unsubscribe()
	go tui.ForwardEvents(p, events)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// =============================================================================
// Callback handlers
// =============================================================================

func (o *Orchestrator) onStart(result supervisor.StartResult, err error) {
	if err != nil {
		o.metrics.StartFailed(supervisor.KindOf(err).String())
		return
	}
	o.metrics.StartCalled(result.String())
	o.metrics.SetRunning(true)
}

func (o *Orchestrator) onStop(result supervisor.StopResult, err error) {
	switch {
	case err == nil:
		o.metrics.StopCalled(result.String())
		if result == supervisor.Stopped {
			o.metrics.SignalSent()
		}
		o.metrics.SetRunning(false)
	case supervisor.KindOf(err) == supervisor.KindSignal:
		// The handle is released even though the signal failed.
		o.metrics.StopCalled("error")
		o.metrics.SetRunning(false)
	default:
		o.metrics.StopCalled("error")
	}
}

func (o *Orchestrator) onSpawn(runID string, pid int) {
	o.metrics.ChildSpawned()
}

func (o *Orchestrator) onReady(runID string, latency time.Duration) {
	o.metrics.RecordReady(latency)
}

func (o *Orchestrator) onExit(runID string, exitCode int, uptime time.Duration) {
	o.metrics.RecordExit(exitCode, uptime)
}

// =============================================================================
// Exit summary
// =============================================================================

// printExitSummary prints a summary of the host run.
func (o *Orchestrator) printExitSummary() {
	summary := o.metrics.GenerateSummary()
	w := o.stdout

	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintln(w, "                   sidecar-supervisor Exit Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "Host Uptime:            %s\n", formatDuration(time.Since(o.startTime)))
	fmt.Fprintf(w, "Sidecar Spawns:         %d\n", summary.TotalStarts)
	fmt.Fprintf(w, "Observed Exits:         %d\n", summary.TotalExits)
	if summary.TotalExits > 0 {
		fmt.Fprintf(w, "Last Exit Code:         %d %s\n", summary.LastExitCode, exitCodeLabel(summary.LastExitCode))
	}
	if summary.ReadySamples > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Time to Ready:")
		fmt.Fprintf(w, "  P50 (median):         %s\n", summary.ReadyP50.Round(time.Millisecond))
		fmt.Fprintf(w, "  P95:                  %s\n", summary.ReadyP95.Round(time.Millisecond))
		fmt.Fprintf(w, "  P99:                  %s\n", summary.ReadyP99.Round(time.Millisecond))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Control endpoint was: http://%s/sidecar/status\n", o.server.Addr())
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

func sidecarName(cfg *config.Config) string {
	if cfg.SidecarName != "" {
		return cfg.SidecarName
	}
	return cfg.SidecarPath
}

// =============================================================================
// Accessors
// =============================================================================

// Started is closed once the control server is listening.
func (o *Orchestrator) Started() <-chan struct{} {
	return o.started
}

// Addr returns the control server address.
func (o *Orchestrator) Addr() string {
	return o.server.Addr()
}

// Supervisor returns the sidecar supervisor.
func (o *Orchestrator) Supervisor() *supervisor.Supervisor {
	return o.supervisor
}

// Metrics returns the metrics collector for external access.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Runner returns the sidecar runner for external access.
func (o *Orchestrator) Runner() *process.SidecarRunner {
	return o.runner
}

// Resolver returns the data directory resolver.
func (o *Orchestrator) Resolver() appdir.Resolver {
	return o.resolver
}
