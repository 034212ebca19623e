// Package supervisor owns the single sidecar process of a host
// application: it starts it at most once, stops it on request, reports
// whether it holds it, and listens to its output in the background.
package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/sidecar-supervisor/internal/appdir"
	"github.com/randomizedcoder/sidecar-supervisor/internal/logging"
	"github.com/randomizedcoder/sidecar-supervisor/internal/process"
)

// DefaultReadyMarker is the line fragment the bundled server prints once
// it accepts connections.
const DefaultReadyMarker = "Server listening on port"

// DefaultReclaimWait bounds how long Close waits for a killed child to be
// reaped.
const DefaultReclaimWait = 5 * time.Second

// subscriberBuffer is the per-subscriber event queue; a full queue drops.
const subscriberBuffer = 256

// Callbacks contains optional callback functions for supervisor events.
// They run synchronously and must not call back into the Supervisor.
type Callbacks struct {
	// OnStart is called after every Start, with the error if it failed.
	OnStart func(result StartResult, err error)

	// OnStop is called after every Stop, with the error if it failed.
	OnStop func(result StopResult, err error)

	// OnSpawn is called when a child process has started.
	OnSpawn func(runID string, pid int)

	// OnReady is called when the readiness marker appears.
	OnReady func(runID string, latency time.Duration)

	// OnExit is called when the listener observes the child exit.
	OnExit func(runID string, exitCode int, uptime time.Duration)

	// OnOutput is called once per stream when a child's output ends.
	OnOutput func(stream string, read, dropped int64)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	// Resolver finds the per-instance data directory.
	Resolver appdir.Resolver

	// Env describes the environment handed to the child.
	Env process.EnvSpec

	// Builder creates the child command.
	Builder process.Builder

	Logger    *slog.Logger
	Output    *logging.OutputHandler
	Callbacks Callbacks

	// ReadyMarker is searched for on stdout. Defaults to DefaultReadyMarker.
	ReadyMarker string

	// BufferSize is the per-stream line buffer. Defaults to 1000.
	BufferSize int

	// ReclaimWait bounds the wait for reaping in Close.
	ReclaimWait time.Duration
}

// Supervisor manages the lifecycle of the sidecar process.
//
// All control operations serialize on one mutex guarding the slot. The
// lock is never held while waiting on the child.
type Supervisor struct {
	resolver    appdir.Resolver
	env         process.EnvSpec
	builder     process.Builder
	logger      *slog.Logger
	output      *logging.OutputHandler
	callbacks   Callbacks
	readyMarker string
	bufferSize  int
	reclaimWait time.Duration

	mu       sync.Mutex
	child    *Child
	closed   bool
	poisoned bool

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
	subDone bool

	listeners sync.WaitGroup
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	output := cfg.Output
	if output == nil {
		output = logging.NewOutputHandler(logger, logging.DefaultBufferedLines, false)
	}

	marker := cfg.ReadyMarker
	if marker == "" {
		marker = DefaultReadyMarker
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	reclaimWait := cfg.ReclaimWait
	if reclaimWait <= 0 {
		reclaimWait = DefaultReclaimWait
	}

	return &Supervisor{
		resolver:    cfg.Resolver,
		env:         cfg.Env,
		builder:     cfg.Builder,
		logger:      logger,
		output:      output,
		callbacks:   cfg.Callbacks,
		readyMarker: marker,
		bufferSize:  bufferSize,
		reclaimWait: reclaimWait,
		subs:        make(map[int]chan Event),
	}
}

// withSlot runs fn holding the lock. A closed or poisoned supervisor
// fails with KindUnavailable; a panic inside fn poisons it.
func (s *Supervisor) withSlot(fn func() error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return newError(KindUnavailable, errClosed)
	}
	if s.poisoned {
		return newError(KindUnavailable, errPoisoned)
	}

	defer func() {
		if r := recover(); r != nil {
			s.poisoned = true
			s.logger.Error("sidecar_state_poisoned", "panic", fmt.Sprint(r))
			err = newError(KindUnavailable, fmt.Errorf("%w: %v", errPoisoned, r))
		}
	}()

	return fn()
}

// Start launches the sidecar unless one is already held.
//
// On success the child is stored in the slot and a listener goroutine
// consumes its events. Any failure leaves the slot empty.
func (s *Supervisor) Start() (StartResult, error) {
	var result StartResult
	err := s.withSlot(func() error {
		if s.child != nil {
			result = AlreadyRunning
			s.logger.Debug("sidecar_already_running", "pid", s.child.pid, "run_id", s.child.runID)
			return nil
		}

		child, err := s.spawnLocked()
		if err != nil {
			return err
		}

		s.child = child
		s.listeners.Add(1)
		go s.listen(child)

		result = Started
		return nil
	})

	if err != nil {
		s.logger.Error("sidecar_start_failed", "kind", KindOf(err).String(), "error", err)
		result = 0
	}
	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(result, err)
	}
	return result, err
}

// spawnLocked resolves the data directory, builds the command and starts
// it. Must be called with s.mu held.
func (s *Supervisor) spawnLocked() (*Child, error) {
	if s.resolver == nil {
		return nil, newError(KindDataDirResolve, errors.New("no data dir resolver configured"))
	}
	dir, err := s.resolver.Resolve()
	if err != nil {
		return nil, newError(KindDataDirResolve, err)
	}
	if err := appdir.Ensure(dir); err != nil {
		return nil, newError(KindDataDirCreate, err)
	}
	if err := appdir.Representable(dir); err != nil {
		return nil, newError(KindDataDirPath, err)
	}

	env := s.env.Build(dir)

	if s.builder == nil {
		return nil, newError(KindCommand, errors.New("no command builder configured"))
	}
	cmd, err := s.builder.BuildCommand(env)
	if err != nil {
		return nil, newError(KindCommand, err)
	}

	runID := uuid.NewString()
	child, err := spawn(cmd, spawnConfig{
		runID:       runID,
		readyMarker: s.readyMarker,
		bufferSize:  s.bufferSize,
	})
	if err != nil {
		return nil, newError(KindSpawn, err)
	}

	s.logger.Info("sidecar_started",
		"run_id", runID,
		"pid", child.pid,
		"sidecar", s.builder.Name(),
		"data_dir", dir,
	)

	if s.callbacks.OnSpawn != nil {
		s.callbacks.OnSpawn(runID, child.pid)
	}

	return child, nil
}

// Stop takes the child out of the slot and sends it the termination
// signal. It does not wait for the child to exit. If the signal fails
// the handle is still released and no retry happens.
func (s *Supervisor) Stop() (StopResult, error) {
	var result StopResult
	err := s.withSlot(func() error {
		child := s.child
		s.child = nil

		if child == nil {
			result = NotRunning
			s.logger.Debug("sidecar_not_running")
			return nil
		}

		if err := child.terminate(); err != nil {
			return newError(KindSignal, err)
		}

		result = Stopped
		s.logger.Info("sidecar_stopped", "run_id", child.runID, "pid", child.pid)
		return nil
	})

	if err != nil {
		s.logger.Error("sidecar_stop_failed", "kind", KindOf(err).String(), "error", err)
		result = 0
	}
	if s.callbacks.OnStop != nil {
		s.callbacks.OnStop(result, err)
	}
	return result, err
}

// Status reports whether the supervisor holds a child. This is the
// supervisor's own view; a child that crashed stays held until Stop.
func (s *Supervisor) Status() (bool, error) {
	var running bool
	err := s.withSlot(func() error {
		running = s.child != nil
		return nil
	})
	return running, err
}

// PID returns the pid of the held child, or 0.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.child == nil {
		return 0
	}
	return s.child.pid
}

// Ready reports whether the held child has printed the readiness marker.
func (s *Supervisor) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.child != nil && s.child.readiness.IsReady()
}

// Snapshot describes the held child for display.
type Snapshot struct {
	Running bool
	PID     int
	RunID   string
	Ready   bool
	Uptime  time.Duration
}

// Snapshot returns the current view of the slot. A closed supervisor
// reports an empty snapshot.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.child == nil {
		return Snapshot{}
	}
	return Snapshot{
		Running: true,
		PID:     s.child.pid,
		RunID:   s.child.runID,
		Ready:   s.child.readiness.IsReady(),
		Uptime:  time.Since(s.child.started),
	}
}

// Close shuts the supervisor down: later control calls fail with
// KindUnavailable and a held child is killed and reaped, waiting at most
// the configured reclaim time. Safe to call more than once.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	child := s.child
	s.child = nil
	s.mu.Unlock()

	var err error
	if child != nil {
		s.logger.Info("sidecar_reclaiming", "run_id", child.runID, "pid", child.pid)
		if termErr := child.terminate(); termErr != nil {
			err = newError(KindSignal, termErr)
			s.logger.Error("sidecar_reclaim_failed", "pid", child.pid, "error", termErr)
		}
		if !child.reap(s.reclaimWait) {
			s.logger.Warn("sidecar_reclaim_timeout",
				"pid", child.pid,
				"timeout", s.reclaimWait.String(),
			)
		}
	}

	s.closeSubscribers()
	return err
}

// Subscribe returns a channel receiving every event the listener handles,
// and a function that cancels the subscription. Delivery is lossy: a full
// channel drops events rather than stall the listener.
func (s *Supervisor) Subscribe() (<-chan Event, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if s.subDone {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

func (s *Supervisor) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Supervisor) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.subDone = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// Wait blocks until every listener has seen its child's event stream end.
// Used by tests and shutdown paths after Stop or Close.
func (s *Supervisor) Wait() {
	s.listeners.Wait()
}
