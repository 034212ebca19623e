package supervisor

import (
	"context"
	"log/slog"

	"github.com/randomizedcoder/sidecar-supervisor/internal/logging"
	"github.com/randomizedcoder/sidecar-supervisor/internal/parser"
)

// listen consumes one child's events until its channel closes. Nothing
// here touches the slot: a child that exits on its own stays held until
// Stop or Close.
func (s *Supervisor) listen(c *Child) {
	defer s.listeners.Done()

	for ev := range c.events {
		switch ev.Kind {
		case EventStdout:
			s.output.HandleLine(logging.StreamStdout, ev.Line)

		case EventStderr:
			s.output.HandleLine(logging.StreamStderr, ev.Line)

		case EventReady:
			latency := ev.Time.Sub(c.started)
			s.logger.Info("sidecar_ready",
				"run_id", ev.RunID,
				"pid", ev.PID,
				"latency", latency.String(),
			)
			if s.callbacks.OnReady != nil {
				s.callbacks.OnReady(ev.RunID, latency)
			}

		case EventError:
			s.logger.Warn("sidecar_error",
				"run_id", ev.RunID,
				"pid", ev.PID,
				"error", ev.Err,
			)

		case EventTerminated:
			uptime := ev.Time.Sub(c.started)
			s.logger.Info("sidecar_terminated",
				"run_id", ev.RunID,
				"pid", ev.PID,
				"exit_code", ev.ExitCode,
				"signal", ev.Signal,
				"uptime", uptime.String(),
			)
			s.logPipelineStats(c)
			if s.callbacks.OnExit != nil {
				s.callbacks.OnExit(ev.RunID, ev.ExitCode, uptime)
			}
		}

		s.publish(ev)
	}
}

// logPipelineStats logs and reports how much output was read and dropped.
func (s *Supervisor) logPipelineStats(c *Child) {
	for _, p := range []struct {
		stream   string
		pipeline *parser.Pipeline
	}{
		{logging.StreamStdout, c.stdoutPipeline},
		{logging.StreamStderr, c.stderrPipeline},
	} {
		read, dropped, parsed := p.pipeline.Stats()
		if dropped > 0 || s.logger.Enabled(context.Background(), slog.LevelDebug) {
			s.logger.Info("pipeline_stats",
				"run_id", c.runID,
				"stream", p.stream,
				"lines_read", read,
				"lines_dropped", dropped,
				"lines_parsed", parsed,
				"degraded", p.pipeline.IsDegraded(),
			)
		}
		if s.callbacks.OnOutput != nil {
			s.callbacks.OnOutput(p.stream, read, dropped)
		}
	}
}
