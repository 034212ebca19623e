// Package main provides the sidecar-supervisor CLI entry point.
//
// sidecar-supervisor hosts a bundled server binary as a child process:
// it starts the sidecar at most once, exposes start/stop/status over a
// local control endpoint, and kills the sidecar when the host exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/randomizedcoder/sidecar-supervisor/internal/appdir"
	"github.com/randomizedcoder/sidecar-supervisor/internal/config"
	"github.com/randomizedcoder/sidecar-supervisor/internal/logging"
	"github.com/randomizedcoder/sidecar-supervisor/internal/orchestrator"
	"github.com/randomizedcoder/sidecar-supervisor/internal/process"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/sidecar-supervisor
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("sidecar-supervisor %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	// Handle --print-cmd mode
	if cfg.PrintCmd {
		return printSidecarCommand(cfg)
	}

	// Initialize logger. The TUI owns the terminal, so logs go to a
	// rotated file instead.
	logger, closeLog := newLogger(cfg)
	defer closeLog()
	logging.SetDefault(logger)

	logger.Info("starting",
		"version", version,
		"sidecar", cfg.SidecarName,
		"port", cfg.Port,
		"control_addr", cfg.ControlAddr,
		"autostart", cfg.Autostart,
	)

	printBanner(cfg)

	// Create and run orchestrator
	orch := orchestrator.New(cfg, logger, orchestrator.Options{Version: version})
	if err := orch.Run(context.Background()); err != nil {
		logger.Error("orchestrator_failed", "error", err)
		if cfg.TUIEnabled {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}

	return 0
}

// newLogger builds the host logger and returns a func releasing its sink.
func newLogger(cfg *config.Config) (*slog.Logger, func()) {
	if !cfg.TUIEnabled {
		return logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose), func() {}
	}

	path := cfg.LogFile
	if path == "" {
		dir, err := appdir.NewPlatform(cfg.Identifier, cfg.DataDir).Resolve()
		if err != nil {
			return logging.NewLoggerWithWriter(io.Discard, cfg.LogFormat, cfg.LogLevel), func() {}
		}
		path = logging.DefaultFilePath(dir)
	}

	w, err := logging.NewFileWriter(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
		return logging.NewLoggerWithWriter(io.Discard, cfg.LogFormat, cfg.LogLevel), func() {}
	}
	return logging.NewLoggerWithWriter(w, cfg.LogFormat, cfg.LogLevel), func() { _ = w.Close() }
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                       sidecar-supervisor                          ║")
	fmt.Println("║           Bundled Server Lifecycle for Desktop Hosts              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Sidecar:     %s\n", cfg.SidecarName)
	if cfg.SidecarPath != "" {
		fmt.Printf("  Binary:      %s\n", cfg.SidecarPath)
	}
	fmt.Printf("  Port:        %d\n", cfg.Port)
	fmt.Printf("  Control:     http://%s/sidecar/status\n", cfg.ControlAddr)
	fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.ControlAddr)
	if !cfg.Autostart {
		fmt.Println("  Autostart:   off (POST /sidecar/start to launch)")
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}

// printSidecarCommand prints the command and environment that Start would use.
func printSidecarCommand(cfg *config.Config) int {
	dir, err := appdir.NewPlatform(cfg.Identifier, cfg.DataDir).Resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving data dir: %v\n", err)
		return 1
	}

	runner := process.NewSidecarRunner(&process.SidecarConfig{
		Name: cfg.SidecarName,
		Path: cfg.SidecarPath,
		Args: cfg.SidecarArgs,
	})
	env := orchestrator.EnvSpec(cfg).Build(dir)

	fmt.Println("# Sidecar command that would be run on start:")
	fmt.Println()
	fmt.Println(runner.CommandString(env))
	return 0
}
