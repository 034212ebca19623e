package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// argList is a custom flag type for repeatable -arg flags.
type argList []string

func (a *argList) String() string {
	return strings.Join(*a, " ")
}

func (a *argList) Set(value string) error {
	*a = append(*a, value)
	return nil
}

// ParseFlags parses command-line flags (without the program name) and
// returns a Config. A -config file is applied first; flags override it.
func ParseFlags(args []string) (*Config, error) {
	return parseFlags(args, os.Stderr)
}

func parseFlags(args []string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()

	path, err := configFileArg(args)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	fs := flag.NewFlagSet("sidecar-supervisor", flag.ContinueOnError)
	fs.SetOutput(output)

	var sidecarArgs argList
	var configFile string

	fs.Usage = func() {
		fmt.Fprintf(output, `sidecar-supervisor - host for a single embedded sidecar server

Usage:
  sidecar-supervisor [flags]

Sidecar:
`)
		printFlagCategory(fs, output, []string{"sidecar", "sidecar-path", "arg", "identifier", "data-dir", "port"})

		fmt.Fprintf(output, "\nChild Environment:\n")
		printFlagCategory(fs, output, []string{"mode-env", "mode-value", "data-dir-env", "port-env"})

		fmt.Fprintf(output, "\nReadiness:\n")
		printFlagCategory(fs, output, []string{"ready-marker", "health-path", "health-interval", "health-attempts"})

		fmt.Fprintf(output, "\nHost:\n")
		printFlagCategory(fs, output, []string{"config", "autostart", "reclaim-wait", "tui", "skip-preflight", "print-cmd"})

		fmt.Fprintf(output, "\nObservability:\n")
		printFlagCategory(fs, output, []string{"control", "v", "log-format", "log-level", "log-file", "output-buffer"})

		fmt.Fprintf(output, `
Examples:
  # Run with the interactive control panel
  sidecar-supervisor

  # Headless, explicit binary, text logs
  sidecar-supervisor -tui=false -sidecar-path ./bin/server -log-format text

`)
	}

	// Sidecar
	fs.StringVar(&cfg.SidecarName, "sidecar", cfg.SidecarName, "Sidecar binary name (resolved next to this executable, then PATH)")
	fs.StringVar(&cfg.SidecarPath, "sidecar-path", cfg.SidecarPath, "Explicit sidecar binary path (skips lookup)")
	fs.Var(&sidecarArgs, "arg", "Argument passed to the sidecar (can repeat)")
	fs.StringVar(&cfg.Identifier, "identifier", cfg.Identifier, "Application identifier used to name the data directory")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Data directory override")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Port the sidecar listens on")

	// Child environment contract
	fs.StringVar(&cfg.ModeEnv, "mode-env", cfg.ModeEnv, "Environment variable carrying the sidecar mode flag")
	fs.StringVar(&cfg.ModeValue, "mode-value", cfg.ModeValue, "Value of the sidecar mode flag")
	fs.StringVar(&cfg.DataDirEnv, "data-dir-env", cfg.DataDirEnv, "Environment variable carrying the data directory")
	fs.StringVar(&cfg.PortEnv, "port-env", cfg.PortEnv, "Environment variable carrying the port")

	// Readiness
	fs.StringVar(&cfg.ReadyMarker, "ready-marker", cfg.ReadyMarker, "Stdout substring that marks the sidecar as ready")
	fs.StringVar(&cfg.HealthPath, "health-path", cfg.HealthPath, "Sidecar health endpoint path")
	fs.DurationVar(&cfg.HealthInterval, "health-interval", cfg.HealthInterval, "Interval between health probes")
	fs.IntVar(&cfg.HealthAttempts, "health-attempts", cfg.HealthAttempts, "Health probes before giving up")

	// Host
	fs.StringVar(&configFile, "config", cfg.ConfigFile, "YAML config file (flags override it)")
	fs.BoolVar(&cfg.Autostart, "autostart", cfg.Autostart, "Start the sidecar when the host launches")
	fs.DurationVar(&cfg.ReclaimWait, "reclaim-wait", cfg.ReclaimWait, "How long shutdown waits for a killed sidecar to be reaped")
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable the terminal control panel (use -tui=false for headless)")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the sidecar command and environment, then exit")

	// Observability
	fs.StringVar(&cfg.ControlAddr, "control", cfg.ControlAddr, "Control/metrics HTTP address (empty disables)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn", "error"`)
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Rotating log file used while the TUI is active (default: <data-dir>/logs/host.log)")
	fs.IntVar(&cfg.OutputBufferSize, "output-buffer", cfg.OutputBufferSize, "Sidecar output lines buffered per stream")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if len(sidecarArgs) > 0 {
		cfg.SidecarArgs = sidecarArgs
	}
	if configFile != "" {
		cfg.ConfigFile = configFile
	}

	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "ms") || strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
			return "duration"
		}
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
