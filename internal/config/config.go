// Package config provides configuration management for sidecar-supervisor.
package config

import "time"

// Config holds all configuration options for the host and its sidecar.
type Config struct {
	// Sidecar
	SidecarName string   `json:"sidecar_name" yaml:"sidecar_name"`
	SidecarPath string   `json:"sidecar_path" yaml:"sidecar_path"` // explicit binary, skips lookup
	SidecarArgs []string `json:"sidecar_args" yaml:"sidecar_args"`
	Identifier  string   `json:"identifier" yaml:"identifier"`     // app identifier, names the data dir
	DataDir     string   `json:"data_dir" yaml:"data_dir"`         // overrides the platform data dir
	Port        int      `json:"port" yaml:"port"`

	// Child environment contract
	ModeEnv    string `json:"mode_env" yaml:"mode_env"`
	ModeValue  string `json:"mode_value" yaml:"mode_value"`
	DataDirEnv string `json:"data_dir_env" yaml:"data_dir_env"`
	PortEnv    string `json:"port_env" yaml:"port_env"`

	// Readiness
	ReadyMarker    string        `json:"ready_marker" yaml:"ready_marker"`
	HealthPath     string        `json:"health_path" yaml:"health_path"`
	HealthInterval time.Duration `json:"health_interval" yaml:"health_interval"`
	HealthAttempts int           `json:"health_attempts" yaml:"health_attempts"`

	// Host behavior
	Autostart     bool          `json:"autostart" yaml:"autostart"`
	ReclaimWait   time.Duration `json:"reclaim_wait" yaml:"reclaim_wait"`
	TUIEnabled    bool          `json:"tui" yaml:"tui"`
	SkipPreflight bool          `json:"skip_preflight" yaml:"skip_preflight"`
	PrintCmd      bool          `json:"print_cmd" yaml:"-"`

	// Observability
	ControlAddr string `json:"control_addr" yaml:"control_addr"` // /metrics, /health, /sidecar/*
	Verbose     bool   `json:"verbose" yaml:"verbose"`
	LogFormat   string `json:"log_format" yaml:"log_format"` // json, text
	LogLevel    string `json:"log_level" yaml:"log_level"`
	LogFile     string `json:"log_file" yaml:"log_file"` // used when the TUI owns the terminal

	// Output handling
	OutputBufferSize int `json:"output_buffer_size" yaml:"output_buffer_size"`

	// ConfigFile is the YAML file the config was loaded from, if any.
	ConfigFile string `json:"config_file" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Sidecar
		SidecarName: "openprofia-server",
		Identifier:  "com.openprofia.app",
		Port:        3000,

		// Child environment contract
		ModeEnv:    "SIDECAR_MODE",
		ModeValue:  "1",
		DataDirEnv: "OPENPROFIA_DATA_DIR",
		PortEnv:    "PORT",

		// Readiness
		ReadyMarker:    "Server listening on port",
		HealthPath:     "/health",
		HealthInterval: 500 * time.Millisecond,
		HealthAttempts: 60, // 30s

		// Host behavior
		Autostart:   true,
		ReclaimWait: 5 * time.Second,
		TUIEnabled:  true,

		// Observability
		ControlAddr: "127.0.0.1:17092",
		LogFormat:   "json",
		LogLevel:    "info",

		OutputBufferSize: 1000,
	}
}
