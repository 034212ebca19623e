package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	// Something has to name the sidecar
	if cfg.SidecarName == "" && cfg.SidecarPath == "" {
		errs = append(errs, ValidationError{
			Field:   "sidecar_name",
			Message: "sidecar name or sidecar path is required",
		})
	}

	if strings.ContainsAny(cfg.SidecarName, `/\`) {
		errs = append(errs, ValidationError{
			Field:   "sidecar_name",
			Message: fmt.Sprintf("must be a bare name, use sidecar_path for paths (got %q)", cfg.SidecarName),
		})
	}

	// Identifier names the data directory unless overridden
	if cfg.DataDir == "" && cfg.Identifier == "" {
		errs = append(errs, ValidationError{
			Field:   "identifier",
			Message: "required when data_dir is not set",
		})
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "port",
			Message: fmt.Sprintf("must be between 1 and 65535 (got %d)", cfg.Port),
		})
	}

	// Environment variable names must be usable and distinct
	envNames := map[string]string{
		"mode_env":     cfg.ModeEnv,
		"data_dir_env": cfg.DataDirEnv,
		"port_env":     cfg.PortEnv,
	}
	seen := make(map[string]string)
	for _, field := range []string{"mode_env", "data_dir_env", "port_env"} {
		name := envNames[field]
		if err := validateEnvName(name); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error()})
			continue
		}
		if name == "PATH" {
			errs = append(errs, ValidationError{Field: field, Message: "PATH is reserved for the inherited search path"})
			continue
		}
		if other, dup := seen[name]; dup {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicates %s (%q)", other, name),
			})
			continue
		}
		seen[name] = field
	}

	if cfg.ReadyMarker == "" {
		errs = append(errs, ValidationError{
			Field:   "ready_marker",
			Message: "must not be empty",
		})
	}

	if !strings.HasPrefix(cfg.HealthPath, "/") {
		errs = append(errs, ValidationError{
			Field:   "health_path",
			Message: fmt.Sprintf("must start with / (got %q)", cfg.HealthPath),
		})
	}
	if cfg.HealthInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "health_interval",
			Message: "must be positive",
		})
	}
	if cfg.HealthAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "health_attempts",
			Message: "must be at least 1",
		})
	}

	if cfg.ReclaimWait < 0 {
		errs = append(errs, ValidationError{
			Field:   "reclaim_wait",
			Message: "must not be negative",
		})
	}

	// Control address is optional, but must parse when set
	if cfg.ControlAddr != "" {
		if err := validateAddr(cfg.ControlAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "control_addr",
				Message: err.Error(),
			})
		}
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(cfg.LogLevel)] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	if cfg.OutputBufferSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "output_buffer_size",
			Message: "must be at least 1",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateEnvName checks that name is a portable environment variable name.
func validateEnvName(name string) error {
	if name == "" {
		return errors.New("must not be empty")
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return fmt.Errorf("invalid environment variable name %q", name)
		}
	}
	return nil
}

// validateAddr checks a host:port listen address.
func validateAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}
