// Package health polls the sidecar's HTTP health endpoint until it
// answers, the way the desktop shell waited for the bundled server.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Defaults match the shell's original polling loop.
const (
	DefaultInterval = 500 * time.Millisecond
	DefaultAttempts = 60
	DefaultPath     = "/health"
)

// ErrNotHealthy is returned when every attempt failed.
var ErrNotHealthy = errors.New("sidecar did not become healthy")

// Prober polls one URL.
type Prober struct {
	url      string
	interval time.Duration
	attempts int
	client   *http.Client
	logger   *slog.Logger
}

// Config holds configuration for a Prober.
type Config struct {
	Port     int
	Path     string
	Interval time.Duration
	Attempts int
	Client   *http.Client
	Logger   *slog.Logger
}

// NewProber creates a prober for http://127.0.0.1:<port><path>.
func NewProber(cfg Config) *Prober {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Prober{
		url:      fmt.Sprintf("http://127.0.0.1:%d%s", cfg.Port, path),
		interval: interval,
		attempts: attempts,
		client:   client,
		logger:   logger,
	}
}

// URL returns the probed address.
func (p *Prober) URL() string {
	return p.url
}

// Check performs one request. Any 2xx answer is healthy.
func (p *Prober) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}
	return nil
}

// Wait polls until Check succeeds, the attempts run out, or ctx ends.
// Returns the number of attempts used.
func (p *Prober) Wait(ctx context.Context) (int, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		lastErr = p.Check(ctx)
		if lastErr == nil {
			p.logger.Info("sidecar_healthy", "url", p.url, "attempts", attempt)
			return attempt, nil
		}
		p.logger.Debug("sidecar_health_pending", "url", p.url, "attempt", attempt, "error", lastErr)

		if attempt == p.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-ticker.C:
		}
	}

	p.logger.Warn("sidecar_unhealthy", "url", p.url, "attempts", p.attempts, "error", lastErr)
	return p.attempts, fmt.Errorf("%w after %d attempts: %v", ErrNotHealthy, p.attempts, lastErr)
}
