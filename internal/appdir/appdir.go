// Package appdir resolves and creates the per-instance data directory
// handed to the sidecar.
package appdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"unicode/utf8"
)

var (
	// ErrNoHome indicates the user's home directory could not be determined.
	ErrNoHome = errors.New("home directory not found")

	// ErrUnrepresentable indicates a path that cannot be passed through the
	// child's environment.
	ErrUnrepresentable = errors.New("invalid app data dir path")
)

// Resolver produces the data directory for one start.
type Resolver interface {
	Resolve() (string, error)
}

// Platform resolves the data directory the way desktop shells do:
// the OS data root joined with the application identifier.
type Platform struct {
	// Identifier names the per-application subdirectory.
	Identifier string

	// Override is used verbatim when set.
	Override string

	// GOOS and Getenv are replaceable for tests.
	GOOS   string
	Getenv func(string) string
	Home   func() (string, error)
}

// NewPlatform returns a Platform bound to the running OS.
func NewPlatform(identifier, override string) *Platform {
	return &Platform{
		Identifier: identifier,
		Override:   override,
		GOOS:       runtime.GOOS,
		Getenv:     os.Getenv,
		Home:       os.UserHomeDir,
	}
}

// Resolve returns the absolute data directory without creating it.
func (p *Platform) Resolve() (string, error) {
	if p.Override != "" {
		return filepath.Abs(p.Override)
	}
	if p.Identifier == "" {
		return "", errors.New("app identifier is empty")
	}

	root, err := p.dataRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, p.Identifier), nil
}

// dataRoot returns the per-user application data root for the OS.
func (p *Platform) dataRoot() (string, error) {
	getenv := p.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	home := p.Home
	if home == nil {
		home = os.UserHomeDir
	}

	switch p.GOOS {
	case "windows":
		if dir := getenv("APPDATA"); dir != "" {
			return dir, nil
		}
		return "", fmt.Errorf("%%APPDATA%% is not set")
	case "darwin", "ios":
		h, err := home()
		if err != nil || h == "" {
			return "", ErrNoHome
		}
		return filepath.Join(h, "Library", "Application Support"), nil
	default:
		// XDG only counts when absolute
		if dir := getenv("XDG_DATA_HOME"); dir != "" && filepath.IsAbs(dir) {
			return dir, nil
		}
		h, err := home()
		if err != nil || h == "" {
			return "", ErrNoHome
		}
		return filepath.Join(h, ".local", "share"), nil
	}
}

// Ensure creates path and its parents if absent.
func Ensure(path string) error {
	return os.MkdirAll(path, 0o755)
}

// Representable reports whether path can be carried in an environment
// variable unchanged: valid UTF-8 and no NUL bytes.
func Representable(path string) error {
	if !utf8.ValidString(path) || strings.ContainsRune(path, 0) {
		return ErrUnrepresentable
	}
	return nil
}

// Static is a Resolver returning a fixed path, or a fixed error.
type Static struct {
	Path string
	Err  error
}

// Resolve implements Resolver.
func (s Static) Resolve() (string, error) {
	return s.Path, s.Err
}
