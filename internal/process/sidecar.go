package process

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// SidecarConfig holds configuration for locating and running the sidecar.
type SidecarConfig struct {
	// Name is the bare binary name, e.g. "openprofia-server".
	Name string

	// Path is an explicit binary path. When set, no lookup is done.
	Path string

	// Args are passed to the binary.
	Args []string

	// Replaceable for tests.
	Executable func() (string, error)
	LookPath   func(string) (string, error)
	GOOS       string
	GOARCH     string
}

// SidecarRunner implements Builder for the bundled sidecar.
type SidecarRunner struct {
	config *SidecarConfig
}

// NewSidecarRunner creates a runner, filling unset hooks from the OS.
func NewSidecarRunner(cfg *SidecarConfig) *SidecarRunner {
	if cfg.Executable == nil {
		cfg.Executable = os.Executable
	}
	if cfg.LookPath == nil {
		cfg.LookPath = exec.LookPath
	}
	if cfg.GOOS == "" {
		cfg.GOOS = runtime.GOOS
	}
	if cfg.GOARCH == "" {
		cfg.GOARCH = runtime.GOARCH
	}
	return &SidecarRunner{config: cfg}
}

// Name returns the sidecar name.
func (r *SidecarRunner) Name() string {
	if r.config.Name != "" {
		return r.config.Name
	}
	return filepath.Base(r.config.Path)
}

// BuildCommand creates an exec.Cmd for the sidecar. The environment is
// exactly env (nothing else is inherited) and the working directory is
// the data directory.
func (r *SidecarRunner) BuildCommand(env Env) (*exec.Cmd, error) {
	path, err := r.Locate()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path, r.config.Args...)
	cmd.Env = env.Pairs()
	cmd.Dir = env.DataDir.Value
	return cmd, nil
}

// Locate finds the sidecar binary: the explicit path, then next to the
// host executable (bare and target-triple suffixed), then PATH.
func (r *SidecarRunner) Locate() (string, error) {
	if r.config.Path != "" {
		if err := checkExecutable(r.config.Path); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrSidecarNotFound, r.config.Path, err)
		}
		return r.config.Path, nil
	}

	if r.config.Name == "" {
		return "", fmt.Errorf("%w: no sidecar name configured", ErrSidecarNotFound)
	}

	var tried []string
	if exe, err := r.config.Executable(); err == nil {
		dir := filepath.Dir(exe)
		for _, name := range r.candidates() {
			candidate := filepath.Join(dir, name)
			tried = append(tried, candidate)
			if checkExecutable(candidate) == nil {
				return candidate, nil
			}
		}
	}

	if path, err := r.config.LookPath(r.config.Name); err == nil {
		return path, nil
	}
	tried = append(tried, "$PATH/"+r.config.Name)

	return "", fmt.Errorf("%w: tried %s", ErrSidecarNotFound, strings.Join(tried, ", "))
}

// candidates lists file names the bundler may have produced.
func (r *SidecarRunner) candidates() []string {
	ext := ""
	if r.config.GOOS == "windows" {
		ext = ".exe"
	}
	names := []string{r.config.Name + ext}
	if triple := TargetTriple(r.config.GOOS, r.config.GOARCH); triple != "" {
		names = append(names, r.config.Name+"-"+triple+ext)
	}
	return names
}

// CommandString returns the command and environment as a shell-style string.
func (r *SidecarRunner) CommandString(env Env) string {
	path, err := r.Locate()
	if err != nil {
		path = r.Name()
	}

	parts := append([]string{}, env.Pairs()...)
	parts = append(parts, path)
	parts = append(parts, r.config.Args...)

	for i, p := range parts {
		if strings.ContainsAny(p, " \t\"'") {
			parts[i] = fmt.Sprintf("%q", p)
		}
	}
	return strings.Join(parts, " ")
}

// TargetTriple maps GOOS/GOARCH to the triple suffix used by desktop
// bundlers for sidecar binaries. Unknown combinations return "".
func TargetTriple(goos, goarch string) string {
	arch := map[string]string{
		"amd64": "x86_64",
		"arm64": "aarch64",
		"386":   "i686",
		"arm":   "armv7",
	}[goarch]
	if arch == "" {
		return ""
	}

	switch goos {
	case "darwin":
		return arch + "-apple-darwin"
	case "linux":
		if goarch == "arm" {
			return "armv7-unknown-linux-gnueabihf"
		}
		return arch + "-unknown-linux-gnu"
	case "windows":
		return arch + "-pc-windows-msvc"
	default:
		return ""
	}
}

// checkExecutable verifies path is a regular file we can run.
func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("is a directory")
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("not executable")
	}
	return nil
}
