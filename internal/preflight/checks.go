// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/randomizedcoder/sidecar-supervisor/internal/appdir"
)

// minFileDescriptors covers the host, its servers and the sidecar's pipes.
const minFileDescriptors = 256

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Locator finds the sidecar binary.
type Locator interface {
	Locate() (string, error)
}

// Options selects what RunAll checks.
type Options struct {
	Sidecar  Locator
	Resolver appdir.Resolver
	Port     int
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}

	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkSidecar(opts.Sidecar))
	add(checkDataDir(opts.Resolver))
	add(checkPort(opts.Port))
	add(checkFileDescriptors(minFileDescriptors))

	return result
}

// checkSidecar verifies the sidecar binary can be located.
func checkSidecar(loc Locator) Check {
	if loc == nil {
		return Check{Name: "sidecar_binary", Passed: true, Warning: true, Message: "not checked"}
	}
	path, err := loc.Locate()
	if err != nil {
		return Check{
			Name:    "sidecar_binary",
			Passed:  false,
			Message: err.Error(),
		}
	}
	return Check{
		Name:    "sidecar_binary",
		Passed:  true,
		Message: "found at " + path,
	}
}

// checkDataDir verifies the data directory resolves and is writable.
func checkDataDir(r appdir.Resolver) Check {
	if r == nil {
		return Check{Name: "data_dir", Passed: true, Warning: true, Message: "not checked"}
	}
	dir, err := r.Resolve()
	if err != nil {
		return Check{Name: "data_dir", Passed: false, Message: err.Error()}
	}
	if err := appdir.Representable(dir); err != nil {
		return Check{Name: "data_dir", Passed: false, Message: fmt.Sprintf("%s: %v", dir, err)}
	}
	if err := appdir.Ensure(dir); err != nil {
		return Check{Name: "data_dir", Passed: false, Message: err.Error()}
	}

	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return Check{Name: "data_dir", Passed: false, Message: fmt.Sprintf("%s not writable: %v", dir, err)}
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	return Check{Name: "data_dir", Passed: true, Message: dir}
}

// checkPort verifies nothing else listens on the sidecar's port. A busy
// port is reported as a warning: it may be a sidecar left over from an
// earlier launch, which this host cannot adopt.
func checkPort(port int) Check {
	if port <= 0 {
		return Check{Name: "sidecar_port", Passed: true, Warning: true, Message: "not checked"}
	}
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{
			Name:    "sidecar_port",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s in use: %v", addr, err),
		}
	}
	ln.Close()
	return Check{Name: "sidecar_port", Passed: true, Message: addr + " free"}
}

// PrintResults prints the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed || check.Warning {
			if fix := suggestFix(check.Name); fix != "" {
				fmt.Fprintf(w, "    Fix: %s\n", fix)
			}
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "sidecar_binary":
		return "place the sidecar next to the host binary or pass -sidecar-path"
	case "data_dir":
		return "pass -data-dir with a writable directory"
	case "sidecar_port":
		return "stop the process holding the port or pass -port"
	default:
		return ""
	}
}
