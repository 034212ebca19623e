package process

import (
	"os"
	"strconv"
)

// PathKey is the inherited search-path variable passed to the child.
const PathKey = "PATH"

// EnvVar is one name=value pair of the child environment.
type EnvVar struct {
	Key   string
	Value string
}

func (v EnvVar) String() string {
	return v.Key + "=" + v.Value
}

// Env is the fixed environment handed to the sidecar at spawn: the mode
// flag, the data directory, the port, and the caller's search path.
// Built fresh for every start.
type Env struct {
	Mode    EnvVar
	DataDir EnvVar
	Port    EnvVar
	Path    EnvVar
}

// Pairs returns the environment in exec.Cmd form, in fixed order.
func (e Env) Pairs() []string {
	return []string{
		e.Mode.String(),
		e.DataDir.String(),
		e.Port.String(),
		e.Path.String(),
	}
}

// Map returns the environment keyed by variable name.
func (e Env) Map() map[string]string {
	return map[string]string{
		e.Mode.Key:    e.Mode.Value,
		e.DataDir.Key: e.DataDir.Value,
		e.Port.Key:    e.Port.Value,
		e.Path.Key:    e.Path.Value,
	}
}

// EnvSpec describes how to build an Env. Only the data directory varies
// between starts.
type EnvSpec struct {
	ModeKey    string
	ModeValue  string
	DataDirKey string
	PortKey    string
	Port       int

	// Getenv reads the caller's environment; os.Getenv when nil.
	Getenv func(string) string
}

// DefaultEnvSpec returns the contract the bundled server expects.
func DefaultEnvSpec() EnvSpec {
	return EnvSpec{
		ModeKey:    "SIDECAR_MODE",
		ModeValue:  "1",
		DataDirKey: "OPENPROFIA_DATA_DIR",
		PortKey:    "PORT",
		Port:       3000,
	}
}

// Build returns the environment for a child using dataDir.
func (s EnvSpec) Build(dataDir string) Env {
	getenv := s.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	return Env{
		Mode:    EnvVar{Key: s.ModeKey, Value: s.ModeValue},
		DataDir: EnvVar{Key: s.DataDirKey, Value: dataDir},
		Port:    EnvVar{Key: s.PortKey, Value: strconv.Itoa(s.Port)},
		Path:    EnvVar{Key: PathKey, Value: getenv(PathKey)},
	}
}
