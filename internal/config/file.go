package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile overlays the YAML file at path onto cfg.
// Fields absent from the file keep their current values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	cfg.ConfigFile = path
	return nil
}

// configFileArg finds the value of -config / --config in args without
// consuming anything, so the file can be applied before flags override it.
func configFileArg(args []string) (string, error) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-config" || arg == "--config":
			if i+1 >= len(args) {
				return "", errors.New("flag needs an argument: -config")
			}
			return args[i+1], nil
		case len(arg) > 8 && arg[:8] == "-config=":
			return arg[8:], nil
		case len(arg) > 9 && arg[:9] == "--config=":
			return arg[9:], nil
		case arg == "--":
			return "", nil
		}
	}
	return "", nil
}
