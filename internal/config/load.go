package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the name of the ftr configuration file.
const ConfigFileName = "ftr.toml"

// FindConfigFile walks up from startDir to find ftr.toml. It returns an empty
// path when there is none before the filesystem root.
func FindConfigFile(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// LoadFromFile parses the TOML file at path. The metadata reports keys the
// Config does not know via MetaData.Undecoded().
func LoadFromFile(path string) (*Config, toml.MetaData, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, md, fmt.Errorf("loading config %s: %w", path, err)
	}
	return &cfg, md, nil
}

// Load finds and reads the config file (explicit wins over discovery from
// startDir), resolves it against defaults, env and overrides, and validates
// the result.
func Load(startDir, explicit string, envFn EnvFunc, overrides *CLIOverrides) (*ResolvedConfig, *ValidationResult, error) {
	path := explicit
	if path == "" {
		found, err := FindConfigFile(startDir)
		if err != nil {
			return nil, nil, err
		}
		path = found
	}

	var fileCfg *Config
	var meta *toml.MetaData
	if path != "" {
		cfg, md, err := LoadFromFile(path)
		if err != nil {
			return nil, nil, err
		}
		fileCfg, meta = cfg, &md
	}

	rc := Resolve(NewDefaults(), fileCfg, envFn, overrides)
	rc.Path = path
	return rc, Validate(rc.Config, meta), nil
}
