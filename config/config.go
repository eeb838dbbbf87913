// Package config handles geck.toml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/geck/vm"
)

// Config represents a geck.toml configuration.
type Config struct {
	Vm    VmConfig    `toml:"vm"`
	State StateConfig `toml:"state"`
	Log   LogConfig   `toml:"log"`

	// Dir is the directory containing the geck.toml file (set at load time).
	Dir string `toml:"-"`
}

// VmConfig tunes the interpreter.
type VmConfig struct {
	MaxStackLen int `toml:"max-stack-len"`
}

// StateConfig configures the persistent game state.
type StateConfig struct {
	Database   string `toml:"database"`
	GlobalVars int    `toml:"global-vars"`
	MapVars    int    `toml:"map-vars"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Verbosity int `toml:"verbosity"`
}

// Default returns the configuration used when no geck.toml exists.
func Default() *Config {
	return &Config{
		Vm:    VmConfig{MaxStackLen: vm.DefaultMaxStackLen},
		State: StateConfig{Database: "geck.db"},
	}
}

// Load parses a geck.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "geck.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if c.Vm.MaxStackLen <= 0 {
		c.Vm.MaxStackLen = vm.DefaultMaxStackLen
	}
	if c.State.Database == "" {
		c.State.Database = "geck.db"
	}

	return &c, nil
}

// FindAndLoad walks up from startDir to find a geck.toml file, then loads
// and returns it. Returns the defaults if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "geck.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// DatabasePath returns the state database path, resolved against Dir when
// relative.
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.State.Database) || c.Dir == "" {
		return c.State.Database
	}
	return filepath.Join(c.Dir, c.State.Database)
}
