package daemon

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config holds daemon configuration with sensible defaults. The config
// FILE (INI, parsed by internal/iniconfig) describes endpoints and
// processes; Config describes where the daemon keeps its own state.
type Config struct {
	ConfigFile string // path to the gafferd.ini this daemon was started with
	PIDFile    string // Default: ~/.gaffer/gafferd.pid
	KeysDBPath string // Default: ~/.gaffer/keys.db
	NoAuth     bool   // disables API key checks, falling back to DummyKey
}

// DefaultConfig returns a Config with sensible defaults. Paths are resolved
// relative to the user's home directory.
func DefaultConfig() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	gafferDir := filepath.Join(home, ".gaffer")

	return &Config{
		PIDFile:    filepath.Join(gafferDir, "gafferd.pid"),
		KeysDBPath: filepath.Join(gafferDir, "keys.db"),
	}, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ConfigFile == "" {
		return fmt.Errorf("ConfigFile is required")
	}
	if !filepath.IsAbs(c.PIDFile) {
		return fmt.Errorf("PIDFile must be absolute, got %s", c.PIDFile)
	}
	if !filepath.IsAbs(c.KeysDBPath) {
		return fmt.Errorf("KeysDBPath must be absolute, got %s", c.KeysDBPath)
	}
	return nil
}

// EnsureDirectories creates the directories needed for daemon files.
func (c *Config) EnsureDirectories() error {
	dirs := make(map[string]bool)
	dirs[filepath.Dir(c.PIDFile)] = true
	dirs[filepath.Dir(c.KeysDBPath)] = true

	for dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
