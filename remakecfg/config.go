// Package remakecfg reads the optional .remake.toml project config.
// Precedence, matching the corpus's documented rule: environment
// variables > config file > built-in defaults. An absent config file is
// not an error — every field has a sane default.
package remakecfg

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds settings awkward to pass as CLI flags every invocation.
type Config struct {
	Build BuildConfig `toml:"build"`
	Log   LogConfig   `toml:"log"`
}

// BuildConfig holds build-file discovery settings.
type BuildConfig struct {
	// File is the default build file name, overridable by -f.
	File string `toml:"file"`
}

// LogConfig holds logging/terminal output settings.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
	Color string `toml:"color"` // "auto" (default), "always", "never"
}

// Default returns the built-in defaults applied before any config file
// or environment variable is consulted.
func Default() *Config {
	return &Config{
		Build: BuildConfig{File: "REMAKEFILE"},
		Log:   LogConfig{Level: "info", Color: "auto"},
	}
}

// Load reads configPath (falling back to ".remake.toml" in the current
// directory when configPath is empty) and layers environment variable
// overrides on top. A missing file is not an error: Load returns the
// defaults, modified by any environment overrides.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	path := configPath
	if path == "" {
		path = ".remake.toml"
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REMAKE_FILE"); v != "" {
		cfg.Build.File = v
	}
	if v := os.Getenv("REMAKE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("REMAKE_COLOR"); v != "" {
		cfg.Log.Color = v
	}
}
