// Package config loads sightline.yaml.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jward/sightline/internal/geom"
	"github.com/jward/sightline/internal/logging"
)

// DefaultFile is the config file name looked up in the working directory.
const DefaultFile = "sightline.yaml"

// Config is the on-disk configuration.
type Config struct {
	Database      string         `yaml:"database"`
	ScriptsDir    string         `yaml:"scripts_dir"`
	CopyBeforeRun *bool          `yaml:"copy_before_run"`
	Tolerance     float64        `yaml:"tolerance"`
	KeyColumn     string         `yaml:"key_column"`
	Log           logging.Config `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	copyBeforeRun := true
	return Config{
		Database:      ".sightline/maps.db",
		ScriptsDir:    "scripts",
		CopyBeforeRun: &copyBeforeRun,
		Tolerance:     geom.Tolerance,
		KeyColumn:     "Ref",
		Log:           logging.DefaultConfig(),
	}
}

// CopyByDefault reports whether analyses run on a copy unless told otherwise.
func (c Config) CopyByDefault() bool {
	return c.CopyBeforeRun == nil || *c.CopyBeforeRun
}

// Load reads path over the defaults. ${VAR} references are replaced with
// environment values before parsing.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // path is chosen by the caller
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	content := substituteEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOptional is Load, but a missing file yields the defaults.
func LoadOptional(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks values that yaml cannot.
func (c Config) Validate() error {
	if c.Tolerance < 0 {
		return fmt.Errorf("tolerance must not be negative, got %g", c.Tolerance)
	}
	if c.Database == "" {
		return fmt.Errorf("database path is empty")
	}
	return nil
}

// Save writes cfg to path.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start
		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
