package config

import (
	"fmt"
	"path/filepath"
)

// Config holds the engine configuration. Values come from flags, environment
// variables with the TAGPIPE_ prefix, and an optional YAML config file, in
// that order of precedence.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// DataDir anchors the default locations of the database and the three
	// working directories below.
	DataDir string `mapstructure:"dataDir"`

	DatabasePath string `mapstructure:"databasePath"`
	UploadsDir   string `mapstructure:"uploadsDir"`
	ScriptsDir   string `mapstructure:"scriptsDir"`
	OutputDir    string `mapstructure:"outputDir"`

	// MaxConcurrentJobs bounds the number of jobs running at once.
	MaxConcurrentJobs int `mapstructure:"maxConcurrentJobs"`

	// Interpreter runs the wrapped user scripts.
	Interpreter string `mapstructure:"interpreter"`

	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"logFormat"`
	LogFile   string `mapstructure:"logFile"`
}

// Default values applied by the loader.
const (
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 8080
	DefaultMaxConcurrentJobs = 10
	DefaultInterpreter       = "python3"
	DefaultDatabaseFile      = "tagpipe.db"
)

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// setDerivedDefaults fills path fields that default relative to DataDir.
func (c *Config) setDerivedDefaults() {
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, DefaultDatabaseFile)
	}
	if c.UploadsDir == "" {
		c.UploadsDir = filepath.Join(c.DataDir, "uploads")
	}
	if c.ScriptsDir == "" {
		c.ScriptsDir = filepath.Join(c.DataDir, "scripts")
	}
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join(c.DataDir, "output")
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("maxConcurrentJobs must be at least 1, got %d", c.MaxConcurrentJobs)
	}
	if c.Interpreter == "" {
		return fmt.Errorf("interpreter must not be empty")
	}
	return nil
}
