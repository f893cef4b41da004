// Package config loads and stores the exporter's settings. A missing file
// is not an error; it just means defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is everything the CLI can persist. Flags override these values at
// run time; the file never changes unless Save is called.
type Config struct {
	// DatabasePath is the chat.db to read.
	DatabasePath string `yaml:"database_path"`

	// ExportDir receives the exported files.
	ExportDir string `yaml:"export_dir"`

	// Format is the export format, txt or ndjson.
	Format string `yaml:"format"`

	// Workers bounds the decode and file-check pools; 0 means one per CPU.
	Workers int `yaml:"workers"`

	// SkipAttachmentCheck turns off the on-disk attachment stat pass.
	SkipAttachmentCheck bool `yaml:"skip_attachment_check"`

	// SelfName labels messages sent from this account.
	SelfName string `yaml:"self_name"`

	// LogLevel is a zerolog level name: trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Dir returns the directory holding config.yaml. The env override exists
// for tests and portable installs.
func Dir() (string, error) {
	if override := os.Getenv("IMESSAGE_EXPORTER_CONFIG_DIR"); override != "" {
		return override, nil
	}

	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "imessage-exporter"), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DatabasePath: filepath.Join(home, "Library", "Messages", "chat.db"),
		ExportDir:    filepath.Join(home, "imessage_export"),
		Format:       "txt",
		SelfName:     "Me",
		LogLevel:     "info",
	}
}

// Load reads config.yaml from Dir, falling back to defaults when it does
// not exist.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFile(filepath.Join(dir, "config.yaml"))
}

// LoadFile reads a specific config file. Fields absent from the file keep
// their default values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate rejects values the rest of the program cannot act on.
func (c *Config) Validate() error {
	switch c.Format {
	case "txt", "ndjson":
	default:
		return fmt.Errorf("unknown export format %q (want txt or ndjson)", c.Format)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// Save writes the config file, creating the directory if needed. The file
// is private to the user; it names paths inside their home.
func (c *Config) Save() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
