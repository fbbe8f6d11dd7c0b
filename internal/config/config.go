// Package config loads and validates the hotify configuration file
// (hotify.yml or hotify.toml) with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied before any file or environment override.
const (
	DefaultHotFolderName    = "_HOTIFY"
	DefaultOutputFolderName = "_OUTPUT"
	DefaultSettleDelay      = 5 // seconds
)

// StringList accepts either a single string or a list of strings in YAML
// and TOML, so `trigger: "cmd"` and `trigger: [a, b]` both parse.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var one string
		if err := value.Decode(&one); err != nil {
			return err
		}
		*s = StringList{one}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := value.Decode(&many); err != nil {
			return err
		}
		*s = StringList(many)
		return nil
	default:
		return fmt.Errorf("expected string or list of strings")
	}
}

// UnmarshalTOML implements toml.Unmarshaler.
func (s *StringList) UnmarshalTOML(v interface{}) error {
	switch val := v.(type) {
	case string:
		*s = StringList{val}
		return nil
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			str, ok := item.(string)
			if !ok {
				return fmt.Errorf("expected string in list, got %T", item)
			}
			out = append(out, str)
		}
		*s = StringList(out)
		return nil
	default:
		return fmt.Errorf("expected string or list of strings, got %T", v)
	}
}

// EnvironmentConfig declares one hot-folder environment.
type EnvironmentConfig struct {
	Name     string     `yaml:"name" toml:"name"`
	Patterns StringList `yaml:"patterns" toml:"patterns"`
	Trigger  StringList `yaml:"trigger" toml:"trigger"`
}

// Config is the process configuration.
type Config struct {
	HotFolderName    string              `yaml:"hot_folder_name" toml:"hot_folder_name"`
	OutputFolderName string              `yaml:"output_folder_name" toml:"output_folder_name"`
	SettleDelay      int                 `yaml:"settle_delay_seconds" toml:"settle_delay_seconds"`
	CleanupInputs    bool                `yaml:"cleanup_inputs" toml:"cleanup_inputs"`
	Environments     []EnvironmentConfig `yaml:"environments" toml:"environments"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HotFolderName:    DefaultHotFolderName,
		OutputFolderName: DefaultOutputFolderName,
		SettleDelay:      DefaultSettleDelay,
	}
}

// DefaultPath returns the config file path to use when none is given:
// HOTIFY_CONFIG, then ./hotify.yml or ./hotify.toml if present, then the
// user config directory.
func DefaultPath() string {
	if env := os.Getenv("HOTIFY_CONFIG"); env != "" {
		return env
	}
	for _, name := range []string{"hotify.yml", "hotify.yaml", "hotify.toml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hotify", "hotify.yml")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "hotify", "hotify.yml")
}

// Load reads the config file at path (DefaultPath when empty), merges it
// over Default, applies environment variable overrides, and validates the
// result. A missing file is an error: hotify cannot do anything useful
// without environments.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	// Env > file > default.
	if v := os.Getenv("HOTIFY_HOT_FOLDER"); v != "" {
		cfg.HotFolderName = v
	}
	if v := os.Getenv("HOTIFY_OUTPUT_FOLDER"); v != "" {
		cfg.OutputFolderName = v
	}
	if v := os.Getenv("HOTIFY_SETTLE_DELAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SettleDelay = n
		}
	}
	if v := os.Getenv("HOTIFY_CLEANUP"); v != "" {
		cfg.CleanupInputs = v == "1" || v == "true"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for hard errors. Soft issues that the
// engine tolerates are reported by Warnings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HotFolderName) == "" {
		return fmt.Errorf("hot_folder_name must not be empty")
	}
	if strings.TrimSpace(c.OutputFolderName) == "" {
		return fmt.Errorf("output_folder_name must not be empty")
	}
	if c.SettleDelay < 1 {
		return fmt.Errorf("settle_delay_seconds must be at least 1, got %d", c.SettleDelay)
	}
	if len(c.Environments) == 0 {
		return fmt.Errorf("at least one environment required")
	}
	seen := make(map[string]bool, len(c.Environments))
	for i, env := range c.Environments {
		if strings.TrimSpace(env.Name) == "" {
			return fmt.Errorf("environment %d: name must not be empty", i+1)
		}
		if seen[env.Name] {
			return fmt.Errorf("duplicate environment name %q", env.Name)
		}
		seen[env.Name] = true
		if len(env.Patterns) == 0 {
			return fmt.Errorf("environment %q: at least one pattern required", env.Name)
		}
		if len(env.Trigger) == 0 {
			return fmt.Errorf("environment %q: trigger must not be empty", env.Name)
		}
	}
	return nil
}

// Warnings reports soft configuration issues: templates mixing {in_file}
// and {in_files} run in batch mode and their {in_file} references will fail
// at render time.
func (c *Config) Warnings() []string {
	var out []string
	for _, env := range c.Environments {
		var hasSingle, hasMulti bool
		for _, tmpl := range env.Trigger {
			if strings.Contains(tmpl, "{in_file}") {
				hasSingle = true
			}
			if strings.Contains(tmpl, "{in_files}") {
				hasMulti = true
			}
		}
		if hasSingle && hasMulti {
			out = append(out, fmt.Sprintf(
				"environment %q mixes {in_file} and {in_files}; treating as batch, {in_file} will not resolve", env.Name))
		}
	}
	return out
}
