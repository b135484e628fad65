// Package config loads and validates silt's runtime configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (SILT_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the silt configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// State configures the task state directory root and housekeeping
	State StateConfig `mapstructure:"state" yaml:"state"`

	// Store contains tuning for the persistent store engine
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Metrics controls the Prometheus lifecycle collectors
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is the minimum level to emit
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format selects text or json output
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is "stdout", "stderr", or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// StateConfig configures where task state lives on disk.
type StateConfig struct {
	// Dir is the root under which every task keeps its state directory
	Dir string `mapstructure:"dir" validate:"required" yaml:"dir"`

	// CleanupGrace is how long an unlocked task directory must sit
	// unmodified before "silt clean" may remove it
	CleanupGrace string `mapstructure:"cleanup_grace" validate:"omitempty" yaml:"cleanup_grace"`
}

// StoreConfig tunes the Badger-backed store engine.
type StoreConfig struct {
	// SyncWrites forces an fsync per write instead of at flush points
	SyncWrites bool `mapstructure:"sync_writes" yaml:"sync_writes"`

	// ValueLogFileSize caps Badger value log files, in bytes (0 = default)
	ValueLogFileSize int64 `mapstructure:"value_log_file_size" validate:"omitempty,gte=0" yaml:"value_log_file_size"`
}

// CleanupGraceDuration parses the cleanup grace period.
func (c StateConfig) CleanupGraceDuration() (time.Duration, error) {
	if c.CleanupGrace == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.CleanupGrace)
	if err != nil {
		return 0, fmt.Errorf("invalid cleanup_grace %q: %w", c.CleanupGrace, err)
	}
	return d, nil
}

// MetricsConfig controls metrics collection.
type MetricsConfig struct {
	// Enabled registers the lifecycle collectors on startup
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stderr",
		},
		State: StateConfig{
			Dir:          defaultStateDir(),
			CleanupGrace: "10m",
		},
		Store: StoreConfig{
			SyncWrites: false,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

func defaultStateDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "silt", "state")
	}
	return filepath.Join(os.TempDir(), "silt-state")
}

// Load loads configuration from the given file (empty path means defaults
// plus environment only), applies defaults for missing values, and
// validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("SILT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// decodeHooks returns the mapstructure hooks used when unmarshalling.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// applyDefaults fills any zero-valued fields that have defaults.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = def.Logging.Output
	}
	if cfg.State.Dir == "" {
		cfg.State.Dir = def.State.Dir
	}
	if cfg.State.CleanupGrace == "" {
		cfg.State.CleanupGrace = def.State.CleanupGrace
	}
}

// Validate checks the configuration against its struct validation tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("invalid value for %s (rule %q)", e.Namespace(), e.Tag())
		}
		return err
	}
	return nil
}

// Save writes the configuration as YAML.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
