// Package config provides unified configuration loading for impairsim.
// It supports loading from YAML or TOML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/nvandessel/impairsim/internal/impair"
	"github.com/nvandessel/impairsim/internal/logging"
	"github.com/nvandessel/impairsim/internal/record"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override, e.g. IMPAIRSIM_MODE.
const EnvPrefix = "IMPAIRSIM"

// Config contains all impairsim configuration settings.
type Config struct {
	// Impairment selects and parameterizes the timing model.
	Impairment ImpairmentConfig `json:"impairment" yaml:"impairment" toml:"impairment"`

	// Loader controls input parsing.
	Loader LoaderConfig `json:"loader" yaml:"loader" toml:"loader"`

	// Dispatch configures the optional downstream consumer.
	Dispatch DispatchConfig `json:"dispatch" yaml:"dispatch" toml:"dispatch"`

	// Ledger configures the SQLite run history.
	Ledger LedgerConfig `json:"ledger" yaml:"ledger" toml:"ledger"`

	// Metrics configures the Prometheus textfile export.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" toml:"metrics"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging" toml:"logging"`
}

// ImpairmentConfig mirrors impair.Config in file form.
type ImpairmentConfig struct {
	// Mode is "lag" (default) or "jitter".
	Mode string `json:"mode" yaml:"mode" toml:"mode"`

	// LagMS is the constant latency added in lag mode.
	LagMS float64 `json:"lag_ms" yaml:"lag_ms" toml:"lag_ms"`

	// SigmaMS is the jitter standard deviation in jitter mode.
	SigmaMS float64 `json:"sigma_ms" yaml:"sigma_ms" toml:"sigma_ms"`

	// DropP is the per-record drop probability in jitter mode. Range: 0.0 to 1.0
	DropP float64 `json:"drop_p" yaml:"drop_p" toml:"drop_p"`

	// Seed makes jitter runs reproducible. Unset means a fresh seed per run.
	Seed *int64 `json:"seed,omitempty" yaml:"seed,omitempty" toml:"seed,omitempty"`
}

// LoaderConfig controls input parsing.
type LoaderConfig struct {
	// MissingTimestamp is "zero" (default, load at ts 0) or "reject".
	MissingTimestamp string `json:"missing_timestamp" yaml:"missing_timestamp" toml:"missing_timestamp"`
}

// DispatchConfig configures the consumer command run after a successful write.
type DispatchConfig struct {
	// TrackerCmd is a command template; {input} and {output} become the output path.
	TrackerCmd string `json:"tracker_cmd,omitempty" yaml:"tracker_cmd,omitempty" toml:"tracker_cmd,omitempty"`

	// NoWait starts the consumer without waiting for its exit status.
	NoWait bool `json:"no_wait" yaml:"no_wait" toml:"no_wait"`
}

// LedgerConfig configures the run history database.
type LedgerConfig struct {
	// Dir holds runs.db. Empty disables the ledger.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty" toml:"dir,omitempty"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	// TextfilePath receives metrics in the text exposition format. Empty disables export.
	TextfilePath string `json:"textfile_path,omitempty" yaml:"textfile_path,omitempty" toml:"textfile_path,omitempty"`
}

// LoggingConfig configures impairsim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "warn", "info" (default), "debug", or "trace".
	Level string `json:"level" yaml:"level" toml:"level"`

	// DecisionTrace is the JSONL file receiving per-record decisions at
	// debug level or below. Empty disables the trace.
	DecisionTrace string `json:"decision_trace,omitempty" yaml:"decision_trace,omitempty" toml:"decision_trace,omitempty"`
}

// Default returns a Config with the command-line defaults.
func Default() *Config {
	return &Config{
		Impairment: ImpairmentConfig{
			Mode:    string(impair.ModeLag),
			LagMS:   impair.DefaultLagMS,
			SigmaMS: impair.DefaultSigmaMS,
			DropP:   impair.DefaultDropP,
		},
		Loader: LoaderConfig{
			MissingTimestamp: string(record.MissingTimestampZero),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.impairsim/config.yaml, or "" if HOME is unknown.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".impairsim", "config.yaml")
}

// Load loads configuration from path (or the default location when path is
// empty) and applies environment variable overrides.
// Order: defaults -> config file -> environment variables
func Load(path string) (*Config, error) {
	config := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil || explicit {
			fileConfig, loadErr := LoadFromFile(path)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	return config, nil
}

// LoadFromFile loads configuration from a YAML file, or TOML when the path
// ends in .toml.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Dispatch.TrackerCmd = expandEnvVars(config.Dispatch.TrackerCmd)
	config.Ledger.Dir = expandEnvVars(config.Ledger.Dir)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.ImpairConfig().Validate(); err != nil {
		return err
	}

	if !record.MissingTimestamp(c.Loader.MissingTimestamp).Valid() {
		return fmt.Errorf("invalid missing_timestamp: %s (valid: zero, reject)", c.Loader.MissingTimestamp)
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// ImpairConfig converts the impairment section to an impair.Config.
func (c *Config) ImpairConfig() impair.Config {
	return impair.Config{
		Mode:    impair.Mode(c.Impairment.Mode),
		LagMS:   c.Impairment.LagMS,
		SigmaMS: c.Impairment.SigmaMS,
		DropP:   c.Impairment.DropP,
		Seed:    c.Impairment.Seed,
	}
}

// envOverrides lists the supported environment variables. Pointer fields
// distinguish "unset" from zero values.
type envOverrides struct {
	Mode             *string  `envconfig:"MODE"`
	LagMS            *float64 `envconfig:"LAG_MS"`
	SigmaMS          *float64 `envconfig:"SIGMA_MS"`
	DropP            *float64 `envconfig:"DROP_P"`
	Seed             *int64   `envconfig:"SEED"`
	MissingTimestamp *string  `envconfig:"MISSING_TIMESTAMP"`
	TrackerCmd       *string  `envconfig:"TRACKER_CMD"`
	LedgerDir        *string  `envconfig:"LEDGER_DIR"`
	MetricsFile      *string  `envconfig:"METRICS_FILE"`
	LogLevel         *string  `envconfig:"LOG_LEVEL"`
	DecisionTrace    *string  `envconfig:"DECISION_TRACE"`
}

// applyEnvOverrides applies IMPAIRSIM_* environment variables to the config.
func applyEnvOverrides(config *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return err
	}

	setString(&config.Impairment.Mode, env.Mode)
	setFloat(&config.Impairment.LagMS, env.LagMS)
	setFloat(&config.Impairment.SigmaMS, env.SigmaMS)
	setFloat(&config.Impairment.DropP, env.DropP)
	if env.Seed != nil {
		config.Impairment.Seed = env.Seed
	}
	setString(&config.Loader.MissingTimestamp, env.MissingTimestamp)
	setString(&config.Dispatch.TrackerCmd, env.TrackerCmd)
	setString(&config.Ledger.Dir, env.LedgerDir)
	setString(&config.Metrics.TextfilePath, env.MetricsFile)
	setString(&config.Logging.Level, env.LogLevel)
	setString(&config.Logging.DecisionTrace, env.DecisionTrace)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
