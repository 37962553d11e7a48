package lab

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/epyc-go/epyc/internal/config"
)

// DefaultConfigPath is where LoadConfigFromEnv looks for lab defaults
// absent an explicit path (spec EXP-1 ".epyc.yaml").
const DefaultConfigPath = ".epyc.yaml"

// ConfigPathEnvVar overrides DefaultConfigPath.
const ConfigPathEnvVar = "EPYC_CONFIG_PATH"

// ExecutorKind names one of the three Executor variants spec §4.7 defines.
type ExecutorKind string

const (
	ExecutorSequential    ExecutorKind = "sequential"
	ExecutorLocalParallel ExecutorKind = "local-parallel"
	ExecutorRemote        ExecutorKind = "remote"
)

// Config holds the lab-wide defaults loaded from .epyc.yaml: which
// executor a campaign runs on and how that executor is tuned.
type Config struct {
	Executor ExecutorKind `yaml:"executor"`

	// Workers sizes the local-parallel worker pool per spec §4.7: positive
	// values are capped at the physical core count, zero uses every
	// physical core, negative uses max(1, cores+value).
	Workers int `yaml:"workers"`

	// WaitingTime is the remote executor's poll interval (spec §5,
	// default 30s).
	WaitingTime time.Duration `yaml:"waiting_time"`

	// Retries bounds per-job transient-failure retries for the remote
	// executor (spec §4.7/§7).
	Retries int `yaml:"retries"`

	// Reconnections bounds remote-connection reattachment attempts on
	// open failure (spec §5).
	Reconnections int `yaml:"reconnections"`

	Notebook NotebookConfig `yaml:"notebook"`
}

// NotebookConfig selects and configures the lab's PersistentBackend.
type NotebookConfig struct {
	// Backend is "memory" (the default, no persistence) or "postgres".
	Backend     string `yaml:"backend"`
	DatabaseURL string `yaml:"database_url"` //nolint:tagliatelle // snake_case is intentional for YAML config files
}

// defaultConfig returns the config every field falls back to absent a
// file or an explicit value (spec §5's WaitingTime default of 30s).
func defaultConfig() *Config {
	return &Config{
		Executor:    ExecutorSequential,
		WaitingTime: 30 * time.Second,
		Retries:     3,
		Notebook:    NotebookConfig{Backend: "memory"},
	}
}

// LoadConfig loads lab defaults from a YAML file at path, following the
// graceful-degradation rule internal/aliasing's LoadConfig uses: a
// missing file, unreadable file, or invalid YAML all return the default
// config (with a log) rather than an error, since .epyc.yaml is optional.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("lab config file not found, using defaults", slog.String("path", path))

			return cfg, nil
		}

		slog.Warn("failed to read lab config file, using defaults",
			slog.String("path", path), slog.String("error", err.Error()))

		return cfg, nil
	}

	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("failed to parse lab config file, using defaults",
			slog.String("path", path), slog.String("error", err.Error()))

		return defaultConfig(), nil
	}

	return cfg, nil
}

// LoadConfigFromEnv loads config from the path named by ConfigPathEnvVar,
// falling back to DefaultConfigPath in the current directory.
func LoadConfigFromEnv() (*Config, error) {
	path := config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath)

	return LoadConfig(path)
}
