package bench

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml"
)

const (
	defaultResultsDir    = "./bench-results"
	defaultTaskTimeout   = 300 * time.Second
	defaultParallelism   = 1
	defaultMaxIterations = 30
)

// Config is the top-level benchmark configuration, loaded from TOML.
type Config struct {
	ResultsDir     string                 `toml:"results_dir"`
	TaskTimeout    time.Duration          `toml:"-"`
	RawTaskTimeout string                 `toml:"task_timeout"`
	Parallelism    int                    `toml:"parallelism"`
	MaxIterations  int                    `toml:"max_iterations"`
	Matrix         []MatrixEntry          `toml:"matrix"`
	SuiteConfig    map[string]interface{} `toml:"suite_config"`
}

// MatrixEntry is one model/configuration combination to benchmark.
type MatrixEntry struct {
	Label string  `toml:"label"`
	Model *string `toml:"model"`
}

// LoadConfig reads and validates a benchmark configuration file. An
// empty matrix is rejected: there is nothing to run.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bench config %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("bench config %s: %w", path, err)
	}
	applyDefaults(&cfg)

	if err := cfg.resolveTaskTimeout(); err != nil {
		return nil, fmt.Errorf("bench config %s: %w", path, err)
	}
	if len(cfg.Matrix) == 0 {
		return nil, fmt.Errorf("bench config %s: must have at least one [[matrix]] entry", path)
	}
	return &cfg, nil
}

// MinimalConfig builds a single-entry config for when no config file is
// supplied, using an optional model override and every other default.
func MinimalConfig(model *string) *Config {
	label := "default"
	if model != nil && *model != "" {
		label = *model
	}
	cfg := &Config{Matrix: []MatrixEntry{{Label: label, Model: model}}}
	applyDefaults(cfg)
	cfg.TaskTimeout = defaultTaskTimeout
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = defaultResultsDir
	}
	if cfg.RawTaskTimeout == "" {
		cfg.TaskTimeout = defaultTaskTimeout
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
}

func (c *Config) resolveTaskTimeout() error {
	if c.RawTaskTimeout == "" {
		return nil
	}
	d, err := parseDuration(c.RawTaskTimeout)
	if err != nil {
		return fmt.Errorf("task_timeout: %w", err)
	}
	c.TaskTimeout = d
	return nil
}

// SuiteConfigString reads a string value out of the suite-specific
// configuration table, for adapter options like a dataset path.
func (c *Config) SuiteConfigString(key string) (string, bool) {
	v, ok := c.SuiteConfig[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
