package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"

	"github.com/eth2030/airbender/errs"
	"github.com/eth2030/airbender/execution"
	"github.com/eth2030/airbender/log"
	"github.com/eth2030/airbender/pipeline"
	"github.com/eth2030/airbender/prover"
)

// envPrefix selects the environment variables read into the config. Nested
// keys use a double underscore and dashes a single one:
// AIRBENDER_PROVER__SEGMENT_CYCLES sets prover.segment-cycles.
const envPrefix = "AIRBENDER_"

// Config is the full configuration of one invocation.
type Config struct {
	Log     log.Config       `koanf:"log"`
	Engine  execution.Config `koanf:"engine"`
	Prover  prover.Config    `koanf:"prover"`
	Input   InputConfig      `koanf:"input"`
	Metrics MetricsConfig    `koanf:"metrics"`
}

// InputConfig controls input stream parsing.
type InputConfig struct {
	// Require rejects empty input streams.
	Require bool `koanf:"require"`
}

// MetricsConfig controls the metrics textfile.
type MetricsConfig struct {
	File string `koanf:"file"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	p := pipeline.DefaultConfig()
	return Config{
		Log:    log.DefaultConfig,
		Engine: p.Engine,
		Prover: p.Prover,
	}
}

// Pipeline returns the engine and prover settings.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{Engine: c.Engine, Prover: c.Prover}
}

// Validate checks the configuration for values no command can run with.
func (c *Config) Validate() error {
	if c.Log.Verbosity < 0 || c.Log.Verbosity > 5 {
		return fmt.Errorf("verbosity %d out of range 0-5", c.Log.Verbosity)
	}
	if c.Engine.MaxCycles == 0 {
		return errors.New("engine.max-cycles must be positive")
	}
	if c.Engine.RAMBound < 4096 {
		return fmt.Errorf("engine.ram-bound %d is smaller than one page", c.Engine.RAMBound)
	}
	if c.Prover.SegmentCycles == 0 {
		return errors.New("prover.segment-cycles must be positive")
	}
	if c.Prover.RecursionBatch < 2 {
		return fmt.Errorf("prover.recursion-batch %d must be at least 2", c.Prover.RecursionBatch)
	}
	if c.Prover.Threads < 0 {
		return fmt.Errorf("prover.threads %d is negative", c.Prover.Threads)
	}
	return nil
}

// envKey maps AIRBENDER_PROVER__SEGMENT_CYCLES to prover.segment-cycles.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.Split(s, "__")
	for i := range parts {
		parts[i] = strings.ReplaceAll(parts[i], "_", "-")
	}
	return strings.Join(parts, ".")
}

// loadConfig layers, lowest first: defaults, the JSON config file at path
// (if any), AIRBENDER_* environment variables and the overrides collected
// from command-line flags.
func loadConfig(path string, overrides map[string]interface{}) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return nil, errs.WithPath(errs.IOError, path, err)
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("apply flags: %w", err)
		}
	}
	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
