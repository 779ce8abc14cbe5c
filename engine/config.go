package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config controls the engine's runtime behavior. Zero value is the
// conservative default (no tree dump, no subsumption logging, existential
// simplification enabled); use the With* functions with New to override.
type Config struct {
	OutputTree        bool
	DebugSubsumption  int
	NoExistential     bool
}

type Option func(*Config)

// WithOutputTree sets Config.OutputTree. The engine stores the flag but does
// not read it; no tree is rendered because of it.
func WithOutputTree() Option {
	return func(c *Config) { c.OutputTree = true }
}

// WithDebugSubsumption sets the subsumption-check logging verbosity
// (0 = silent, higher = chattier; mapped onto a txlog level).
func WithDebugSubsumption(level int) Option {
	return func(c *Config) { c.DebugSubsumption = level }
}

// WithNoExistential turns off subsumption-entry construction: when a
// subsumption check misses, no entry is built or tabled for the node, so
// later checks at that location find no candidate from it. Entries that are
// built still go through the usual shadowing.
func WithNoExistential() Option {
	return func(c *Config) { c.NoExistential = true }
}

// NewConfig applies opts over the zero-value default.
func NewConfig(opts ...Option) *Config {
	c := &Config{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// fileConfig is the on-disk shape LoadConfigFile parses; it mirrors Config
// field-for-field so a deployment can pin engine behavior in a checked-in
// yaml file instead of wiring flags through every call site.
type fileConfig struct {
	OutputTree       bool `yaml:"output_tree"`
	DebugSubsumption int  `yaml:"debug_subsumption"`
	NoExistential    bool `yaml:"no_existential"`
}

// LoadConfigFile reads a yaml config file into a Config.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: reading config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("engine: parsing config file: %w", err)
	}
	return &Config{
		OutputTree:       fc.OutputTree,
		DebugSubsumption: fc.DebugSubsumption,
		NoExistential:    fc.NoExistential,
	}, nil
}
