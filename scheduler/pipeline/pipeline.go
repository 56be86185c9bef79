// Package pipeline loads a declarative wiring of scheduler dependency edges
// and node flags from YAML, the same way the kernel's other config surfaces
// are declared, so the edges between systems can live in a file instead of
// scattered AddDependency calls.
package pipeline

import (
	"fmt"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v2"

	"github.com/kernelsched/kernel/scheduler"
)

// RetryConfig is the YAML-facing form of scheduler.RetryPolicy: the budget
// and rate limit enforced against the caller's own Scheduler.Retry calls,
// not a schedule for an automatic retry.
type RetryConfig struct {
	Count     int     `yaml:"count"`
	RateLimit float64 `yaml:"rate_limit"` // retries/sec, 0 means unlimited
	Burst     int     `yaml:"burst"`
}

func (r RetryConfig) toPolicy() scheduler.RetryPolicy {
	return scheduler.RetryPolicy{
		Retry: r.Count,
		Limit: rate.Limit(r.RateLimit),
		Burst: r.Burst,
	}
}

// NodeConfig carries per-node flags for a system that must already be
// registered with the scheduler under Key.
type NodeConfig struct {
	Key            string       `yaml:"key"`
	MainThreadOnly bool         `yaml:"main_thread_only"`
	Retry          *RetryConfig `yaml:"retry,omitempty"`
}

// EdgeConfig is one explicit dependency edge, From running before To.
type EdgeConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Config is the data structure that describes one pipeline's wiring.
type Config struct {
	Pipeline string       `yaml:"pipeline"`
	Comment  string       `yaml:"comment"`
	Nodes    []NodeConfig `yaml:"nodes"`
	Edges    []EdgeConfig `yaml:"edges"`
}

// Parse parses a data stream into the pipeline config structure.
func (c *Config) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}
	if c.Pipeline == "" {
		return fmt.Errorf("pipeline: config: missing `pipeline` name")
	}
	return nil
}

// LoadFile reads and parses a pipeline config file from fs.
func LoadFile(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: could not read %s: %w", path, err)
	}
	var c Config
	if err := c.Parse(data); err != nil {
		return nil, fmt.Errorf("pipeline: could not parse %s: %w", path, err)
	}
	return &c, nil
}

// Apply wires this config's flags and edges onto s. Every key referenced
// must already have been registered via s.AddSystem (typically by whatever
// bootstrap code builds the concrete System values) — the config only
// describes ordering and bucket placement, never system construction.
func (c *Config) Apply(s *scheduler.Scheduler) error {
	for _, nc := range c.Nodes {
		id, ok := s.Lookup(nc.Key)
		if !ok {
			return fmt.Errorf("pipeline: no system registered under key %q", nc.Key)
		}
		s.SetMainThreadOnly(id, nc.MainThreadOnly)
		if nc.Retry != nil {
			s.SetRetryPolicy(id, nc.Retry.toPolicy())
		}
	}

	for _, ec := range c.Edges {
		from, ok := s.Lookup(ec.From)
		if !ok {
			return fmt.Errorf("pipeline: edge %q -> %q: no system registered under key %q", ec.From, ec.To, ec.From)
		}
		to, ok := s.Lookup(ec.To)
		if !ok {
			return fmt.Errorf("pipeline: edge %q -> %q: no system registered under key %q", ec.From, ec.To, ec.To)
		}
		if !s.AddDependency(from, to) {
			return fmt.Errorf("pipeline: edge %q -> %q would introduce a cycle", ec.From, ec.To)
		}
	}
	return nil
}
