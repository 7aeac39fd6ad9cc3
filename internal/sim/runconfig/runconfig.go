// Package runconfig loads a simulation run from a YAML file.
package runconfig

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"agentsim.ai/internal/sim/results"
	"agentsim.ai/internal/sim/scenario"
	"agentsim.ai/internal/sim/scheduler"
)

//go:embed run.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("run.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

type Config struct {
	Scenario    string `yaml:"scenario"`
	Agents      int    `yaml:"agents"`
	Cores       int    `yaml:"cores"`
	Ticks       int    `yaml:"ticks"`
	WarmUpTicks int    `yaml:"warm_up_ticks"`

	Synced      bool   `yaml:"synced"`
	Cache       bool   `yaml:"cache"`
	CopyAgents  bool   `yaml:"copy_agents"`
	DiskResults bool   `yaml:"disk_results"`
	ResultsDir  string `yaml:"results_dir,omitempty"`

	Scheduler string `yaml:"scheduler"`
	Seed      uint64 `yaml:"seed"`

	Settings map[string]float64 `yaml:"settings,omitempty"`
	// Reducers maps a recorded agent property to sum, mean or max.
	Reducers map[string]string `yaml:"reducers,omitempty"`

	TickLogDir string `yaml:"tick_log_dir,omitempty"`
}

func Defaults() Config {
	return Config{
		Scenario:  "hunger",
		Agents:    10,
		Cores:     1,
		Ticks:     30,
		Synced:    true,
		Scheduler: "in_order",
		Seed:      1,
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := validateDocument(b); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// validateDocument checks the raw YAML against the embedded JSON schema.
func validateDocument(b []byte) error {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	// Round-trip through JSON so the validator sees JSON types.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("run file is not a JSON-compatible document: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return s.Validate(v)
}

func (c *Config) Normalize() {
	c.Scenario = strings.TrimSpace(c.Scenario)
	c.Scheduler = strings.ToLower(strings.TrimSpace(c.Scheduler))
	if c.Scheduler == "" {
		c.Scheduler = "in_order"
	}
	if c.Cores < 1 {
		c.Cores = 1
	}
	for k, v := range c.Reducers {
		c.Reducers[k] = strings.ToLower(strings.TrimSpace(v))
	}
}

func (c Config) Validate() error {
	if _, err := scenario.Lookup(c.Scenario); err != nil {
		return err
	}
	if c.Agents <= 0 {
		return fmt.Errorf("agents must be positive, got %d", c.Agents)
	}
	if c.Ticks < 0 || c.WarmUpTicks < 0 {
		return fmt.Errorf("ticks and warm_up_ticks must be >= 0")
	}
	if c.WarmUpTicks > c.Ticks {
		return fmt.Errorf("warm_up_ticks %d exceeds ticks %d", c.WarmUpTicks, c.Ticks)
	}
	if _, err := scheduler.ByName(c.Scheduler, c.Seed); err != nil {
		return err
	}
	if _, err := c.PropertyReducers(); err != nil {
		return err
	}
	return nil
}

// PropertyReducers resolves the configured reducer names.
func (c Config) PropertyReducers() (map[string]results.Reducer, error) {
	if len(c.Reducers) == 0 {
		return nil, nil
	}
	out := make(map[string]results.Reducer, len(c.Reducers))
	for prop, name := range c.Reducers {
		switch name {
		case "sum":
			out[prop] = results.Sum
		case "mean":
			out[prop] = results.Mean
		case "max":
			out[prop] = results.Max
		default:
			return nil, fmt.Errorf("reducer for %s: unknown %q", prop, name)
		}
	}
	return out, nil
}
