// Package model runs a whole simulation: it generates the population, steps
// it on one goroutine or across a coordinator and a pool of workers, and
// collects the recorded values into sealed results.
package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"agentsim.ai/internal/persistence/snapshot"
	"agentsim.ai/internal/sim/behavior"
	"agentsim.ai/internal/sim/clock"
	"agentsim.ai/internal/sim/generator"
	"agentsim.ai/internal/sim/results"
	"agentsim.ai/internal/sim/scheduler"
)

type Config struct {
	// Scenario labels the run in logs and exported results.
	Scenario string

	Agents int
	// Cores below 2 run everything on the calling goroutine.
	Cores int
	// TotalTicks includes the warm-up ticks.
	TotalTicks  int
	WarmUpTicks int

	Synced     bool
	Cache      bool
	CopyAgents bool

	// DiskResults stores series in SQLite files under ResultsDir/<run id>
	// until the run ends.
	DiskResults bool
	ResultsDir  string

	Scheduler scheduler.Scheduler
	Generator generator.Generator
	Settings  generator.Settings
	// NamePrefix defaults to "agent".
	NamePrefix string

	Results results.Options
	Sinks   []results.Sink

	// RunID is generated when empty.
	RunID  string
	Logger *log.Logger
}

type Model struct {
	cfg    Config
	clock  clock.Clock
	logger *log.Logger
	runDir string
}

func New(cfg Config) (*Model, error) {
	if cfg.Agents <= 0 {
		return nil, fmt.Errorf("model: agent count must be positive, got %d", cfg.Agents)
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("model: nil generator")
	}
	clk, err := clock.New(cfg.TotalTicks, cfg.WarmUpTicks)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = scheduler.InOrder()
	}
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = "agent"
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	m := &Model{cfg: cfg, clock: clk, logger: logger}
	if cfg.DiskResults {
		base := cfg.ResultsDir
		if base == "" {
			base = filepath.Join(os.TempDir(), "agentsim")
		}
		m.runDir = filepath.Join(base, cfg.RunID)
	}
	return m, nil
}

func (m *Model) RunID() string      { return m.cfg.RunID }
func (m *Model) Clock() clock.Clock { return m.clock }

// Run executes every tick and returns sealed results. Disk-backed series are
// moved into memory before Run returns.
func (m *Model) Run(ctx context.Context) (*results.Results, error) {
	start := time.Now()
	m.logger.Printf("run %s start scenario=%s agents=%d cores=%d ticks=%d warm_up=%d synced=%v cache=%v disk=%v",
		m.cfg.RunID, m.cfg.Scenario, m.cfg.Agents, m.cfg.Cores, m.cfg.TotalTicks, m.cfg.WarmUpTicks, m.cfg.Synced, m.cfg.Cache, m.cfg.DiskResults)

	env, err := m.cfg.Generator.GenerateEnvironment(m.cfg.Settings)
	if err != nil {
		return nil, fmt.Errorf("model: environment: %w", err)
	}
	if env == nil {
		return nil, fmt.Errorf("model: generator returned nil environment")
	}
	agents, err := generator.Population(m.cfg.Generator, behavior.NewNames(m.cfg.NamePrefix), m.cfg.Agents)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	opts := m.cfg.Results
	if m.cfg.DiskResults {
		opts.Disk = true
		opts.Dir = m.runDir
	}
	res, err := results.New(opts)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	col := newCollector(res, m.cfg.Sinks, agents, m.clock)

	if m.cfg.Cores <= 1 {
		err = m.runSingle(ctx, env, agents, col)
	} else {
		err = m.runMulti(ctx, env, agents, col)
	}
	if err == nil {
		err = col.finish()
	}
	if err != nil {
		_ = res.Close()
		m.cleanup()
		m.closeSinks()
		return nil, err
	}

	res.Seal()
	relErr := res.Release()
	m.cleanup()
	sinkErr := m.closeSinks()
	if err := errors.Join(relErr, sinkErr); err != nil {
		return nil, fmt.Errorf("model: finish: %w", err)
	}
	m.logger.Printf("run %s done rows=%d elapsed=%s", m.cfg.RunID, res.Len(), time.Since(start).Round(time.Millisecond))
	return res, nil
}

// Export builds the results file for a finished run.
func (m *Model) Export(res *results.Results) (snapshot.ResultsV1, error) {
	out, err := res.Export(m.cfg.RunID)
	if err != nil {
		return out, err
	}
	out.Scenario = m.cfg.Scenario
	out.Agents = m.cfg.Agents
	out.Cores = m.cfg.Cores
	out.TotalTicks = m.cfg.TotalTicks
	out.WarmUpTicks = m.cfg.WarmUpTicks
	out.Synced = m.cfg.Synced
	return out, nil
}

func (m *Model) cleanup() {
	if m.runDir != "" {
		// Only succeeds once every results file is gone.
		_ = os.Remove(m.runDir)
	}
}

func (m *Model) closeSinks() error {
	var errs []error
	for _, s := range m.cfg.Sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
