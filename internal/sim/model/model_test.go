package model

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"agentsim.ai/internal/persistence/snapshot"
	"agentsim.ai/internal/sim/behavior"
	"agentsim.ai/internal/sim/generator"
	"agentsim.ai/internal/sim/results"
	"agentsim.ai/internal/sim/scenario"
	"agentsim.ai/internal/sim/scheduler"
)

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func scenarioConfig(t *testing.T, name string) Config {
	t.Helper()
	s, err := scenario.Lookup(name)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	return Config{
		Scenario:  name,
		Generator: s.New(nil),
		Results:   results.Options{PropertyReducers: s.Reducers},
		Synced:    true,
		Logger:    quiet(),
	}
}

func mustRun(t *testing.T, cfg Config) (*Model, *results.Results) {
	t.Helper()
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run(cores=%d): %v", cfg.Cores, err)
	}
	return m, res
}

func series(t *testing.T, res *results.Results) []snapshot.SeriesV1 {
	t.Helper()
	s, err := res.Series()
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	return s
}

func TestCoreCountAndSchedulerInvariance(t *testing.T) {
	for _, name := range []string{"hunger", "census", "beacon"} {
		t.Run(name, func(t *testing.T) {
			var want []snapshot.SeriesV1
			for _, cores := range []int{1, 2, 4} {
				for _, sched := range []string{"in_order", "random"} {
					cfg := scenarioConfig(t, name)
					cfg.Agents = 9
					cfg.TotalTicks = 12
					cfg.WarmUpTicks = 2
					cfg.Cores = cores
					cfg.Cache = cores == 4
					cfg.Scheduler, _ = scheduler.ByName(sched, 7)
					_, res := mustRun(t, cfg)
					got := series(t, res)
					if len(got) == 0 {
						t.Fatalf("no series recorded")
					}
					if want == nil {
						want = got
						continue
					}
					if !reflect.DeepEqual(got, want) {
						t.Fatalf("cores=%d scheduler=%s diverged:\n got=%v\nwant=%v", cores, sched, got, want)
					}
				}
			}
		})
	}
}

func tickGenerator() generator.Generator {
	return generator.Funcs{Agent: func(names *behavior.Names) (*behavior.Agent, error) {
		set := behavior.NewAttributeSet("time")
		_ = set.AddProperty(behavior.NewProperty("tick", 0, true, func(v behavior.View, _ *behavior.AttributeSet, _ float64) float64 {
			return float64(v.Clock().TicksSinceStart)
		}))
		a := behavior.NewAgent(names.Next())
		return a, a.AddSet(set)
	}}
}

func TestWarmUpShiftsRowsNotCount(t *testing.T) {
	const recorded, warmUp = 5, 3
	for _, cores := range []int{1, 3} {
		base := Config{Agents: 4, Cores: cores, Generator: tickGenerator(), Synced: true, Logger: quiet(),
			Results: results.Options{PropertyReducers: map[string]results.Reducer{"tick": results.Mean}}}

		plain := base
		plain.TotalTicks = recorded
		_, r0 := mustRun(t, plain)

		shifted := base
		shifted.TotalTicks = recorded + warmUp
		shifted.WarmUpTicks = warmUp
		_, rw := mustRun(t, shifted)

		if r0.Len() != recorded || rw.Len() != recorded {
			t.Fatalf("cores=%d rows plain=%d shifted=%d", cores, r0.Len(), rw.Len())
		}
		a, _ := r0.Property(results.ScopeAgents, "time", "tick")
		b, _ := rw.Property(results.ScopeAgents, "time", "tick")
		if b[0]-a[0] != warmUp {
			t.Fatalf("cores=%d row 0 plain=%v shifted=%v", cores, a[0], b[0])
		}
		if ticks := rw.Ticks(); ticks[0] != warmUp || ticks[recorded-1] != recorded+warmUp-1 {
			t.Fatalf("ticks=%v", ticks)
		}
	}
}

func TestHungerMatchesAcrossCores(t *testing.T) {
	run := func(cores int) []float64 {
		cfg := scenarioConfig(t, "hunger")
		cfg.Agents = 10
		cfg.TotalTicks = 30
		cfg.WarmUpTicks = 10
		cfg.Cores = cores
		_, res := mustRun(t, cfg)
		s, err := res.Property(results.ScopeAgents, scenario.HungerSet, scenario.HungerProperty)
		if err != nil {
			t.Fatalf("Property: %v", err)
		}
		return s
	}
	one, four := run(1), run(4)
	if len(one) != 20 || !reflect.DeepEqual(one, four) {
		t.Fatalf("1 core=%v\n4 cores=%v", one, four)
	}
	var up, down bool
	for i := 1; i < len(one); i++ {
		up = up || one[i] > one[i-1]
		down = down || one[i] < one[i-1]
	}
	if !up || !down {
		t.Fatalf("expected both rises and falls: %v", one)
	}
}

func TestBeaconAgentsSeeEnvironment(t *testing.T) {
	for _, cores := range []int{1, 3} {
		cfg := scenarioConfig(t, "beacon")
		cfg.Agents = 6
		cfg.TotalTicks = 8
		cfg.WarmUpTicks = 2
		cfg.Cores = cores
		_, res := mustRun(t, cfg)
		seen, _ := res.Property(results.ScopeAgents, scenario.BeaconSet, scenario.BeaconSeen)
		signal, _ := res.Property(results.ScopeEnvironment, scenario.BeaconSet, scenario.BeaconSignal)
		if len(seen) != 6 || len(signal) != 6 {
			t.Fatalf("cores=%d seen=%v signal=%v", cores, seen, signal)
		}
		for i := range seen {
			if seen[i]/6 != signal[i] {
				t.Fatalf("cores=%d tick %d: seen=%v signal=%v", cores, i, seen[i], signal[i])
			}
		}
		if signal[0] != 3 {
			t.Fatalf("first recorded signal=%v", signal[0])
		}
	}
}

func TestUnsyncedRunCompletes(t *testing.T) {
	cfg := scenarioConfig(t, "census")
	cfg.Agents = 7
	cfg.TotalTicks = 10
	cfg.Cores = 3
	cfg.Synced = false
	cfg.Cache = true
	_, res := mustRun(t, cfg)
	if res.Len() != 10 {
		t.Fatalf("rows=%d", res.Len())
	}
	pop, _ := res.Property(results.ScopeEnvironment, scenario.CensusSet, scenario.CensusPopulation)
	for i, v := range pop {
		if v != 7 {
			t.Fatalf("population[%d]=%v", i, v)
		}
	}
}

func TestDiskResultsReleasedIntoMemory(t *testing.T) {
	dir := t.TempDir()
	for _, cores := range []int{1, 2} {
		cfg := scenarioConfig(t, "hunger")
		cfg.Agents = 4
		cfg.TotalTicks = 6
		cfg.Cores = cores
		cfg.DiskResults = true
		cfg.ResultsDir = dir
		m, res := mustRun(t, cfg)
		if !res.Sealed() {
			t.Fatalf("results not sealed")
		}
		if _, err := os.Stat(filepath.Join(dir, m.RunID())); !os.IsNotExist(err) {
			t.Fatalf("run dir should be gone: %v", err)
		}
		s, err := res.Property(results.ScopeAgents, scenario.HungerSet, scenario.HungerProperty)
		if err != nil || len(s) != 6 {
			t.Fatalf("series=%v err=%v", s, err)
		}
		if _, err := res.Ingest(99, nil, nil); !errors.Is(err, results.ErrSealed) {
			t.Fatalf("expected ErrSealed, got %v", err)
		}
	}
}

type recordingSink struct {
	rows   []results.Row
	closed bool
}

func (s *recordingSink) WriteTick(row results.Row) error {
	s.rows = append(s.rows, row)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestSinksSeeEveryRow(t *testing.T) {
	sink := &recordingSink{}
	cfg := scenarioConfig(t, "beacon")
	cfg.Agents = 3
	cfg.TotalTicks = 5
	cfg.WarmUpTicks = 1
	cfg.Cores = 2
	cfg.Sinks = []results.Sink{sink}
	cfg.RunID = "fixed"
	m, res := mustRun(t, cfg)
	if len(sink.rows) != 4 || !sink.closed {
		t.Fatalf("rows=%d closed=%v", len(sink.rows), sink.closed)
	}
	for i, row := range sink.rows {
		if row.Tick != i+1 || row.Index != i {
			t.Fatalf("row %d=%+v", i, row)
		}
	}

	exp, err := m.Export(res)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if exp.Header.RunID != "fixed" || exp.Scenario != "beacon" || exp.Cores != 2 || len(exp.Ticks) != 4 {
		t.Fatalf("export=%+v", exp)
	}
}

func TestConfigErrors(t *testing.T) {
	gen := tickGenerator()
	cases := []Config{
		{Agents: 0, TotalTicks: 1, Generator: gen},
		{Agents: 1, TotalTicks: 1, WarmUpTicks: 2, Generator: gen},
		{Agents: 1, TotalTicks: -1, Generator: gen},
		{Agents: 1, TotalTicks: 1},
	}
	for i, cfg := range cases {
		if _, err := New(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestGeneratorErrorAbortsRun(t *testing.T) {
	boom := errors.New("boom")
	m, err := New(Config{Agents: 2, TotalTicks: 1, Logger: quiet(), Generator: generator.Funcs{
		Agent: func(*behavior.Names) (*behavior.Agent, error) { return nil, boom },
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := m.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, cores := range []int{1, 3} {
		m, err := New(Config{Agents: 3, Cores: cores, TotalTicks: 5, Generator: tickGenerator(), Synced: true, Logger: quiet()})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if _, err := m.Run(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("cores=%d: expected context.Canceled, got %v", cores, err)
		}
	}
}

func TestZeroTicks(t *testing.T) {
	for _, cores := range []int{1, 2} {
		_, res := mustRun(t, Config{Agents: 2, Cores: cores, Generator: tickGenerator(), Logger: quiet()})
		if res.Len() != 0 {
			t.Fatalf("rows=%d", res.Len())
		}
	}
}
