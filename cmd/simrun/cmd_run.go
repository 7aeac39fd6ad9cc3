package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"agentsim.ai/internal/observerproto"
	"agentsim.ai/internal/persistence/archive"
	"agentsim.ai/internal/persistence/indexdb"
	persistlog "agentsim.ai/internal/persistence/log"
	"agentsim.ai/internal/persistence/snapshot"
	"agentsim.ai/internal/sim/generator"
	"agentsim.ai/internal/sim/model"
	"agentsim.ai/internal/sim/results"
	"agentsim.ai/internal/sim/runconfig"
	"agentsim.ai/internal/sim/scenario"
	"agentsim.ai/internal/sim/scheduler"
	"agentsim.ai/internal/transport/observer"
)

type runFlags struct {
	config     string
	scenario   string
	agents     int
	cores      int
	ticks      int
	warmUp     int
	synced     bool
	cache      bool
	copyAgents bool
	disk       bool
	resultsDir string
	scheduler  string
	seed       uint64
	tickLog    string

	out     string
	observe string
	index   string
	archive string
}

func newRunCmd(logger *log.Logger) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.archive != "" && f.out == "" {
				return fmt.Errorf("--archive needs --out")
			}
			cfg, err := runconfig.Load(f.config)
			if err != nil {
				return err
			}
			f.apply(cmd, &cfg)
			cfg.Normalize()
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return execute(ctx, cfg, f.outputs(), logger)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "run file (YAML); flags override its values")
	fl.StringVar(&f.scenario, "scenario", "", "built-in scenario name")
	fl.IntVar(&f.agents, "agents", 0, "population size")
	fl.IntVar(&f.cores, "cores", 0, "worker goroutines (below 2 runs single-threaded)")
	fl.IntVar(&f.ticks, "ticks", 0, "total ticks, warm-up included")
	fl.IntVar(&f.warmUp, "warm-up", 0, "ticks run before recording starts")
	fl.BoolVar(&f.synced, "synced", true, "workers wait for each other at every tick")
	fl.BoolVar(&f.cache, "cache", false, "cache remote agent lookups within a tick")
	fl.BoolVar(&f.copyAgents, "copy-agents", false, "workers step clones of their partition")
	fl.BoolVar(&f.disk, "disk", false, "keep results in SQLite files until the run ends")
	fl.StringVar(&f.resultsDir, "results-dir", "", "base directory for disk results")
	fl.StringVar(&f.scheduler, "scheduler", "", "in_order or random")
	fl.Uint64Var(&f.seed, "seed", 0, "seed for the random scheduler")
	fl.StringVar(&f.tickLog, "tick-log", "", "directory for compressed per-tick logs (empty to disable)")
	fl.StringVar(&f.out, "out", "", "write the sealed results to this file")
	fl.StringVar(&f.observe, "observe", "", "serve the live tick stream on this address (loopback observers only)")
	fl.StringVar(&f.archive, "archive", "", "copy the --out results file into this archive directory")
	fl.StringVar(&f.index, "index", "", "record the run in this SQLite run index (empty to disable)")
	return cmd
}

// apply copies every flag the user set over cfg.
func (f runFlags) apply(cmd *cobra.Command, cfg *runconfig.Config) {
	changed := cmd.Flags().Changed
	if changed("scenario") {
		cfg.Scenario = f.scenario
	}
	if changed("agents") {
		cfg.Agents = f.agents
	}
	if changed("cores") {
		cfg.Cores = f.cores
	}
	if changed("ticks") {
		cfg.Ticks = f.ticks
	}
	if changed("warm-up") {
		cfg.WarmUpTicks = f.warmUp
	}
	if changed("synced") {
		cfg.Synced = f.synced
	}
	if changed("cache") {
		cfg.Cache = f.cache
	}
	if changed("copy-agents") {
		cfg.CopyAgents = f.copyAgents
	}
	if changed("disk") {
		cfg.DiskResults = f.disk
	}
	if changed("results-dir") {
		cfg.ResultsDir = f.resultsDir
	}
	if changed("scheduler") {
		cfg.Scheduler = f.scheduler
	}
	if changed("seed") {
		cfg.Seed = f.seed
	}
	if changed("tick-log") {
		cfg.TickLogDir = f.tickLog
	}
}

// outputs are the destinations of one run beyond the returned results.
type outputs struct {
	results string
	archive string
	observe string
	index   string
}

func (f runFlags) outputs() outputs {
	return outputs{results: f.out, archive: f.archive, observe: f.observe, index: f.index}
}

// modelConfig resolves the named scenario, scheduler and reducers of cfg.
func modelConfig(cfg runconfig.Config, logger *log.Logger) (model.Config, error) {
	sc, err := scenario.Lookup(cfg.Scenario)
	if err != nil {
		return model.Config{}, err
	}
	sched, err := scheduler.ByName(cfg.Scheduler, cfg.Seed)
	if err != nil {
		return model.Config{}, err
	}
	overrides, err := cfg.PropertyReducers()
	if err != nil {
		return model.Config{}, err
	}
	reducers := map[string]results.Reducer{}
	for name, r := range sc.Reducers {
		reducers[name] = r
	}
	for name, r := range overrides {
		reducers[name] = r
	}
	settings := generator.Settings(cfg.Settings)
	return model.Config{
		Scenario:    sc.Name,
		Agents:      cfg.Agents,
		Cores:       cfg.Cores,
		TotalTicks:  cfg.Ticks,
		WarmUpTicks: cfg.WarmUpTicks,
		Synced:      cfg.Synced,
		Cache:       cfg.Cache,
		CopyAgents:  cfg.CopyAgents,
		DiskResults: cfg.DiskResults,
		ResultsDir:  cfg.ResultsDir,
		Scheduler:   sched,
		Generator:   sc.New(settings),
		Settings:    settings,
		Results:     results.Options{PropertyReducers: reducers},
		Logger:      logger,
	}, nil
}

func execute(ctx context.Context, cfg runconfig.Config, o outputs, logger *log.Logger) error {
	mcfg, err := modelConfig(cfg, logger)
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	mcfg.RunID = runID

	var sinks []results.Sink
	var runLog *persistlog.RunLogger
	if cfg.TickLogDir != "" {
		dir := filepath.Join(cfg.TickLogDir, runID)
		sinks = append(sinks, persistlog.NewTickLogger(dir, 1000))
		runLog = persistlog.NewRunLogger(dir)
		defer runLog.Close()
		_ = runLog.WriteRun(persistlog.RunEntry{RunID: runID, Event: "start", Time: time.Now().UTC(), Scenario: mcfg.Scenario, Agents: mcfg.Agents, Cores: mcfg.Cores})
	}

	var idx *indexdb.SQLiteIndex
	if o.index != "" {
		idx, err = indexdb.OpenSQLite(o.index)
		if err != nil {
			return fmt.Errorf("index: %w", err)
		}
		defer idx.Close()
		idx.RecordRunStart(indexdb.RunRow{
			RunID:       runID,
			Scenario:    mcfg.Scenario,
			Agents:      mcfg.Agents,
			Cores:       mcfg.Cores,
			TotalTicks:  mcfg.TotalTicks,
			WarmUpTicks: mcfg.WarmUpTicks,
			Synced:      mcfg.Synced,
			StartedAt:   time.Now().UTC(),
		})
		sinks = append(sinks, idx.Sink(runID))
	}

	if o.observe != "" {
		obs := observerServer(runID, mcfg)
		ln, err := net.Listen("tcp", o.observe)
		if err != nil {
			return fmt.Errorf("observe: %w", err)
		}
		srv := &http.Server{Handler: obs.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("observer server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Printf("observer stream on ws://%s/v1/ticks", ln.Addr())
		sinks = append(sinks, obs)
	}

	mcfg.Sinks = sinks
	m, err := model.New(mcfg)
	if err != nil {
		return err
	}

	res, runErr := m.Run(ctx)
	if runLog != nil {
		entry := persistlog.RunEntry{RunID: runID, Event: "done", Time: time.Now().UTC()}
		if runErr != nil {
			entry.Event = "failed"
			entry.Error = runErr.Error()
		} else {
			entry.Rows = res.Len()
		}
		_ = runLog.WriteRun(entry)
	}
	if idx != nil {
		rows := 0
		if res != nil {
			rows = res.Len()
		}
		idx.RecordRunEnd(runID, rows, runErr)
	}
	if runErr != nil {
		return runErr
	}

	if o.results != "" {
		exp, err := m.Export(res)
		if err != nil {
			return err
		}
		if err := snapshot.Write(o.results, exp); err != nil {
			return fmt.Errorf("write %s: %w", o.results, err)
		}
		logger.Printf("results written path=%s rows=%d", o.results, exp.Header.Rows)
		if o.archive != "" {
			archived, err := archive.ArchiveResults(o.archive, o.results, exp)
			if err != nil {
				return fmt.Errorf("archive: %w", err)
			}
			logger.Printf("results archived path=%s", archived)
		}
	}
	return nil
}

func observerServer(runID string, mcfg model.Config) *observer.Server {
	return observer.NewServer(runID, observerproto.RunInfo{
		Scenario:    mcfg.Scenario,
		Agents:      mcfg.Agents,
		Cores:       mcfg.Cores,
		TotalTicks:  mcfg.TotalTicks,
		WarmUpTicks: mcfg.WarmUpTicks,
		Synced:      mcfg.Synced,
	}, mcfg.Logger)
}
