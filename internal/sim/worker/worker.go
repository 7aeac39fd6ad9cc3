// Package worker steps one partition of the population per tick and talks to
// the coordinator through a protocol.Interface.
package worker

import (
	"context"
	"fmt"
	"io"
	"log"

	"agentsim.ai/internal/protocol"
	"agentsim.ai/internal/sim/behavior"
	"agentsim.ai/internal/sim/clock"
	"agentsim.ai/internal/sim/coordinator"
	"agentsim.ai/internal/sim/results"
	"agentsim.ai/internal/sim/scheduler"
	"agentsim.ai/internal/sim/store"
)

type Config struct {
	Interface *protocol.Interface
	Clock     clock.Clock
	Scheduler scheduler.Scheduler
	// Partition is the agents this worker owns, in population order.
	Partition []*behavior.Agent
	Synced    bool
	Cache     bool
	// CopyAgents makes the worker own duplicates of its partition.
	CopyAgents bool

	// Population and Environment seed the local store used for lookups in
	// unsynced mode. Agents owned by other workers are never refreshed there
	// and keep their generated values for the whole run.
	Population  []*behavior.Agent
	Environment *behavior.Environment

	Reports chan<- results.Report
	Logger  *log.Logger
}

type Worker struct {
	cfg    Config
	name   string
	logger *log.Logger

	agents []*behavior.Agent
	cursor clock.Cursor
	cache  *store.Cache

	local *store.AgentStore
	env   *behavior.Environment
}

func New(cfg Config) (*Worker, error) {
	if cfg.Interface == nil {
		return nil, fmt.Errorf("worker: nil interface")
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = scheduler.InOrder()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	w := &Worker{
		cfg:    cfg,
		name:   cfg.Interface.Name(),
		logger: logger,
		agents: cfg.Partition,
		cursor: cfg.Clock.Cursor(),
	}
	if cfg.CopyAgents {
		w.agents = behavior.CloneAgents(cfg.Partition)
	}
	if cfg.Cache {
		w.cache = store.NewCache()
	}
	if !cfg.Synced {
		w.local = store.NewAgentStore(false)
		w.local.PutAll(behavior.CloneAgents(cfg.Population))
		// Owned agents are read live.
		w.local.PutAll(w.agents)
		w.env = cfg.Environment.Clone()
	}
	return w, nil
}

func (w *Worker) Name() string { return w.name }

// Agents returns the agents this worker steps.
func (w *Worker) Agents() []*behavior.Agent { return w.agents }

// CacheStats reports lifetime cache hits and misses; zero without a cache.
func (w *Worker) CacheStats() (hits, misses uint64) {
	if w.cache == nil {
		return 0, 0
	}
	return w.cache.Stats()
}

func (w *Worker) Run(ctx context.Context) error {
	for !w.cfg.Clock.Done(w.cursor) {
		if err := w.tick(ctx); err != nil {
			return err
		}
	}
	hits, misses := w.CacheStats()
	w.logger.Printf("worker %s done agents=%d cache_hits=%d cache_misses=%d", w.name, len(w.agents), hits, misses)
	return nil
}

func (w *Worker) tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tick := w.cursor.TicksSinceStart
	if w.cache != nil {
		w.cache.Clear()
	}
	if !w.cfg.Synced {
		w.drainProceed()
	}

	v := &view{w: w, ctx: ctx}
	err := w.cfg.Scheduler.Schedule(w.agents, func(a *behavior.Agent) error {
		v.self = a
		a.Run(v)
		return v.err
	})
	if err == nil {
		err = v.err
	}
	if err != nil {
		return fmt.Errorf("tick %d: %w", tick, err)
	}

	if w.cursor.IsWarmedUp && w.cfg.Reports != nil {
		rep := results.Report{Source: w.name, Tick: tick, Agents: make([]results.Record, 0, len(w.agents))}
		for _, a := range w.agents {
			rep.Agents = append(rep.Agents, results.CaptureAgent(a))
		}
		select {
		case w.cfg.Reports <- rep:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if w.cfg.Synced {
		if _, err := w.cfg.Interface.Send(protocol.RequestPush, behavior.CloneAgents(w.agents)); err != nil {
			return err
		}
	}
	if _, err := w.cfg.Interface.Send(protocol.RequestTickDone, tick); err != nil {
		return err
	}
	w.cfg.Clock.Advance(&w.cursor)
	if w.cfg.Synced && !w.cfg.Clock.Done(w.cursor) {
		return w.awaitProceed(ctx, w.cursor.TicksSinceStart)
	}
	return nil
}

func (w *Worker) awaitProceed(ctx context.Context, tick int) error {
	resp, err := w.cfg.Interface.Receive(ctx)
	if err != nil {
		return err
	}
	if resp.Type != protocol.ResponseProceed {
		return fmt.Errorf("%w: %s awaiting proceed got %s", protocol.ErrUnmatchedResponse, w.name, resp.Type)
	}
	p, _ := resp.Payload.(coordinator.Proceed)
	if p.Tick != tick {
		return fmt.Errorf("worker %s: proceed for tick %d, want %d", w.name, p.Tick, tick)
	}
	return nil
}

// drainProceed refreshes the local environment from any proceed broadcasts
// that already arrived, without blocking.
func (w *Worker) drainProceed() {
	for {
		resp, ok := w.cfg.Interface.TryReceive()
		if !ok {
			return
		}
		if p, ok := resp.Payload.(coordinator.Proceed); ok && p.Environment != nil {
			w.env = p.Environment
		}
	}
}
