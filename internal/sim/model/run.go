package model

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"agentsim.ai/internal/protocol"
	"agentsim.ai/internal/sim/behavior"
	"agentsim.ai/internal/sim/coordinator"
	"agentsim.ai/internal/sim/generator"
	"agentsim.ai/internal/sim/results"
	"agentsim.ai/internal/sim/store"
	"agentsim.ai/internal/sim/worker"
)

// runSingle steps everything on the calling goroutine. Other agents are read
// from the previous tick's snapshot and the environment from a tick-scoped
// duplicate, which matches what synced workers see.
func (m *Model) runSingle(ctx context.Context, env *behavior.Environment, agents []*behavior.Agent, col *collector) error {
	if m.cfg.CopyAgents {
		agents = behavior.CloneAgents(agents)
	}
	snap := store.NewAgentStore(false)
	snap.PutAll(behavior.CloneAgents(agents))

	for cur := m.clock.Cursor(); !m.clock.Done(cur); m.clock.Advance(&cur) {
		if err := ctx.Err(); err != nil {
			return err
		}
		env.Run(store.NewStaticView(cur, env, snap))
		v := store.NewStaticView(cur, env.Clone(), snap)
		err := m.cfg.Scheduler.Schedule(agents, func(a *behavior.Agent) error {
			a.Run(v.WithSelf(a))
			return nil
		})
		if err != nil {
			return fmt.Errorf("model: tick %d: %w", cur.TicksSinceStart, err)
		}
		if cur.IsWarmedUp {
			recs := make([]results.Record, len(agents))
			for i, a := range agents {
				recs[i] = results.CaptureAgent(a)
			}
			envRec := results.CaptureEnvironment(env)
			if err := col.ingest(cur.TicksSinceStart, recs, &envRec); err != nil {
				return err
			}
		}
		snap = store.NewAgentStore(false)
		snap.PutAll(behavior.CloneAgents(agents))
	}
	return nil
}

func workerName(i int) string { return fmt.Sprintf("w%d", i+1) }

func (m *Model) runMulti(ctx context.Context, env *behavior.Environment, agents []*behavior.Agent, col *collector) error {
	parts := generator.Partition(agents, m.cfg.Cores)
	ctrl := protocol.NewController()
	defer ctrl.Close()

	names := make([]string, len(parts))
	for i := range parts {
		names[i] = workerName(i)
	}
	reports := make(chan results.Report, len(parts)+1)

	coord, err := coordinator.New(coordinator.Config{
		Controller:  ctrl,
		Clock:       m.clock,
		Environment: env,
		Agents:      agents,
		Workers:     names,
		Synced:      m.cfg.Synced,
		CopyAgents:  m.cfg.CopyAgents,
		Reports:     reports,
		Logger:      m.logger,
	})
	if err != nil {
		return fmt.Errorf("model: %w", err)
	}
	coord.Prime()

	workers := make([]*worker.Worker, len(parts))
	for i, part := range parts {
		iface, err := ctrl.Interface(names[i])
		if err != nil {
			return fmt.Errorf("model: %w", err)
		}
		workers[i], err = worker.New(worker.Config{
			Interface:   iface,
			Clock:       m.clock,
			Scheduler:   m.cfg.Scheduler,
			Partition:   part,
			Synced:      m.cfg.Synced,
			Cache:       m.cfg.Cache,
			CopyAgents:  m.cfg.CopyAgents,
			Population:  agents,
			Environment: coord.Environment(),
			Reports:     reports,
			Logger:      m.logger,
		})
		if err != nil {
			return fmt.Errorf("model: %w", err)
		}
	}
	col.expect = len(workers) + 1

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := coord.Run(gctx); err != nil {
			return fmt.Errorf("coordinator: %w", err)
		}
		return nil
	})
	for _, w := range workers {
		g.Go(func() error {
			if err := w.Run(gctx); err != nil {
				return fmt.Errorf("worker %s: %w", w.Name(), err)
			}
			return nil
		})
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
		close(reports)
	}()

	var collectErr error
	for rep := range reports {
		if collectErr != nil {
			continue
		}
		if err := col.add(rep); err != nil {
			collectErr = err
			cancel()
		}
	}
	runErr := <-waitErr
	if collectErr != nil {
		return collectErr
	}
	return runErr
}
