// Package coordinator owns the canonical environment and the agent directory
// of a multi-core run. It answers worker lookups, collects pushed agents and
// runs the per-tick barrier.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"agentsim.ai/internal/protocol"
	"agentsim.ai/internal/sim/behavior"
	"agentsim.ai/internal/sim/clock"
	"agentsim.ai/internal/sim/results"
	"agentsim.ai/internal/sim/store"
)

var (
	ErrStaleTickDone   = errors.New("coordinator: tick done for a released tick")
	ErrUnknownWorker   = errors.New("coordinator: request from unknown worker")
	ErrDuplicateReport = errors.New("coordinator: duplicate tick done")
)

type Config struct {
	Controller  *protocol.Controller
	Clock       clock.Clock
	Environment *behavior.Environment
	// Agents is the generated population in population order.
	Agents  []*behavior.Agent
	Workers []string
	// Synced workers push their partition every tick. Unsynced workers never
	// push, so the directory keeps the generated agents for the whole run.
	Synced bool
	// CopyAgents stores a fresh duplicate of every pushed agent.
	CopyAgents bool
	// Reports receives the environment record of every recorded tick.
	Reports chan<- results.Report
	Logger  *log.Logger
}

type Coordinator struct {
	cfg    Config
	logger *log.Logger

	env    *behavior.Environment
	cursor clock.Cursor
	primed bool

	dir    *store.AgentStore
	staged []*behavior.Agent

	workers map[string]struct{}
	// done[tick] holds the workers that reported that tick.
	done    map[int]map[string]struct{}
	barrier int

	queued []results.Report

	served uint64
}

func New(cfg Config) (*Coordinator, error) {
	if cfg.Controller == nil {
		return nil, fmt.Errorf("coordinator: nil controller")
	}
	if cfg.Environment == nil {
		return nil, fmt.Errorf("coordinator: nil environment")
	}
	if len(cfg.Workers) == 0 {
		return nil, fmt.Errorf("coordinator: no workers")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	c := &Coordinator{
		cfg:     cfg,
		logger:  logger,
		env:     cfg.Environment,
		cursor:  cfg.Clock.Cursor(),
		dir:     store.NewAgentStore(cfg.CopyAgents),
		workers: make(map[string]struct{}, len(cfg.Workers)),
		done:    map[int]map[string]struct{}{},
	}
	seed := cfg.Agents
	if !cfg.CopyAgents {
		seed = behavior.CloneAgents(seed)
	}
	c.dir.PutAll(seed)
	for _, w := range cfg.Workers {
		c.workers[w] = struct{}{}
	}
	return c, nil
}

// Environment returns the canonical environment. Only safe before Run starts
// or after it returned.
func (c *Coordinator) Environment() *behavior.Environment { return c.env }

// Directory returns the agent directory. Only safe once Run returned.
func (c *Coordinator) Directory() *store.AgentStore { return c.dir }

// Prime steps the environment for tick 0. Call it before any worker starts.
func (c *Coordinator) Prime() {
	if c.primed || c.cfg.Clock.Done(c.cursor) {
		return
	}
	c.primed = true
	c.stepEnvironment()
}

func (c *Coordinator) stepEnvironment() {
	c.env.Run(store.NewStaticView(c.cursor, c.env, c.dir))
	if c.cursor.IsWarmedUp {
		rec := results.CaptureEnvironment(c.env)
		c.queued = append(c.queued, results.Report{
			Source:      protocol.CoordinatorName,
			Tick:        c.cursor.TicksSinceStart,
			Environment: &rec,
		})
	}
}

// Run serves requests until every tick is released, the request queue is
// closed, or ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	c.Prime()
	if err := c.flush(ctx); err != nil {
		return err
	}
	for !c.cfg.Clock.Done(c.cursor) {
		if err := ctx.Err(); err != nil {
			return err
		}
		req, err := c.cfg.Controller.Next(ctx)
		if err != nil {
			if errors.Is(err, protocol.ErrClosed) {
				return nil
			}
			return err
		}
		if err := c.dispatch(req); err != nil {
			return err
		}
		if err := c.flush(ctx); err != nil {
			return err
		}
	}
	c.logger.Printf("coordinator done ticks=%d served=%d", c.cfg.Clock.TotalTicks(), c.served)
	return nil
}

func (c *Coordinator) flush(ctx context.Context) error {
	for len(c.queued) > 0 {
		if c.cfg.Reports == nil {
			c.queued = nil
			return nil
		}
		select {
		case c.cfg.Reports <- c.queued[0]:
			c.queued = c.queued[1:]
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *Coordinator) dispatch(req protocol.Request) error {
	if _, ok := c.workers[req.Requester]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownWorker, req.Requester)
	}
	switch req.Type {
	case protocol.RequestAgent:
		name, _ := req.Payload.(string)
		return c.reply(req, protocol.ResponseAgent, c.dir.Get(name).Clone())
	case protocol.RequestFilter:
		q, _ := req.Payload.(FilterQuery)
		return c.reply(req, protocol.ResponseFilter, behavior.CloneAgents(c.dir.Filter(q.Keep)))
	case protocol.RequestEnvironment:
		return c.reply(req, protocol.ResponseEnvironment, c.env.Clone())
	case protocol.RequestPush:
		agents, _ := req.Payload.([]*behavior.Agent)
		c.staged = append(c.staged, agents...)
		return nil
	case protocol.RequestTickDone:
		tick, ok := req.Payload.(int)
		if !ok {
			return fmt.Errorf("coordinator: tick done from %s without tick", req.Requester)
		}
		return c.tickDone(req.Requester, tick)
	default:
		if !req.Type.ExpectsReply() {
			return nil
		}
		return c.reply(req, protocol.ResponseEmpty, nil)
	}
}

func (c *Coordinator) reply(req protocol.Request, t protocol.ResponseType, payload any) error {
	c.served++
	return c.cfg.Controller.Respond(req.Reply(t, payload))
}

func (c *Coordinator) tickDone(worker string, tick int) error {
	if tick < c.barrier {
		return fmt.Errorf("%w: worker=%s tick=%d barrier=%d", ErrStaleTickDone, worker, tick, c.barrier)
	}
	if tick >= c.cfg.Clock.TotalTicks() {
		return fmt.Errorf("coordinator: worker %s reported tick %d past the end (%d ticks)", worker, tick, c.cfg.Clock.TotalTicks())
	}
	set := c.done[tick]
	if set == nil {
		set = make(map[string]struct{}, len(c.workers))
		c.done[tick] = set
	}
	if _, dup := set[worker]; dup {
		return fmt.Errorf("%w: worker=%s tick=%d", ErrDuplicateReport, worker, tick)
	}
	set[worker] = struct{}{}

	// Unsynced workers run ahead; release every complete barrier in order.
	for len(c.done[c.barrier]) == len(c.workers) {
		if err := c.release(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) release() error {
	delete(c.done, c.barrier)
	c.barrier++
	for _, a := range c.staged {
		c.dir.Put(a)
	}
	c.staged = c.staged[:0]

	c.cfg.Clock.Advance(&c.cursor)
	if c.cfg.Clock.Done(c.cursor) {
		return nil
	}
	c.stepEnvironment()
	next := c.cursor.TicksSinceStart
	return c.cfg.Controller.Broadcast(protocol.ResponseProceed, func(string) any {
		p := Proceed{Tick: next}
		if !c.cfg.Synced {
			p.Environment = c.env.Clone()
		}
		return p
	})
}
