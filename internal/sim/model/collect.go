package model

import (
	"fmt"
	"sort"

	"agentsim.ai/internal/sim/behavior"
	"agentsim.ai/internal/sim/clock"
	"agentsim.ai/internal/sim/results"
)

type tickBuf struct {
	agents  []results.Record
	env     *results.Record
	reports int
}

// collector orders tick reports and ingests each recorded tick once every
// expected report arrived. Agent records are sorted into population order so
// reductions do not depend on partitioning.
type collector struct {
	res   *results.Results
	sinks []results.Sink
	order map[string]int

	expect  int
	pending map[int]*tickBuf
	next    int
	end     int
}

func newCollector(res *results.Results, sinks []results.Sink, population []*behavior.Agent, clk clock.Clock) *collector {
	order := make(map[string]int, len(population))
	for i, a := range population {
		order[a.Name()] = i
	}
	return &collector{
		res:     res,
		sinks:   sinks,
		order:   order,
		expect:  1,
		pending: map[int]*tickBuf{},
		next:    clk.WarmUpTicks(),
		end:     clk.TotalTicks(),
	}
}

// add buffers one report; ingest happens in tick order.
func (c *collector) add(rep results.Report) error {
	if rep.Tick < c.next || rep.Tick >= c.end {
		return fmt.Errorf("model: report from %s for tick %d outside [%d,%d)", rep.Source, rep.Tick, c.next, c.end)
	}
	buf := c.pending[rep.Tick]
	if buf == nil {
		buf = &tickBuf{}
		c.pending[rep.Tick] = buf
	}
	buf.agents = append(buf.agents, rep.Agents...)
	if rep.Environment != nil {
		buf.env = rep.Environment
	}
	buf.reports++
	if buf.reports > c.expect {
		return fmt.Errorf("model: tick %d got %d reports, want %d", rep.Tick, buf.reports, c.expect)
	}
	for {
		buf := c.pending[c.next]
		if buf == nil || buf.reports < c.expect {
			return nil
		}
		delete(c.pending, c.next)
		if err := c.ingest(c.next, buf.agents, buf.env); err != nil {
			return err
		}
	}
}

func (c *collector) ingest(tick int, agents []results.Record, env *results.Record) error {
	sort.SliceStable(agents, func(i, j int) bool {
		return c.order[agents[i].Entity] < c.order[agents[j].Entity]
	})
	row, err := c.res.Ingest(tick, agents, env)
	if err != nil {
		return fmt.Errorf("model: ingest tick %d: %w", tick, err)
	}
	for _, s := range c.sinks {
		if err := s.WriteTick(row); err != nil {
			return fmt.Errorf("model: sink: %w", err)
		}
	}
	c.next = tick + 1
	return nil
}

// finish reports ticks that never completed.
func (c *collector) finish() error {
	if c.next != c.end {
		return fmt.Errorf("model: run ended at tick %d, want %d", c.next, c.end)
	}
	return nil
}
