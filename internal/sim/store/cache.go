package store

import "agentsim.ai/internal/sim/behavior"

// Cache memoizes one tick's agent lookups, named filters and environment
// snapshot. Clear it at the start of every tick.
type Cache struct {
	agents  map[string]*behavior.Agent
	filters map[string][]*behavior.Agent
	env     *behavior.Environment

	hits   uint64
	misses uint64
}

func NewCache() *Cache {
	return &Cache{
		agents:  map[string]*behavior.Agent{},
		filters: map[string][]*behavior.Agent{},
	}
}

func (c *Cache) Agent(name string) (*behavior.Agent, bool) {
	a, ok := c.agents[name]
	c.count(ok)
	return a, ok
}

// PutAgent caches a lookup result; a nil agent caches the miss.
func (c *Cache) PutAgent(name string, a *behavior.Agent) { c.agents[name] = a }

func (c *Cache) Filter(name string) ([]*behavior.Agent, bool) {
	as, ok := c.filters[name]
	c.count(ok)
	return as, ok
}

func (c *Cache) PutFilter(name string, agents []*behavior.Agent) {
	if agents == nil {
		agents = []*behavior.Agent{}
	}
	c.filters[name] = agents
}

func (c *Cache) Environment() (*behavior.Environment, bool) {
	ok := c.env != nil
	c.count(ok)
	return c.env, ok
}

func (c *Cache) PutEnvironment(e *behavior.Environment) { c.env = e }

func (c *Cache) Clear() {
	clear(c.agents)
	clear(c.filters)
	c.env = nil
}

// Stats returns lifetime hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) { return c.hits, c.misses }

func (c *Cache) count(hit bool) {
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}
