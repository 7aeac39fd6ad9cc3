// Package store holds the name-indexed agent maps used by the coordinator
// directory and the per-worker caches. Neither type is goroutine-safe: each
// instance belongs to exactly one goroutine.
package store

import "agentsim.ai/internal/sim/behavior"

// AgentStore maps agent names to instances and remembers first-insertion
// order, which is population order when seeded from the generated agents.
type AgentStore struct {
	copy   bool
	agents map[string]*behavior.Agent
	order  []string
}

// NewAgentStore returns an empty store. With copyOnPut set, every Put stores a
// deep duplicate instead of the caller's instance.
func NewAgentStore(copyOnPut bool) *AgentStore {
	return &AgentStore{copy: copyOnPut, agents: map[string]*behavior.Agent{}}
}

func (s *AgentStore) CopiesOnPut() bool { return s.copy }

func (s *AgentStore) Put(a *behavior.Agent) {
	if a == nil {
		return
	}
	if s.copy {
		a = a.Clone()
	}
	name := a.Name()
	if _, ok := s.agents[name]; !ok {
		s.order = append(s.order, name)
	}
	s.agents[name] = a
}

func (s *AgentStore) PutAll(agents []*behavior.Agent) {
	for _, a := range agents {
		s.Put(a)
	}
}

// Get returns the stored instance, or nil.
func (s *AgentStore) Get(name string) *behavior.Agent {
	if s == nil {
		return nil
	}
	return s.agents[name]
}

// Filter returns stored instances accepted by keep, in insertion order.
func (s *AgentStore) Filter(keep func(*behavior.Agent) bool) []*behavior.Agent {
	if s == nil {
		return nil
	}
	out := make([]*behavior.Agent, 0)
	for _, name := range s.order {
		a := s.agents[name]
		if keep == nil || keep(a) {
			out = append(out, a)
		}
	}
	return out
}

func (s *AgentStore) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

func (s *AgentStore) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Snapshot returns deep duplicates of every agent, in insertion order.
func (s *AgentStore) Snapshot() []*behavior.Agent {
	if s == nil {
		return nil
	}
	out := make([]*behavior.Agent, len(s.order))
	for i, name := range s.order {
		out[i] = s.agents[name].Clone()
	}
	return out
}
