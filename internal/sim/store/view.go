package store

import (
	"agentsim.ai/internal/sim/behavior"
	"agentsim.ai/internal/sim/clock"
)

// StaticView answers behavior lookups from a fixed agent store and
// environment. Other agents come from the store as stored; only Self is the
// live instance being stepped.
type StaticView struct {
	cursor clock.Cursor
	self   *behavior.Agent
	env    *behavior.Environment
	agents *AgentStore
}

func NewStaticView(cur clock.Cursor, env *behavior.Environment, agents *AgentStore) *StaticView {
	return &StaticView{cursor: cur, env: env, agents: agents}
}

// WithSelf returns a copy of v stepping a.
func (v *StaticView) WithSelf(a *behavior.Agent) *StaticView {
	cp := *v
	cp.self = a
	return &cp
}

func (v *StaticView) Clock() clock.Cursor                { return v.cursor }
func (v *StaticView) Self() *behavior.Agent              { return v.self }
func (v *StaticView) Environment() *behavior.Environment { return v.env }
func (v *StaticView) Agent(name string) *behavior.Agent  { return v.agents.Get(name) }
func (v *StaticView) Filter(_ string, keep func(*behavior.Agent) bool) []*behavior.Agent {
	return v.agents.Filter(keep)
}
