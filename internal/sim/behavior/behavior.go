// Package behavior is the object model stepped by the runtime: agents and the
// environment own ordered attribute sets, each a bundle of pre-events,
// properties and post-events supplied as small function-typed values.
package behavior

import (
	"fmt"

	"agentsim.ai/internal/sim/clock"
)

// View is what a behavior sees while it runs. Lookups of other agents and of
// the environment return duplicates that must be treated as read-only; a miss
// returns nil (or an empty slice for Filter).
type View interface {
	Clock() clock.Cursor
	// Self is the agent being stepped, nil while the environment runs.
	Self() *Agent
	Environment() *Environment
	Agent(name string) *Agent
	// Filter returns the agents accepted by keep, in population order. name
	// identifies the filter for caching and must be stable for a given keep.
	Filter(name string, keep func(*Agent) bool) []*Agent
}

type Property interface {
	Name() string
	IsRecorded() bool
	Get() float64
	Set(v float64)
	Run(v View, set *AttributeSet)
	Clone() Property
}

type Event interface {
	Name() string
	IsRecorded() bool
	IsTriggered(v View, set *AttributeSet) bool
	Run(v View, set *AttributeSet)
	Clone() Event
}

// PropertyFunc computes a property's next value from its current one.
type PropertyFunc func(v View, set *AttributeSet, current float64) float64

type TriggerFunc func(v View, set *AttributeSet) bool

type EventFunc func(v View, set *AttributeSet)

type FuncProperty struct {
	name     string
	recorded bool
	value    float64
	step     PropertyFunc
}

// NewProperty returns a property whose Run replaces its value with step's
// result. A nil step makes the property constant.
func NewProperty(name string, initial float64, recorded bool, step PropertyFunc) *FuncProperty {
	return &FuncProperty{name: name, recorded: recorded, value: initial, step: step}
}

func (p *FuncProperty) Name() string     { return p.name }
func (p *FuncProperty) IsRecorded() bool { return p.recorded }
func (p *FuncProperty) Get() float64     { return p.value }
func (p *FuncProperty) Set(v float64)    { p.value = v }
func (p *FuncProperty) Clone() Property  { cp := *p; return &cp }

func (p *FuncProperty) Run(v View, set *AttributeSet) {
	if p.step == nil {
		return
	}
	p.value = p.step(v, set, p.value)
}

type FuncEvent struct {
	name     string
	recorded bool
	trigger  TriggerFunc
	run      EventFunc
}

// NewEvent returns an event that runs fn whenever trigger reports true. A nil
// trigger always fires.
func NewEvent(name string, recorded bool, trigger TriggerFunc, fn EventFunc) *FuncEvent {
	return &FuncEvent{name: name, recorded: recorded, trigger: trigger, run: fn}
}

func (e *FuncEvent) Name() string     { return e.name }
func (e *FuncEvent) IsRecorded() bool { return e.recorded }
func (e *FuncEvent) Clone() Event     { cp := *e; return &cp }

func (e *FuncEvent) IsTriggered(v View, set *AttributeSet) bool {
	if e.trigger == nil {
		return true
	}
	return e.trigger(v, set)
}

func (e *FuncEvent) Run(v View, set *AttributeSet) {
	if e.run != nil {
		e.run(v, set)
	}
}

// Names hands out sequential default names. Each generator owns its own
// allocator so independent runs in one process never share a counter.
type Names struct {
	prefix string
	next   uint64
}

func NewNames(prefix string) *Names {
	return &Names{prefix: prefix}
}

func (n *Names) Next() string {
	n.next++
	return fmt.Sprintf("%s-%d", n.prefix, n.next)
}

// Issued reports how many names have been handed out.
func (n *Names) Issued() uint64 { return n.next }
