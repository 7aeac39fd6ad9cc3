package behavior

import "fmt"

type entity struct {
	name string
	sets *Registry[*AttributeSet]
}

func newEntity(name string) entity {
	return entity{name: name, sets: NewRegistry[*AttributeSet]()}
}

func (e *entity) Name() string { return e.name }

func (e *entity) AddSet(s *AttributeSet) error {
	if s == nil {
		return fmt.Errorf("%s: nil attribute set", e.name)
	}
	if err := e.sets.Add(s); err != nil {
		return fmt.Errorf("%s: %w", e.name, err)
	}
	return nil
}

// Set returns nil when no attribute set has that name.
func (e *entity) Set(name string) *AttributeSet {
	s, ok := e.sets.Get(name)
	if !ok {
		return nil
	}
	return s
}

func (e *entity) Sets() []*AttributeSet { return e.sets.Items() }

// Value looks up a property value as set/property.
func (e *entity) Value(set, property string) (float64, bool) {
	s := e.Set(set)
	if s == nil {
		return 0, false
	}
	return s.Value(property)
}

func (e *entity) Run(v View) {
	for _, s := range e.sets.Items() {
		s.Run(v)
	}
}

func (e *entity) clone() entity {
	return entity{name: e.name, sets: cloneRegistry(e.sets, (*AttributeSet).Clone)}
}

type Agent struct {
	entity
}

func NewAgent(name string) *Agent {
	return &Agent{entity: newEntity(name)}
}

// Clone returns a deep duplicate sharing no mutable state with a.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	return &Agent{entity: a.entity.clone()}
}

type Environment struct {
	entity
}

func NewEnvironment(name string) *Environment {
	return &Environment{entity: newEntity(name)}
}

func (e *Environment) Clone() *Environment {
	if e == nil {
		return nil
	}
	return &Environment{entity: e.entity.clone()}
}

// CloneAgents duplicates every agent in order.
func CloneAgents(agents []*Agent) []*Agent {
	out := make([]*Agent, len(agents))
	for i, a := range agents {
		out[i] = a.Clone()
	}
	return out
}
