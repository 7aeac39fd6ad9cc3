package behavior

import "fmt"

type AttributeSet struct {
	name       string
	preEvents  *Registry[Event]
	properties *Registry[Property]
	postEvents *Registry[Event]

	preFired  map[string]bool
	postFired map[string]bool
}

func NewAttributeSet(name string) *AttributeSet {
	return &AttributeSet{
		name:       name,
		preEvents:  NewRegistry[Event](),
		properties: NewRegistry[Property](),
		postEvents: NewRegistry[Event](),
		preFired:   map[string]bool{},
		postFired:  map[string]bool{},
	}
}

func (s *AttributeSet) Name() string { return s.name }

func (s *AttributeSet) AddPreEvent(e Event) error {
	if err := s.preEvents.Add(e); err != nil {
		return fmt.Errorf("attribute set %s: pre-event: %w", s.name, err)
	}
	return nil
}

func (s *AttributeSet) AddProperty(p Property) error {
	if err := s.properties.Add(p); err != nil {
		return fmt.Errorf("attribute set %s: property: %w", s.name, err)
	}
	return nil
}

func (s *AttributeSet) AddPostEvent(e Event) error {
	if err := s.postEvents.Add(e); err != nil {
		return fmt.Errorf("attribute set %s: post-event: %w", s.name, err)
	}
	return nil
}

func (s *AttributeSet) PreEvents() []Event     { return s.preEvents.Items() }
func (s *AttributeSet) Properties() []Property { return s.properties.Items() }
func (s *AttributeSet) PostEvents() []Event    { return s.postEvents.Items() }

// Property returns nil when no property has that name.
func (s *AttributeSet) Property(name string) Property {
	if s == nil {
		return nil
	}
	p, ok := s.properties.Get(name)
	if !ok {
		return nil
	}
	return p
}

func (s *AttributeSet) Value(name string) (float64, bool) {
	p := s.Property(name)
	if p == nil {
		return 0, false
	}
	return p.Get(), true
}

// SetValue reports false when no property has that name.
func (s *AttributeSet) SetValue(name string, v float64) bool {
	p := s.Property(name)
	if p == nil {
		return false
	}
	p.Set(v)
	return true
}

// PreFired reports whether the named pre-event fired on the last Run.
func (s *AttributeSet) PreFired(name string) bool  { return s.preFired[name] }
func (s *AttributeSet) PostFired(name string) bool { return s.postFired[name] }

// Run executes pre-events, properties, then post-events, each in insertion
// order.
func (s *AttributeSet) Run(v View) {
	runEvents(v, s, s.preEvents.Items(), s.preFired)
	for _, p := range s.properties.Items() {
		p.Run(v, s)
	}
	runEvents(v, s, s.postEvents.Items(), s.postFired)
}

func runEvents(v View, s *AttributeSet, events []Event, fired map[string]bool) {
	for _, e := range events {
		ok := e.IsTriggered(v, s)
		fired[e.Name()] = ok
		if ok {
			e.Run(v, s)
		}
	}
}

func (s *AttributeSet) Clone() *AttributeSet {
	if s == nil {
		return nil
	}
	out := &AttributeSet{
		name:       s.name,
		preEvents:  cloneRegistry(s.preEvents, Event.Clone),
		properties: cloneRegistry(s.properties, Property.Clone),
		postEvents: cloneRegistry(s.postEvents, Event.Clone),
		preFired:   make(map[string]bool, len(s.preFired)),
		postFired:  make(map[string]bool, len(s.postFired)),
	}
	for k, v := range s.preFired {
		out.preFired[k] = v
	}
	for k, v := range s.postFired {
		out.postFired[k] = v
	}
	return out
}
