package results

import "agentsim.ai/internal/sim/behavior"

type Kind int

const (
	KindProperty Kind = iota + 1
	KindPreEvent
	KindPostEvent
)

func (k Kind) String() string {
	switch k {
	case KindProperty:
		return "property"
	case KindPreEvent:
		return "pre_event"
	case KindPostEvent:
		return "post_event"
	default:
		return "unknown"
	}
}

// Value is one recorded item of one entity at one tick.
type Value struct {
	Set    string
	Kind   Kind
	Name   string
	Number float64
	Fired  bool
}

// Record is everything an entity recorded on one tick.
type Record struct {
	Entity string
	Values []Value
}

func CaptureAgent(a *behavior.Agent) Record {
	return capture(a.Name(), a.Sets())
}

func CaptureEnvironment(e *behavior.Environment) Record {
	return capture(e.Name(), e.Sets())
}

func capture(name string, sets []*behavior.AttributeSet) Record {
	rec := Record{Entity: name}
	for _, s := range sets {
		for _, e := range s.PreEvents() {
			if e.IsRecorded() {
				rec.Values = append(rec.Values, Value{Set: s.Name(), Kind: KindPreEvent, Name: e.Name(), Fired: s.PreFired(e.Name())})
			}
		}
		for _, p := range s.Properties() {
			if p.IsRecorded() {
				rec.Values = append(rec.Values, Value{Set: s.Name(), Kind: KindProperty, Name: p.Name(), Number: p.Get()})
			}
		}
		for _, e := range s.PostEvents() {
			if e.IsRecorded() {
				rec.Values = append(rec.Values, Value{Set: s.Name(), Kind: KindPostEvent, Name: e.Name(), Fired: s.PostFired(e.Name())})
			}
		}
	}
	return rec
}

// Report carries one execution unit's records for one tick to the model.
type Report struct {
	Source      string
	Tick        int
	Agents      []Record
	Environment *Record
}
