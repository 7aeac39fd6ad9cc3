// Package generator builds the population and environment of a run.
package generator

import (
	"fmt"

	"agentsim.ai/internal/sim/behavior"
)

// Settings are free-form scenario parameters from the run configuration.
type Settings map[string]float64

// Get returns the setting or def when absent.
func (s Settings) Get(key string, def float64) float64 {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}

type Generator interface {
	// GenerateAgent builds the next agent. Implementations name agents from
	// names so each run allocates its own sequence.
	GenerateAgent(names *behavior.Names) (*behavior.Agent, error)
	GenerateEnvironment(settings Settings) (*behavior.Environment, error)
}

// Funcs adapts two closures to Generator.
type Funcs struct {
	Agent       func(names *behavior.Names) (*behavior.Agent, error)
	Environment func(settings Settings) (*behavior.Environment, error)
}

func (f Funcs) GenerateAgent(names *behavior.Names) (*behavior.Agent, error) {
	if f.Agent == nil {
		return nil, fmt.Errorf("generator: no agent func")
	}
	return f.Agent(names)
}

// GenerateEnvironment returns an empty environment when no func is set.
func (f Funcs) GenerateEnvironment(settings Settings) (*behavior.Environment, error) {
	if f.Environment == nil {
		return behavior.NewEnvironment("environment"), nil
	}
	return f.Environment(settings)
}

// Population generates n agents, rejecting nil agents and duplicate names.
func Population(g Generator, names *behavior.Names, n int) ([]*behavior.Agent, error) {
	if n <= 0 {
		return nil, fmt.Errorf("generator: agent count must be positive, got %d", n)
	}
	out := make([]*behavior.Agent, 0, n)
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		a, err := g.GenerateAgent(names)
		if err != nil {
			return nil, fmt.Errorf("generator: agent %d: %w", i, err)
		}
		if a == nil {
			return nil, fmt.Errorf("generator: agent %d is nil", i)
		}
		if _, dup := seen[a.Name()]; dup {
			return nil, fmt.Errorf("generator: duplicate agent name %q", a.Name())
		}
		seen[a.Name()] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}

// Partition splits agents round-robin into n lists. n == 1 yields one list
// holding every agent; n < 1 yields none.
func Partition(agents []*behavior.Agent, n int) [][]*behavior.Agent {
	if n < 1 {
		return nil
	}
	parts := make([][]*behavior.Agent, n)
	for i, a := range agents {
		parts[i%n] = append(parts[i%n], a)
	}
	return parts
}
