// Package scenario holds the built-in populations selectable by name from a
// run configuration.
package scenario

import (
	"fmt"
	"sort"

	"agentsim.ai/internal/sim/generator"
	"agentsim.ai/internal/sim/results"
)

type Scenario struct {
	Name        string
	Description string
	// New returns a fresh generator for one run.
	New func(settings generator.Settings) generator.Generator
	// Reducers overrides the default Sum per property name.
	Reducers map[string]results.Reducer
}

var builtin = map[string]Scenario{}

func register(s Scenario) {
	if _, dup := builtin[s.Name]; dup {
		panic("scenario: duplicate " + s.Name)
	}
	builtin[s.Name] = s
}

func Lookup(name string) (Scenario, error) {
	s, ok := builtin[name]
	if !ok {
		return Scenario{}, fmt.Errorf("scenario: unknown %q (have %v)", name, Names())
	}
	return s, nil
}

func Names() []string {
	out := make([]string, 0, len(builtin))
	for name := range builtin {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
