// Package scheduler orders the agents stepped within one tick.
package scheduler

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"

	"agentsim.ai/internal/sim/behavior"
)

// Scheduler calls run exactly once per agent. The first error stops the tick.
type Scheduler interface {
	Schedule(agents []*behavior.Agent, run func(*behavior.Agent) error) error
}

type inOrder struct{}

// InOrder steps agents in slice order.
func InOrder() Scheduler { return inOrder{} }

func (inOrder) Schedule(agents []*behavior.Agent, run func(*behavior.Agent) error) error {
	for _, a := range agents {
		if err := run(a); err != nil {
			return err
		}
	}
	return nil
}

type random struct {
	seed  uint64
	calls atomic.Uint64
}

// Random steps agents in a fresh uniform permutation on every call. Each call
// is seeded from seed and a call counter, so a run is reproducible while no
// two ticks share an order. Safe for concurrent use.
func Random(seed uint64) Scheduler {
	return &random{seed: seed}
}

func (r *random) Schedule(agents []*behavior.Agent, run func(*behavior.Agent) error) error {
	n := r.calls.Add(1)
	rng := rand.New(rand.NewPCG(r.seed, n))
	for _, i := range rng.Perm(len(agents)) {
		if err := run(agents[i]); err != nil {
			return err
		}
	}
	return nil
}

// Func adapts a caller-supplied ordering. It must honor the Scheduler
// contract itself.
type Func func(agents []*behavior.Agent, run func(*behavior.Agent) error) error

func (f Func) Schedule(agents []*behavior.Agent, run func(*behavior.Agent) error) error {
	return f(agents, run)
}

// ByName resolves a configured scheduler name.
func ByName(name string, seed uint64) (Scheduler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "in_order", "inorder":
		return InOrder(), nil
	case "random":
		return Random(seed), nil
	default:
		return nil, fmt.Errorf("unknown scheduler %q", name)
	}
}
