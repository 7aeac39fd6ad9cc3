package coordinator

import "agentsim.ai/internal/sim/behavior"

// FilterQuery is the payload of a filter request. Keep runs on the
// coordinator goroutine against its directory.
type FilterQuery struct {
	Name string
	Keep func(*behavior.Agent) bool
}

// Proceed is broadcast when every worker finished the previous tick. In
// unsynced mode it carries a duplicate of the environment for that tick.
type Proceed struct {
	Tick        int
	Environment *behavior.Environment
}
