// Package clock counts simulation ticks and the warm-up window.
//
// A Clock is immutable run configuration. Each consumer (the model, the
// coordinator, every worker) derives its own Cursor from the same Clock and
// advances it once per tick, so all cursors agree on the bounds without
// sharing state.
//
// Ticks are counted absolutely through warm-up: the first recorded tick has
// TicksSinceStart == WarmUpTicks, not 0.
package clock

import "fmt"

type Clock struct {
	totalTicks  int
	warmUpTicks int
}

func New(totalTicks, warmUpTicks int) (Clock, error) {
	if totalTicks < 0 {
		return Clock{}, fmt.Errorf("clock: negative total ticks %d", totalTicks)
	}
	if warmUpTicks < 0 {
		return Clock{}, fmt.Errorf("clock: negative warm-up ticks %d", warmUpTicks)
	}
	if warmUpTicks > totalTicks {
		return Clock{}, fmt.Errorf("clock: warm-up ticks %d exceed total ticks %d", warmUpTicks, totalTicks)
	}
	return Clock{totalTicks: totalTicks, warmUpTicks: warmUpTicks}, nil
}

func (c Clock) TotalTicks() int  { return c.totalTicks }
func (c Clock) WarmUpTicks() int { return c.warmUpTicks }

// RecordedTicks is the number of ticks past warm-up.
func (c Clock) RecordedTicks() int { return c.totalTicks - c.warmUpTicks }

// Cursor is one consumer's position. Not goroutine-safe; each owner advances
// its own copy.
type Cursor struct {
	TicksSinceStart  int
	TicksSinceWarmUp int
	IsWarmedUp       bool
}

// Cursor returns a fresh cursor at tick 0.
func (c Clock) Cursor() Cursor {
	cur := Cursor{}
	c.settle(&cur)
	return cur
}

func (c Clock) Advance(cur *Cursor) {
	cur.TicksSinceStart++
	c.settle(cur)
}

// Done reports whether every tick has been run.
func (c Clock) Done(cur Cursor) bool {
	return cur.TicksSinceStart >= c.totalTicks
}

func (c Clock) settle(cur *Cursor) {
	cur.IsWarmedUp = cur.TicksSinceStart >= c.warmUpTicks
	cur.TicksSinceWarmUp = 0
	if cur.IsWarmedUp {
		cur.TicksSinceWarmUp = cur.TicksSinceStart - c.warmUpTicks
	}
}
