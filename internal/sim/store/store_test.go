package store

import (
	"testing"

	"agentsim.ai/internal/sim/behavior"
)

func agentWith(name string, v float64) *behavior.Agent {
	a := behavior.NewAgent(name)
	s := behavior.NewAttributeSet("body")
	_ = s.AddProperty(behavior.NewProperty("v", v, true, nil))
	_ = a.AddSet(s)
	return a
}

func TestAgentStore_CopySemantics(t *testing.T) {
	live := agentWith("a", 1)

	shared := NewAgentStore(false)
	shared.Put(live)
	copied := NewAgentStore(true)
	copied.Put(live)

	live.Set("body").SetValue("v", 5)

	if v, _ := shared.Get("a").Value("body", "v"); v != 5 {
		t.Fatalf("aliasing store should observe live mutation, got %v", v)
	}
	if v, _ := copied.Get("a").Value("body", "v"); v != 1 {
		t.Fatalf("copying store leaked live mutation, got %v", v)
	}
}

func TestAgentStore_FilterKeepsInsertionOrder(t *testing.T) {
	s := NewAgentStore(false)
	for _, n := range []string{"c", "a", "b"} {
		s.Put(agentWith(n, 0))
	}
	s.Put(agentWith("a", 3)) // replace keeps position
	got := s.Filter(nil)
	if len(got) != 3 || got[0].Name() != "c" || got[1].Name() != "a" || got[2].Name() != "b" {
		t.Fatalf("unexpected order: %v", s.Names())
	}
	if v, _ := got[1].Value("body", "v"); v != 3 {
		t.Fatalf("replacement not stored, v=%v", v)
	}
	if s.Get("missing") != nil {
		t.Fatalf("miss should return nil")
	}
	if out := s.Filter(func(*behavior.Agent) bool { return false }); out == nil || len(out) != 0 {
		t.Fatalf("empty filter should be non-nil empty, got %v", out)
	}
}

func TestCache_ClearForgetsEverything(t *testing.T) {
	c := NewCache()
	c.PutAgent("a", agentWith("a", 1))
	c.PutAgent("ghost", nil)
	c.PutFilter("all", []*behavior.Agent{agentWith("a", 1)})
	c.PutEnvironment(behavior.NewEnvironment("env"))

	if _, ok := c.Agent("a"); !ok {
		t.Fatalf("expected cached agent")
	}
	if a, ok := c.Agent("ghost"); !ok || a != nil {
		t.Fatalf("expected cached miss, got %v ok=%v", a, ok)
	}
	c.Clear()
	if _, ok := c.Agent("a"); ok {
		t.Fatalf("agent present after Clear")
	}
	if _, ok := c.Agent("ghost"); ok {
		t.Fatalf("cached miss present after Clear")
	}
	if _, ok := c.Filter("all"); ok {
		t.Fatalf("filter present after Clear")
	}
	if _, ok := c.Environment(); ok {
		t.Fatalf("environment present after Clear")
	}
	hits, misses := c.Stats()
	if hits != 2 || misses != 4 {
		t.Fatalf("stats hits=%d misses=%d", hits, misses)
	}
}
