package coordinator

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"agentsim.ai/internal/protocol"
	"agentsim.ai/internal/sim/behavior"
	"agentsim.ai/internal/sim/clock"
	"agentsim.ai/internal/sim/results"
)

func testAgent(name string, v float64) *behavior.Agent {
	set := behavior.NewAttributeSet("s")
	_ = set.AddProperty(behavior.NewProperty("v", v, true, nil))
	a := behavior.NewAgent(name)
	_ = a.AddSet(set)
	return a
}

// counterEnv counts its own steps in a recorded property.
func counterEnv() *behavior.Environment {
	set := behavior.NewAttributeSet("clock")
	_ = set.AddProperty(behavior.NewProperty("steps", 0, true, func(_ behavior.View, _ *behavior.AttributeSet, cur float64) float64 {
		return cur + 1
	}))
	env := behavior.NewEnvironment("env")
	_ = env.AddSet(set)
	return env
}

type harness struct {
	coord   *Coordinator
	ifaces  map[string]*protocol.Interface
	reports chan results.Report
	errCh   chan error
	cancel  context.CancelFunc
}

func start(t *testing.T, total, warmUp int, synced bool, workers ...string) *harness {
	t.Helper()
	clk, err := clock.New(total, warmUp)
	if err != nil {
		t.Fatalf("clock: %v", err)
	}
	ctrl := protocol.NewController()
	h := &harness{ifaces: map[string]*protocol.Interface{}, reports: make(chan results.Report, 64), errCh: make(chan error, 1)}
	for _, w := range workers {
		iface, err := ctrl.Interface(w)
		if err != nil {
			t.Fatalf("Interface: %v", err)
		}
		h.ifaces[w] = iface
	}
	h.coord, err = New(Config{
		Controller:  ctrl,
		Clock:       clk,
		Environment: counterEnv(),
		Agents:      []*behavior.Agent{testAgent("a-1", 1), testAgent("a-2", 2), testAgent("a-3", 3)},
		Workers:     workers,
		Synced:      synced,
		Reports:     h.reports,
		Logger:      log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	h.cancel = cancel
	t.Cleanup(cancel)
	go func() { h.errCh <- h.coord.Run(ctx) }()
	return h
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("coordinator did not return")
		return nil
	}
}

func TestLookups_ReturnDuplicates(t *testing.T) {
	h := start(t, 1, 0, true, "w1")
	w := h.ifaces["w1"]
	ctx := context.Background()

	resp, err := w.Call(ctx, protocol.RequestAgent, "a-2")
	if err != nil || resp.Type != protocol.ResponseAgent {
		t.Fatalf("resp=%+v err=%v", resp, err)
	}
	a := resp.Payload.(*behavior.Agent)
	if v, _ := a.Value("s", "v"); v != 2 {
		t.Fatalf("v=%v", v)
	}
	if a == h.coord.dir.Get("a-2") {
		t.Fatalf("expected a duplicate")
	}

	resp, _ = w.Call(ctx, protocol.RequestAgent, "nobody")
	if resp.Payload.(*behavior.Agent) != nil {
		t.Fatalf("missing agent should be nil")
	}

	resp, _ = w.Call(ctx, protocol.RequestFilter, FilterQuery{Name: "odd", Keep: func(a *behavior.Agent) bool {
		v, _ := a.Value("s", "v")
		return int(v)%2 == 1
	}})
	got := resp.Payload.([]*behavior.Agent)
	if len(got) != 2 || got[0].Name() != "a-1" || got[1].Name() != "a-3" {
		t.Fatalf("filter=%v", got)
	}

	resp, _ = w.Call(ctx, protocol.RequestEnvironment, nil)
	env := resp.Payload.(*behavior.Environment)
	if v, _ := env.Value("clock", "steps"); v != 1 {
		t.Fatalf("primed env steps=%v", v)
	}

	resp, _ = w.Call(ctx, protocol.RequestType(99), nil)
	if resp.Type != protocol.ResponseEmpty || resp.Payload != nil {
		t.Fatalf("unknown request resp=%+v", resp)
	}

	_, _ = w.Send(protocol.RequestTickDone, 0)
	if err := h.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestBarrier_ReleasesWhenAllWorkersDone(t *testing.T) {
	h := start(t, 3, 1, true, "w1", "w2")
	w1, w2 := h.ifaces["w1"], h.ifaces["w2"]
	ctx := context.Background()

	pushed := testAgent("a-1", 100)
	_, _ = w1.Send(protocol.RequestPush, []*behavior.Agent{pushed})
	_, _ = w1.Send(protocol.RequestTickDone, 0)

	// w2 still sees the previous tick's directory.
	resp, err := w2.Call(ctx, protocol.RequestAgent, "a-1")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v, _ := resp.Payload.(*behavior.Agent).Value("s", "v"); v != 1 {
		t.Fatalf("staged push leaked before release: %v", v)
	}
	_, _ = w2.Send(protocol.RequestTickDone, 0)

	for _, w := range []*protocol.Interface{w1, w2} {
		resp, err := w.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		p, ok := resp.Payload.(Proceed)
		if !resp.IsBroadcast() || resp.Type != protocol.ResponseProceed || !ok || p.Tick != 1 {
			t.Fatalf("proceed=%+v", resp)
		}
		if p.Environment != nil {
			t.Fatalf("synced proceed should not carry the environment")
		}
	}
	resp, _ = w2.Call(ctx, protocol.RequestAgent, "a-1")
	if v, _ := resp.Payload.(*behavior.Agent).Value("s", "v"); v != 100 {
		t.Fatalf("push not merged at release: %v", v)
	}

	for tick := 1; tick < 3; tick++ {
		_, _ = w1.Send(protocol.RequestTickDone, tick)
		_, _ = w2.Send(protocol.RequestTickDone, tick)
	}
	if err := h.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Warm-up tick 0 is not reported; ticks 1 and 2 are.
	close(h.reports)
	var ticks []int
	for r := range h.reports {
		ticks = append(ticks, r.Tick)
		if r.Environment == nil || r.Source != protocol.CoordinatorName {
			t.Fatalf("report=%+v", r)
		}
	}
	if len(ticks) != 2 || ticks[0] != 1 || ticks[1] != 2 {
		t.Fatalf("report ticks=%v", ticks)
	}
	if v, _ := h.coord.Environment().Value("clock", "steps"); v != 3 {
		t.Fatalf("env steps=%v", v)
	}
}

func TestUnsynced_ProceedCarriesEnvironment(t *testing.T) {
	h := start(t, 3, 0, false, "w1")
	w := h.ifaces["w1"]
	for tick := 0; tick < 3; tick++ {
		_, _ = w.Send(protocol.RequestTickDone, tick)
	}
	if err := h.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var last Proceed
	n := 0
	for {
		resp, ok := w.TryReceive()
		if !ok {
			break
		}
		last = resp.Payload.(Proceed)
		n++
	}
	if n != 2 || last.Tick != 2 || last.Environment == nil {
		t.Fatalf("n=%d last=%+v", n, last)
	}
	if v, _ := last.Environment.Value("clock", "steps"); v != 3 {
		t.Fatalf("env steps=%v", v)
	}
}

func TestProtocolDefectsAreFatal(t *testing.T) {
	cases := []struct {
		name string
		send func(w *protocol.Interface)
		want error
	}{
		{"duplicate", func(w *protocol.Interface) {
			_, _ = w.Send(protocol.RequestTickDone, 1)
			_, _ = w.Send(protocol.RequestTickDone, 1)
		}, ErrDuplicateReport},
		{"stale", func(w *protocol.Interface) {
			_, _ = w.Send(protocol.RequestTickDone, -1)
		}, ErrStaleTickDone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := start(t, 3, 0, true, "w1", "w2")
			tc.send(h.ifaces["w1"])
			if err := h.wait(t); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestUnknownWorkerIsFatal(t *testing.T) {
	clk, _ := clock.New(2, 0)
	ctrl := protocol.NewController()
	_, _ = ctrl.Interface("w1")
	stranger, _ := ctrl.Interface("stranger")
	c, err := New(Config{Controller: ctrl, Clock: clk, Environment: counterEnv(), Workers: []string{"w1"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, _ = stranger.Send(protocol.RequestTickDone, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Run(ctx); !errors.Is(err, ErrUnknownWorker) {
		t.Fatalf("expected ErrUnknownWorker, got %v", err)
	}
}
