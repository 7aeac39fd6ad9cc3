package protocol

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueue_FIFOAcrossProducers(t *testing.T) {
	q := NewQueue[int]()
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = q.Send(p*1000 + i)
			}
		}(p)
	}
	wg.Wait()

	ctx := context.Background()
	last := map[int]int{0: -1, 1: -1, 2: -1, 3: -1}
	for n := 0; n < 400; n++ {
		v, err := q.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		p, i := v/1000, v%1000
		if i <= last[p] {
			t.Fatalf("producer %d out of order: %d after %d", p, i, last[p])
		}
		last[p] = i
	}
	if q.Len() != 0 {
		t.Fatalf("queue not drained: %d", q.Len())
	}
}

func TestQueue_ReceiveBlocksUntilSend(t *testing.T) {
	q := NewQueue[string]()
	got := make(chan string, 1)
	go func() {
		v, _ := q.Receive(context.Background())
		got <- v
	}()
	select {
	case v := <-got:
		t.Fatalf("Receive returned %q before any send", v)
	case <-time.After(20 * time.Millisecond):
	}
	_ = q.Send("x")
	select {
	case v := <-got:
		if v != "x" {
			t.Fatalf("got %q", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Receive did not wake up")
	}
}

func TestQueue_CloseDrainsThenFails(t *testing.T) {
	q := NewQueue[int]()
	_ = q.Send(1)
	q.Close()
	if err := q.Send(2); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after close err=%v", err)
	}
	if v, err := q.Receive(context.Background()); err != nil || v != 1 {
		t.Fatalf("expected queued item, got %v err=%v", v, err)
	}
	if _, err := q.Receive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestQueue_ReceiveHonorsContext(t *testing.T) {
	q := NewQueue[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
}

func TestController_CallCorrelatesAndHoldsBroadcasts(t *testing.T) {
	c := NewController()
	w1, err := c.Interface("w1")
	if err != nil {
		t.Fatalf("Interface: %v", err)
	}
	w2, _ := c.Interface("w2")
	if _, err := c.Interface("w1"); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	ctx := context.Background()
	go func() {
		req, err := c.Next(ctx)
		if err != nil {
			return
		}
		// A broadcast overtakes the reply; Call must hold it back.
		_ = c.Broadcast(ResponseProceed, func(dest string) any { return dest })
		_ = c.Respond(req.Reply(ResponseAgent, "payload:"+req.Payload.(string)))
	}()

	resp, err := w1.Call(ctx, RequestAgent, "a1")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Type != ResponseAgent || resp.Payload != "payload:a1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Requester != CoordinatorName || resp.Destination != "w1" {
		t.Fatalf("requester/destination not swapped: %+v", resp)
	}

	held, err := w1.Receive(ctx)
	if err != nil || held.Type != ResponseProceed || held.Payload != "w1" {
		t.Fatalf("held broadcast=%+v err=%v", held, err)
	}
	other, ok := w2.TryReceive()
	if !ok || other.Payload != "w2" {
		t.Fatalf("w2 should see only its own broadcast, got %+v ok=%v", other, ok)
	}
	if _, ok := w2.TryReceive(); ok {
		t.Fatalf("w2 received traffic addressed to w1")
	}
}

func TestController_UnmatchedResponseIsFatal(t *testing.T) {
	c := NewController()
	w, _ := c.Interface("w")
	ctx := context.Background()
	go func() {
		req, _ := c.Next(ctx)
		req.Seq += 100
		_ = c.Respond(req.Reply(ResponseAgent, nil))
	}()
	if _, err := w.Call(ctx, RequestAgent, "x"); !errors.Is(err, ErrUnmatchedResponse) {
		t.Fatalf("expected ErrUnmatchedResponse, got %v", err)
	}
}

func TestController_RespondUnknownDestination(t *testing.T) {
	c := NewController()
	if err := c.Respond(Response{Destination: "ghost"}); !errors.Is(err, ErrUnknownDestination) {
		t.Fatalf("err=%v", err)
	}
	if _, err := c.Interface(CoordinatorName); err == nil {
		t.Fatalf("coordinator name must be reserved")
	}
}

func TestRequestType_ExpectsReply(t *testing.T) {
	if RequestTickDone.ExpectsReply() || RequestPush.ExpectsReply() {
		t.Fatalf("barrier and push requests are one-way")
	}
	if !RequestAgent.ExpectsReply() || !RequestEnvironment.ExpectsReply() || !RequestFilter.ExpectsReply() {
		t.Fatalf("lookups expect replies")
	}
}
