package protocol

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Controller owns the shared request queue and one response mailbox per
// worker.
type Controller struct {
	requests *Queue[Request]

	mu        sync.RWMutex
	mailboxes map[string]*Queue[Response]

	seq atomic.Uint64
}

func NewController() *Controller {
	return &Controller{
		requests:  NewQueue[Request](),
		mailboxes: map[string]*Queue[Response]{},
	}
}

// Interface registers name and returns its narrow handle. Each name can be
// registered once.
func (c *Controller) Interface(name string) (*Interface, error) {
	if name == "" || name == CoordinatorName {
		return nil, fmt.Errorf("protocol: reserved interface name %q", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.mailboxes[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	inbox := NewQueue[Response]()
	c.mailboxes[name] = inbox
	return &Interface{name: name, requests: c.requests, inbox: inbox, seq: &c.seq}, nil
}

// Workers returns registered interface names, sorted.
func (c *Controller) Workers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.mailboxes))
	for name := range c.mailboxes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Next blocks for the next request. Only the coordinator calls it.
func (c *Controller) Next(ctx context.Context) (Request, error) {
	return c.requests.Receive(ctx)
}

func (c *Controller) Respond(resp Response) error {
	c.mu.RLock()
	inbox := c.mailboxes[resp.Destination]
	c.mu.RUnlock()
	if inbox == nil {
		return fmt.Errorf("%w: %s", ErrUnknownDestination, resp.Destination)
	}
	return inbox.Send(resp)
}

// Broadcast sends one uncorrelated response to every worker. payload is
// called per destination so each worker can receive its own duplicate.
func (c *Controller) Broadcast(t ResponseType, payload func(dest string) any) error {
	for _, name := range c.Workers() {
		var p any
		if payload != nil {
			p = payload(name)
		}
		if err := c.Respond(Response{Requester: CoordinatorName, Destination: name, Type: t, Payload: p}); err != nil {
			return err
		}
	}
	return nil
}

// Close shuts every queue. Blocked receivers return ErrClosed once drained.
func (c *Controller) Close() {
	c.requests.Close()
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, q := range c.mailboxes {
		q.Close()
	}
}

// Interface is one worker's view of the protocol.
type Interface struct {
	name     string
	requests *Queue[Request]
	inbox    *Queue[Response]
	seq      *atomic.Uint64

	held []Response
}

func (i *Interface) Name() string { return i.name }

// Send queues a request to the coordinator and returns its sequence number.
func (i *Interface) Send(t RequestType, payload any) (uint64, error) {
	seq := i.seq.Add(1)
	err := i.requests.Send(Request{
		Seq:         seq,
		Requester:   i.name,
		Destination: CoordinatorName,
		Type:        t,
		Payload:     payload,
	})
	return seq, err
}

// Call sends a request and blocks for its reply. Broadcasts that arrive in
// the meantime are held for the next Receive.
func (i *Interface) Call(ctx context.Context, t RequestType, payload any) (Response, error) {
	seq, err := i.Send(t, payload)
	if err != nil {
		return Response{}, err
	}
	for {
		resp, err := i.inbox.Receive(ctx)
		if err != nil {
			return Response{}, err
		}
		if resp.IsBroadcast() {
			i.held = append(i.held, resp)
			continue
		}
		if resp.Seq != seq {
			return resp, fmt.Errorf("%w: %s awaited seq=%d got seq=%d type=%s", ErrUnmatchedResponse, i.name, seq, resp.Seq, resp.Type)
		}
		return resp, nil
	}
}

// Receive returns the next held or queued response.
func (i *Interface) Receive(ctx context.Context) (Response, error) {
	if resp, ok := i.popHeld(); ok {
		return resp, nil
	}
	return i.inbox.Receive(ctx)
}

func (i *Interface) TryReceive() (Response, bool) {
	if resp, ok := i.popHeld(); ok {
		return resp, true
	}
	return i.inbox.TryReceive()
}

func (i *Interface) popHeld() (Response, bool) {
	if len(i.held) == 0 {
		return Response{}, false
	}
	resp := i.held[0]
	i.held = i.held[1:]
	return resp, true
}
