package worker

import (
	"context"

	"agentsim.ai/internal/protocol"
	"agentsim.ai/internal/sim/behavior"
	"agentsim.ai/internal/sim/clock"
	"agentsim.ai/internal/sim/coordinator"
)

// view answers lookups for the agent being stepped: cache first, then the
// coordinator (synced) or the local store (unsynced). The first protocol
// error sticks and fails the tick.
type view struct {
	w    *Worker
	ctx  context.Context
	self *behavior.Agent
	err  error
}

func (v *view) Clock() clock.Cursor   { return v.w.cursor }
func (v *view) Self() *behavior.Agent { return v.self }

func (v *view) Environment() *behavior.Environment {
	c := v.w.cache
	if c != nil {
		if env, ok := c.Environment(); ok {
			return env
		}
	}
	var env *behavior.Environment
	if v.w.cfg.Synced {
		resp, ok := v.call(protocol.RequestEnvironment, nil)
		if !ok {
			return nil
		}
		env, _ = resp.Payload.(*behavior.Environment)
	} else {
		env = v.w.env
	}
	if c != nil {
		c.PutEnvironment(env)
	}
	return env
}

func (v *view) Agent(name string) *behavior.Agent {
	c := v.w.cache
	if c != nil {
		if a, ok := c.Agent(name); ok {
			return a
		}
	}
	var a *behavior.Agent
	if v.w.cfg.Synced {
		resp, ok := v.call(protocol.RequestAgent, name)
		if !ok {
			return nil
		}
		a, _ = resp.Payload.(*behavior.Agent)
	} else {
		a = v.w.local.Get(name)
	}
	if c != nil {
		c.PutAgent(name, a)
	}
	return a
}

func (v *view) Filter(name string, keep func(*behavior.Agent) bool) []*behavior.Agent {
	c := v.w.cache
	if c != nil {
		if as, ok := c.Filter(name); ok {
			return as
		}
	}
	var as []*behavior.Agent
	if v.w.cfg.Synced {
		resp, ok := v.call(protocol.RequestFilter, coordinator.FilterQuery{Name: name, Keep: keep})
		if !ok {
			return []*behavior.Agent{}
		}
		as, _ = resp.Payload.([]*behavior.Agent)
	} else {
		as = v.w.local.Filter(keep)
	}
	if as == nil {
		as = []*behavior.Agent{}
	}
	if c != nil {
		c.PutFilter(name, as)
	}
	return as
}

func (v *view) call(t protocol.RequestType, payload any) (protocol.Response, bool) {
	if v.err != nil {
		return protocol.Response{}, false
	}
	resp, err := v.w.cfg.Interface.Call(v.ctx, t, payload)
	if err != nil {
		v.err = err
		return protocol.Response{}, false
	}
	return resp, true
}
