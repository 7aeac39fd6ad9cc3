// Package protocol carries typed requests from workers to the coordinator and
// responses back, over unbounded FIFO queues.
//
// The Controller owns every queue. Workers only ever hold an *Interface for
// their own name, which can send requests and read that worker's mailbox but
// cannot see anyone else's traffic.
package protocol

import "fmt"

// CoordinatorName is the requester/destination used by the coordinator side.
const CoordinatorName = "coordinator"

type RequestType int

const (
	RequestAgent RequestType = iota + 1
	RequestFilter
	RequestEnvironment
	// RequestTickDone tells the coordinator a worker finished a tick.
	RequestTickDone
	// RequestPush hands the coordinator duplicates of locally mutated agents.
	RequestPush
)

func (t RequestType) String() string {
	switch t {
	case RequestAgent:
		return "AGENT"
	case RequestFilter:
		return "FILTER"
	case RequestEnvironment:
		return "ENVIRONMENT"
	case RequestTickDone:
		return "TICK_DONE"
	case RequestPush:
		return "PUSH"
	default:
		return fmt.Sprintf("REQUEST(%d)", int(t))
	}
}

// ExpectsReply reports whether the coordinator answers this request type.
func (t RequestType) ExpectsReply() bool {
	switch t {
	case RequestTickDone, RequestPush:
		return false
	default:
		return true
	}
}

type ResponseType int

const (
	ResponseAgent ResponseType = iota + 1
	ResponseFilter
	ResponseEnvironment
	// ResponseProceed is broadcast when every worker finished a tick.
	ResponseProceed
	// ResponseEmpty answers a request the coordinator does not recognize.
	ResponseEmpty
)

func (t ResponseType) String() string {
	switch t {
	case ResponseAgent:
		return "AGENT"
	case ResponseFilter:
		return "FILTER"
	case ResponseEnvironment:
		return "ENVIRONMENT"
	case ResponseProceed:
		return "PROCEED"
	case ResponseEmpty:
		return "EMPTY"
	default:
		return fmt.Sprintf("RESPONSE(%d)", int(t))
	}
}
