package protocol

import "errors"

var (
	ErrClosed = errors.New("protocol: queue closed")

	// ErrUnmatchedResponse means a worker received a reply for a request it
	// is not waiting on. There is no redelivery; the run must stop.
	ErrUnmatchedResponse = errors.New("protocol: unmatched response")

	ErrUnknownDestination = errors.New("protocol: unknown destination")
	ErrDuplicateName      = errors.New("protocol: duplicate interface name")
)
