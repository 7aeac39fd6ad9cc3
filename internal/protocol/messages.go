package protocol

// Request travels from a worker to the coordinator. Seq correlates it with its
// Response; it is unique per Controller.
type Request struct {
	Seq         uint64
	Requester   string
	Destination string
	Type        RequestType
	Payload     any
}

// Response travels from the coordinator to one worker. Broadcasts carry Seq 0.
type Response struct {
	Seq         uint64
	Requester   string
	Destination string
	Type        ResponseType
	Payload     any
}

// Reply builds the response to r, swapping requester and destination.
func (r Request) Reply(t ResponseType, payload any) Response {
	return Response{
		Seq:         r.Seq,
		Requester:   r.Destination,
		Destination: r.Requester,
		Type:        t,
		Payload:     payload,
	}
}

// IsBroadcast reports whether the response answers no particular request.
func (r Response) IsBroadcast() bool { return r.Seq == 0 }
