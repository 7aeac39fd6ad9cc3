package observerproto

// Version is the live tick stream protocol version.
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to change the filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Optional: only stream cells of these attribute sets.
	Sets []string `json:"sets,omitempty"`
	// Optional: only stream cells of this scope ("agents" or "environment").
	Scope string `json:"scope,omitempty"`
}

// HTTP response for GET /v1/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string  `json:"protocol_version"`
	RunID           string  `json:"run_id"`
	Run             RunInfo `json:"run"`
	// LastTick is -1 before the first recorded tick.
	LastTick int `json:"last_tick"`
}

type RunInfo struct {
	Scenario    string `json:"scenario"`
	Agents      int    `json:"agents"`
	Cores       int    `json:"cores"`
	TotalTicks  int    `json:"total_ticks"`
	WarmUpTicks int    `json:"warm_up_ticks"`
	Synced      bool   `json:"synced"`
}

// Server -> Client. Sent for every recorded tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	Tick            int    `json:"tick"`
	Index           int    `json:"index"`
	Cells           []Cell `json:"cells"`
}

type Cell struct {
	Scope string  `json:"scope"`
	Set   string  `json:"set"`
	Kind  string  `json:"kind"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Server -> Client. Sent once the run finished; the server closes after it.
type DoneMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	Rows            int    `json:"rows"`
}
