package results

// Row is one ingested tick, as written to tick sinks.
type Row struct {
	Tick  int    `json:"tick"`
	Index int    `json:"index"`
	Cells []Cell `json:"cells"`
}

type Cell struct {
	Scope Scope   `json:"scope"`
	Set   string  `json:"set"`
	Kind  string  `json:"kind"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Lookup returns the cell value for scope/set/name.
func (r Row) Lookup(scope Scope, set, name string) (float64, bool) {
	for _, c := range r.Cells {
		if c.Scope == scope && c.Set == set && c.Name == name {
			return c.Value, true
		}
	}
	return 0, false
}

// Sink receives every ingested row.
type Sink interface {
	WriteTick(row Row) error
}
