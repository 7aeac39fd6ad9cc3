// Package results accumulates recorded per-tick values into per-attribute-set
// storage backends.
package results

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"

	"agentsim.ai/internal/persistence/columnstore"
	"agentsim.ai/internal/persistence/snapshot"
)

var (
	// ErrSealed is returned by Ingest once the results are sealed.
	ErrSealed = errors.New("results: sealed")
	// ErrBroken is returned by Ingest after an earlier Ingest failed part way
	// through a row; the columns may no longer line up with Ticks.
	ErrBroken = errors.New("results: unusable after failed ingest")
)

type Scope string

const (
	ScopeAgents      Scope = "agents"
	ScopeEnvironment Scope = "environment"
)

// Backend stores one attribute set's columns in append order.
type Backend interface {
	Connect() error
	Disconnect() error
	AddPropertyValue(name string, v float64) error
	AddPreEventValue(name string, triggered int) error
	AddPostEventValue(name string, triggered int) error
	PropertyColumn(name string) ([]float64, error)
	PreEventColumn(name string) ([]int, error)
	PostEventColumn(name string) ([]int, error)
	PropertyNames() ([]string, error)
	PreEventNames() ([]string, error)
	PostEventNames() ([]string, error)
}

type Options struct {
	// Disk selects one SQLite file per attribute set under Dir instead of
	// memory.
	Disk bool
	Dir  string

	// PropertyReducers maps a property name to its reducer; DefaultReducer
	// (Sum when nil) covers the rest.
	PropertyReducers map[string]Reducer
	DefaultReducer   Reducer
	EventReducer     EventReducer

	// ProcessEnvironmentProperty transforms environment property values
	// before they are stored. Nil keeps them as they are.
	ProcessEnvironmentProperty func(set, name string, v float64) float64

	// NewBackend overrides backend selection.
	NewBackend func(scope Scope, set string) (Backend, error)
}

type setKey struct {
	scope Scope
	set   string
}

type setState struct {
	key     setKey
	backend Backend
	disk    bool
}

type Results struct {
	opts Options

	mu     sync.Mutex
	sets   map[setKey]*setState
	order  []setKey
	ticks  []int
	sealed bool
	broken error
}

func New(opts Options) (*Results, error) {
	if opts.Disk && opts.Dir == "" && opts.NewBackend == nil {
		return nil, fmt.Errorf("results: disk storage needs a directory")
	}
	if opts.DefaultReducer == nil {
		opts.DefaultReducer = Sum
	}
	if opts.EventReducer == nil {
		opts.EventReducer = CountTriggered
	}
	return &Results{opts: opts, sets: map[setKey]*setState{}}, nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func (r *Results) backendLocked(scope Scope, set string) (Backend, error) {
	k := setKey{scope: scope, set: set}
	if st := r.sets[k]; st != nil {
		return st.backend, nil
	}
	var (
		b    Backend
		disk bool
		err  error
	)
	switch {
	case r.opts.NewBackend != nil:
		b, err = r.opts.NewBackend(scope, set)
	case r.opts.Disk:
		// The creation index keeps names unique when sanitizing collides.
		name := fmt.Sprintf("%s-%03d-%s.db", scope, len(r.order), unsafeFileChars.ReplaceAllString(set, "_"))
		b, disk = columnstore.NewSQLite(filepath.Join(r.opts.Dir, name)), true
	default:
		b = columnstore.NewMemory()
	}
	if err != nil {
		return nil, fmt.Errorf("results: backend for %s/%s: %w", scope, set, err)
	}
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("results: connect %s/%s: %w", scope, set, err)
	}
	r.sets[k] = &setState{key: k, backend: b, disk: disk}
	r.order = append(r.order, k)
	return b, nil
}

type column struct {
	set  string
	kind Kind
	name string
}

type gathered struct {
	order   []column
	numbers map[column][]float64
	fired   map[column][]bool
}

func gather(records []Record) gathered {
	g := gathered{numbers: map[column][]float64{}, fired: map[column][]bool{}}
	for _, rec := range records {
		for _, v := range rec.Values {
			c := column{set: v.Set, kind: v.Kind, name: v.Name}
			_, seenN := g.numbers[c]
			_, seenF := g.fired[c]
			if !seenN && !seenF {
				g.order = append(g.order, c)
			}
			if v.Kind == KindProperty {
				g.numbers[c] = append(g.numbers[c], v.Number)
			} else {
				g.fired[c] = append(g.fired[c], v.Fired)
			}
		}
	}
	return g
}

// Ingest reduces one tick's records and appends a row. agents must be in
// population order; env may be nil. A failed Ingest leaves the results
// unusable: later calls return ErrBroken.
func (r *Results) Ingest(tick int, agents []Record, env *Record) (Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return Row{}, ErrSealed
	}
	if r.broken != nil {
		return Row{}, fmt.Errorf("%w: %v", ErrBroken, r.broken)
	}
	row, err := r.ingestLocked(tick, agents, env)
	if err != nil {
		r.broken = err
		return Row{}, err
	}
	r.ticks = append(r.ticks, tick)
	return row, nil
}

func (r *Results) ingestLocked(tick int, agents []Record, env *Record) (Row, error) {
	row := Row{Tick: tick, Index: len(r.ticks)}

	g := gather(agents)
	for _, c := range g.order {
		b, err := r.backendLocked(ScopeAgents, c.set)
		if err != nil {
			return Row{}, err
		}
		var v float64
		if c.kind == KindProperty {
			reduce := r.opts.PropertyReducers[c.name]
			if reduce == nil {
				reduce = r.opts.DefaultReducer
			}
			v = reduce(g.numbers[c])
		} else {
			v = float64(r.opts.EventReducer(g.fired[c]))
		}
		if err := appendValue(b, c.kind, c.name, v); err != nil {
			return Row{}, fmt.Errorf("results: %s/%s/%s: %w", ScopeAgents, c.set, c.name, err)
		}
		row.Cells = append(row.Cells, Cell{Scope: ScopeAgents, Set: c.set, Kind: c.kind.String(), Name: c.name, Value: v})
	}

	if env != nil {
		for _, ev := range env.Values {
			b, err := r.backendLocked(ScopeEnvironment, ev.Set)
			if err != nil {
				return Row{}, err
			}
			var v float64
			if ev.Kind == KindProperty {
				v = ev.Number
				if r.opts.ProcessEnvironmentProperty != nil {
					v = r.opts.ProcessEnvironmentProperty(ev.Set, ev.Name, v)
				}
			} else if ev.Fired {
				v = 1
			}
			if err := appendValue(b, ev.Kind, ev.Name, v); err != nil {
				return Row{}, fmt.Errorf("results: %s/%s/%s: %w", ScopeEnvironment, ev.Set, ev.Name, err)
			}
			row.Cells = append(row.Cells, Cell{Scope: ScopeEnvironment, Set: ev.Set, Kind: ev.Kind.String(), Name: ev.Name, Value: v})
		}
	}
	return row, nil
}

func appendValue(b Backend, kind Kind, name string, v float64) error {
	switch kind {
	case KindProperty:
		return b.AddPropertyValue(name, v)
	case KindPreEvent:
		return b.AddPreEventValue(name, int(v))
	case KindPostEvent:
		return b.AddPostEventValue(name, int(v))
	default:
		return fmt.Errorf("unknown kind %d", kind)
	}
}

func (r *Results) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

func (r *Results) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}

// Len is the number of ingested rows.
func (r *Results) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

// Ticks returns the absolute tick of every row.
func (r *Results) Ticks() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ticks...)
}

// Sets returns the attribute sets recorded under scope, in first-seen order.
func (r *Results) Sets(scope Scope) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, k := range r.order {
		if k.scope == scope {
			out = append(out, k.set)
		}
	}
	return out
}

// Property returns a recorded property series. An unknown set or name yields
// an empty series, not an error.
func (r *Results) Property(scope Scope, set, name string) ([]float64, error) {
	b := r.lookup(scope, set)
	if b == nil {
		return nil, nil
	}
	return b.PropertyColumn(name)
}

func (r *Results) PreEvent(scope Scope, set, name string) ([]int, error) {
	b := r.lookup(scope, set)
	if b == nil {
		return nil, nil
	}
	return b.PreEventColumn(name)
}

func (r *Results) PostEvent(scope Scope, set, name string) ([]int, error) {
	b := r.lookup(scope, set)
	if b == nil {
		return nil, nil
	}
	return b.PostEventColumn(name)
}

func (r *Results) lookup(scope Scope, set string) Backend {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.sets[setKey{scope: scope, set: set}]
	if st == nil {
		return nil
	}
	return st.backend
}

// Release copies every disk-backed set into memory and disconnects the disk
// backend, deleting its file. Only sealed results can be released.
func (r *Results) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sealed {
		return fmt.Errorf("results: release before seal")
	}
	var errs []error
	for _, k := range r.order {
		st := r.sets[k]
		if !st.disk {
			continue
		}
		mem := columnstore.NewMemory()
		if err := mem.Connect(); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := copyColumns(st.backend, mem); err != nil {
			errs = append(errs, fmt.Errorf("results: materialize %s/%s: %w", k.scope, k.set, err))
			continue
		}
		if err := st.backend.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("results: disconnect %s/%s: %w", k.scope, k.set, err))
		}
		st.backend, st.disk = mem, false
	}
	return errors.Join(errs...)
}

func copyColumns(from, to Backend) error {
	props, err := from.PropertyNames()
	if err != nil {
		return err
	}
	for _, n := range props {
		vals, err := from.PropertyColumn(n)
		if err != nil {
			return err
		}
		for _, v := range vals {
			if err := to.AddPropertyValue(n, v); err != nil {
				return err
			}
		}
	}
	for _, ph := range []struct {
		names func() ([]string, error)
		col   func(string) ([]int, error)
		add   func(string, int) error
	}{
		{from.PreEventNames, from.PreEventColumn, to.AddPreEventValue},
		{from.PostEventNames, from.PostEventColumn, to.AddPostEventValue},
	} {
		names, err := ph.names()
		if err != nil {
			return err
		}
		for _, n := range names {
			vals, err := ph.col(n)
			if err != nil {
				return err
			}
			for _, v := range vals {
				if err := ph.add(n, v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Close disconnects every backend. Disk files are deleted.
func (r *Results) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, k := range r.order {
		if err := r.sets[k].backend.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Series returns every recorded series, events as float counts.
func (r *Results) Series() ([]snapshot.SeriesV1, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []snapshot.SeriesV1
	for _, k := range r.order {
		b := r.sets[k].backend
		props, err := b.PropertyNames()
		if err != nil {
			return nil, err
		}
		for _, n := range props {
			vals, err := b.PropertyColumn(n)
			if err != nil {
				return nil, err
			}
			out = append(out, snapshot.SeriesV1{Scope: string(k.scope), Set: k.set, Kind: KindProperty.String(), Name: n, Values: vals})
		}
		for _, ph := range []struct {
			kind  Kind
			names func() ([]string, error)
			col   func(string) ([]int, error)
		}{
			{KindPreEvent, b.PreEventNames, b.PreEventColumn},
			{KindPostEvent, b.PostEventNames, b.PostEventColumn},
		} {
			names, err := ph.names()
			if err != nil {
				return nil, err
			}
			for _, n := range names {
				ints, err := ph.col(n)
				if err != nil {
					return nil, err
				}
				vals := make([]float64, len(ints))
				for i, v := range ints {
					vals[i] = float64(v)
				}
				out = append(out, snapshot.SeriesV1{Scope: string(k.scope), Set: k.set, Kind: ph.kind.String(), Name: n, Values: vals})
			}
		}
	}
	return out, nil
}

// Export builds the results file body. Run metadata is filled by the caller.
func (r *Results) Export(runID string) (snapshot.ResultsV1, error) {
	series, err := r.Series()
	if err != nil {
		return snapshot.ResultsV1{}, err
	}
	ticks := r.Ticks()
	return snapshot.ResultsV1{
		Header: snapshot.Header{Version: snapshot.Version, RunID: runID, Rows: len(ticks)},
		Ticks:  ticks,
		Series: series,
	}, nil
}
