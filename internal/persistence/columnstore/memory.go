// Package columnstore holds the per-attribute-set storage backends for
// recorded results: an in-memory one and a SQLite file one. Each backend keeps
// append-only columns keyed by property or event name.
package columnstore

import (
	"errors"
	"sync"
)

var ErrNotConnected = errors.New("columnstore: not connected")

type column[T any] struct {
	order  []string
	values map[string][]T
}

func newColumn[T any]() column[T] {
	return column[T]{values: map[string][]T{}}
}

func (c *column[T]) add(name string, v T) {
	if _, ok := c.values[name]; !ok {
		c.order = append(c.order, name)
	}
	c.values[name] = append(c.values[name], v)
}

func (c *column[T]) get(name string) []T {
	return append([]T(nil), c.values[name]...)
}

type Memory struct {
	mu        sync.Mutex
	connected bool

	props column[float64]
	pre   column[int]
	post  column[int]
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		return nil
	}
	m.connected = true
	m.props = newColumn[float64]()
	m.pre = newColumn[int]()
	m.post = newColumn[int]()
	return nil
}

// Disconnect drops every stored value.
func (m *Memory) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.props, m.pre, m.post = column[float64]{}, column[int]{}, column[int]{}
	return nil
}

func (m *Memory) AddPropertyValue(name string, v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.props.add(name, v)
	return nil
}

func (m *Memory) AddPreEventValue(name string, triggered int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.pre.add(name, triggered)
	return nil
}

func (m *Memory) AddPostEventValue(name string, triggered int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.post.add(name, triggered)
	return nil
}

func (m *Memory) PropertyColumn(name string) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, ErrNotConnected
	}
	return m.props.get(name), nil
}

func (m *Memory) PreEventColumn(name string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, ErrNotConnected
	}
	return m.pre.get(name), nil
}

func (m *Memory) PostEventColumn(name string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, ErrNotConnected
	}
	return m.post.get(name), nil
}

func (m *Memory) PropertyNames() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.props.order...), nil
}

func (m *Memory) PreEventNames() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.pre.order...), nil
}

func (m *Memory) PostEventNames() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.post.order...), nil
}
