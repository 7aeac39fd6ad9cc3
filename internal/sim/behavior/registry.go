package behavior

import "fmt"

type named interface {
	Name() string
}

// Registry is an insertion-ordered collection of uniquely named items.
// Iteration order is insertion order, which is also execution order.
type Registry[T named] struct {
	items []T
	index map[string]int
}

func NewRegistry[T named]() *Registry[T] {
	return &Registry[T]{index: map[string]int{}}
}

func (r *Registry[T]) Add(item T) error {
	name := item.Name()
	if name == "" {
		return fmt.Errorf("registry: empty name")
	}
	if r.index == nil {
		r.index = map[string]int{}
	}
	if _, dup := r.index[name]; dup {
		return fmt.Errorf("registry: duplicate name %q", name)
	}
	r.index[name] = len(r.items)
	r.items = append(r.items, item)
	return nil
}

// Get returns the item registered under name. The zero value and false are
// returned on a miss.
func (r *Registry[T]) Get(name string) (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	i, ok := r.index[name]
	if !ok {
		return zero, false
	}
	return r.items[i], true
}

func (r *Registry[T]) Len() int {
	if r == nil {
		return 0
	}
	return len(r.items)
}

// Items returns the registered items in insertion order. The slice is shared;
// callers must not modify it.
func (r *Registry[T]) Items() []T {
	if r == nil {
		return nil
	}
	return r.items
}

func (r *Registry[T]) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.items))
	for i, it := range r.items {
		out[i] = it.Name()
	}
	return out
}

func cloneRegistry[T named](r *Registry[T], cp func(T) T) *Registry[T] {
	out := &Registry[T]{
		items: make([]T, len(r.items)),
		index: make(map[string]int, len(r.index)),
	}
	for i, it := range r.items {
		out.items[i] = cp(it)
	}
	for k, v := range r.index {
		out.index[k] = v
	}
	return out
}
