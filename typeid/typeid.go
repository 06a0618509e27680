// Package typeid assigns stable, process-lifetime integer identities to
// message types on first use.
package typeid

import (
	"reflect"
	"sync"
)

// ID is the integer identity assigned to a message type. Identities start at
// zero, increase monotonically, and are never reused or reassigned, which
// makes an ID usable as a dense array index.
type ID int

// Registry maps message types to their assigned identities. Construct with
// NewRegistry; the zero value is not usable.
type Registry struct {
	mu   sync.RWMutex
	ids  map[reflect.Type]ID
	next ID
}

// NewRegistry constructs an empty identity registry.
func NewRegistry() *Registry {
	r := new(Registry)
	r.ids = make(map[reflect.Type]ID)
	return r
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used when no explicit registry is
// supplied.
func Default() *Registry { return defaultRegistry }

// Of returns the identity assigned to message type M in r, assigning the next
// counter value on first use. Concurrent first use for distinct types is safe;
// each type is assigned exactly once.
func Of[M any](r *Registry) ID {
	return r.identify(reflect.TypeFor[M]())
}

func (r *Registry) identify(t reflect.Type) ID {
	r.mu.RLock()
	id, ok := r.ids[t]
	r.mu.RUnlock()
	if ok {
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[t]; ok {
		return id
	}
	id = r.next
	r.next++
	r.ids[t] = id
	return id
}

// Lookup returns the identity previously assigned to t without assigning one.
func (r *Registry) Lookup(t reflect.Type) (ID, bool) {
	r.mu.RLock()
	id, ok := r.ids[t]
	r.mu.RUnlock()
	return id, ok
}

// Len reports how many types have been assigned identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}
