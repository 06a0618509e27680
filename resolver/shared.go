package resolver

import (
	"sync"

	"github.com/coachpo/typebus/typeid"
)

// Store holds the singleton per-type registries used by the shared strategy.
// Every Shared instance built on the same store resolves a type to the same
// registry object.
type Store struct {
	mu       sync.Mutex
	types    *typeid.Registry
	handlers map[typeid.ID]any
}

// NewStore constructs an empty shared store resolving against types. A nil
// types uses the process-wide identity registry.
func NewStore(types *typeid.Registry) *Store {
	if types == nil {
		types = typeid.Default()
	}
	st := new(Store)
	st.types = types
	st.handlers = make(map[typeid.ID]any)
	return st
}

var defaultStore = NewStore(nil)

// DefaultStore returns the process-wide store used when no explicit store is
// supplied.
func DefaultStore() *Store { return defaultStore }

// Shared resolves every instance to the same per-type singleton registry:
// subscribing through any bus built on the same store is visible to all
// others. Intended for cross-cutting event types where isolation is
// explicitly unwanted. There is no per-instance state and nothing to clean
// up.
type Shared struct {
	store *Store
}

// NewShared constructs a shared strategy on store. A nil store uses the
// process-wide default store.
func NewShared(store *Store) *Shared {
	if store == nil {
		store = DefaultStore()
	}
	s := new(Shared)
	s.store = store
	return s
}

// Handler returns the store-wide registry for id, creating it on first access
// from any instance. The store lock serializes creation across instances.
func (s *Shared) Handler(id typeid.ID, create func() any) any {
	st := s.store
	st.mu.Lock()
	defer st.mu.Unlock()
	if h, ok := st.handlers[id]; ok {
		return h
	}
	h := create()
	st.handlers[id] = h
	return h
}

// Types returns the identity registry of the underlying store.
func (s *Shared) Types() *typeid.Registry { return s.store.types }

// Close is a no-op; shared registries live for the lifetime of the store.
func (s *Shared) Close() error { return nil }
