package resolver

import "github.com/coachpo/typebus/typeid"

// Map is the space-optimized strategy: an instance-scoped hash map keyed by
// type identity. Only types actually published or subscribed through the
// instance ever occupy a slot, and slots are never freed individually.
type Map struct {
	types    *typeid.Registry
	handlers map[typeid.ID]any
}

// NewMap constructs a map-backed strategy resolving against types. A nil
// types uses the process-wide identity registry.
func NewMap(types *typeid.Registry) *Map {
	if types == nil {
		types = typeid.Default()
	}
	m := new(Map)
	m.types = types
	m.handlers = make(map[typeid.ID]any)
	return m
}

// Handler returns the registry for id, creating and caching it on first use.
func (m *Map) Handler(id typeid.ID, create func() any) any {
	if h, ok := m.handlers[id]; ok {
		return h
	}
	h := create()
	m.handlers[id] = h
	return h
}

// Types returns the identity registry the strategy resolves against.
func (m *Map) Types() *typeid.Registry { return m.types }

// Close is a no-op; the map is instance-scoped and reclaimed with the
// instance.
func (m *Map) Close() error { return nil }
