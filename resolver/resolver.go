// Package resolver implements the strategies that locate, or lazily create,
// the per-type handler registry a bus instance dispatches through.
//
// Three interchangeable strategies cover different space/speed/lifetime
// trade-offs: Map (hash-keyed, space-optimized), Sparse (array-indexed by a
// per-instance dense slot, speed-optimized, supports per-instance teardown),
// and Shared (one process-wide registry per type, no isolation between
// instances).
package resolver

import (
	"github.com/coachpo/typebus/handler"
	"github.com/coachpo/typebus/typeid"
)

// Strategy resolves a message type identity to its type-erased handler
// registry, creating the registry on first access.
//
// Strategies are not self-synchronized: the owning bus serializes Handler
// calls on one instance. State shared between instances (the sparse Space,
// the shared Store) carries its own lock, so distinct buses may resolve
// concurrently.
type Strategy interface {
	// Handler returns the registry slot for id, calling create to fill it
	// on first access. Idempotent per (instance, id).
	Handler(id typeid.ID, create func() any) any

	// Types returns the identity registry the strategy resolves against.
	Types() *typeid.Registry

	// Close releases instance-scoped state. It is idempotent, and a no-op
	// for strategies without per-instance storage.
	Close() error
}

// HandlerOf returns the handler registry for message type M on s, creating it
// on first use.
//
// The type assertion is safe by construction: the slot for M's identity is
// only ever filled by the create callback below, which always builds a
// registry for that exact M.
func HandlerOf[M any](s Strategy) *handler.Registry[M] {
	id := typeid.Of[M](s.Types())
	h := s.Handler(id, func() any { return handler.New[M]() })
	return h.(*handler.Registry[M])
}
