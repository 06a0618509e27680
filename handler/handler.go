// Package handler implements the per-type subscriber registry that bus
// resolvers hand out and dispatch through.
package handler

import (
	"log"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// Subscription identifies one subscribed callback. The zero value is never
// issued and is ignored by Unsubscribe.
type Subscription string

type entry[M any] struct {
	id         Subscription
	fn         func(M)
	target     any
	targetType reflect.Type
}

// Registry owns the ordered callback list for message type M. It is safe for
// concurrent subscribe, unsubscribe, and publish: the entry list is
// snapshotted under a read lock and callbacks run outside it, in registration
// order.
type Registry[M any] struct {
	mu      sync.RWMutex
	entries []entry[M]
}

// New constructs an empty registry for message type M.
func New[M any]() *Registry[M] {
	return new(Registry[M])
}

// Subscribe registers fn for every published M and returns its subscription
// token. A nil fn is ignored.
func (r *Registry[M]) Subscribe(fn func(M)) Subscription {
	return r.add(nil, fn)
}

// SubscribeTo registers fn bound to target, so target-filtered publishes can
// select it by target value or by the target's dynamic type. Targets must be
// comparable; pointer targets are typical.
func (r *Registry[M]) SubscribeTo(target any, fn func(M)) Subscription {
	return r.add(target, fn)
}

func (r *Registry[M]) add(target any, fn func(M)) Subscription {
	if fn == nil {
		return ""
	}
	e := entry[M]{
		id:     Subscription(uuid.NewString()),
		fn:     fn,
		target: target,
	}
	if target != nil {
		e.targetType = reflect.TypeOf(target)
	}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	return e.id
}

// Unsubscribe removes the subscription and reports whether it was present.
// Unknown or zero tokens are a no-op.
func (r *Registry[M]) Unsubscribe(id Subscription) bool {
	if id == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Publish invokes every subscribed callback with m, in registration order.
func (r *Registry[M]) Publish(m M) {
	for _, e := range r.snapshot() {
		invoke(e.fn, m)
	}
}

// PublishToTarget invokes only the callbacks registered against exactly this
// target. A nil target matches nothing.
func (r *Registry[M]) PublishToTarget(m M, target any) {
	if target == nil {
		return
	}
	for _, e := range r.snapshot() {
		if e.target == target {
			invoke(e.fn, m)
		}
	}
}

// PublishToType invokes only the callbacks whose target's dynamic type is t.
func (r *Registry[M]) PublishToType(m M, t reflect.Type) {
	if t == nil {
		return
	}
	for _, e := range r.snapshot() {
		if e.targetType == t {
			invoke(e.fn, m)
		}
	}
}

// Len reports the number of active subscriptions.
func (r *Registry[M]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry[M]) snapshot() []entry[M] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entry[M], len(r.entries))
	copy(out, r.entries)
	return out
}

// invoke shields the publisher from a panicking subscriber.
func invoke[M any](fn func(M), m M) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("handler: subscriber panic recovered: %v", rec)
		}
	}()
	fn(m)
}
