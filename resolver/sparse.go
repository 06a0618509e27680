package resolver

import (
	"sync"

	"github.com/coachpo/typebus/sparseset"
	"github.com/coachpo/typebus/typeid"
)

// Space is the state shared by every sparse-strategy instance built on it:
// the set of live instance handles and one growable slot slice per message
// type, indexed by instance dense index. The space lock serializes all
// mutations, so instances on the same space may resolve concurrently.
type Space struct {
	mu      sync.Mutex
	types   *typeid.Registry
	handles *sparseset.Set
	next    int
	slots   map[typeid.ID][]any
}

// NewSpace constructs an isolated space resolving against types. A nil types
// uses the process-wide identity registry.
func NewSpace(types *typeid.Registry) *Space {
	if types == nil {
		types = typeid.Default()
	}
	sp := new(Space)
	sp.types = types
	sp.handles = sparseset.New(1)
	sp.slots = make(map[typeid.ID][]any)
	return sp
}

var defaultSpace = NewSpace(nil)

// DefaultSpace returns the process-wide space used when no explicit space is
// supplied.
func DefaultSpace() *Space { return defaultSpace }

// live reports how many instances currently hold a slot in the space.
func (sp *Space) live() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.handles.Len()
}

// Sparse is the speed-optimized strategy: each instance owns a dense slot in
// every type's slot slice, so resolution is an array index instead of a hash
// lookup. The trade is memory: one slot per type per ever-created instance,
// until the owning instance is Closed.
//
// Instances must be Closed when discarded. Closing returns the instance's
// handle to the shared set and clears its slot in every type it touched, so a
// later instance reusing the same dense index starts from empty registries. A
// forgotten Close leaks one slot per touched type until process exit.
type Sparse struct {
	space    *Space
	handle   int
	index    int
	cleanups []func(index int)
	closed   bool
}

// NewSparse constructs a sparse strategy instance on space, assigning it a
// handle from the monotonic counter and a dense index from the shared set. A
// nil space uses the process-wide default space.
func NewSparse(space *Space) *Sparse {
	if space == nil {
		space = DefaultSpace()
	}
	s := new(Sparse)
	s.space = space
	space.mu.Lock()
	s.handle = space.next
	space.next++
	s.index = space.handles.Add(s.handle)
	space.mu.Unlock()
	return s
}

// Handler returns the registry in this instance's slot of the type's slice,
// creating it on first access. The slice grows by appending empty slots, so
// slots of other instances are never disturbed. First creation records a
// clear callback so Close can reach every type the instance touched without
// enumerating types itself.
//
// Handler must not be called after Close.
func (s *Sparse) Handler(id typeid.ID, create func() any) any {
	sp := s.space
	sp.mu.Lock()
	defer sp.mu.Unlock()

	arr := sp.slots[id]
	for len(arr) <= s.index {
		arr = append(arr, nil)
	}
	if arr[s.index] == nil {
		arr[s.index] = create()
		s.cleanups = append(s.cleanups, func(index int) {
			slot := sp.slots[id]
			if index < len(slot) {
				slot[index] = nil
			}
		})
	}
	sp.slots[id] = arr
	return arr[s.index]
}

// Types returns the identity registry of the underlying space.
func (s *Sparse) Types() *typeid.Registry { return s.space.types }

// Close removes the instance's handle from the shared set and nulls its slot
// in every type it touched, so the dense index can be reused by a future
// instance without handler bleed. Close is idempotent.
func (s *Sparse) Close() error {
	sp := s.space
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	sp.handles.Remove(s.handle)
	for _, fn := range s.cleanups {
		fn(s.index)
	}
	s.cleanups = nil
	return nil
}

// Index reports the dense slot index assigned to this instance.
func (s *Sparse) Index() int { return s.index }
