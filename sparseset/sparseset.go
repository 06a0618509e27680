// Package sparseset implements a growable integer set with O(1) add, remove,
// and membership via a dense/sparse index pair.
//
// The layout follows the classic Briggs & Torczon scheme: dense stores the
// member values in insertion order, sparse maps a value to its position in
// dense, and membership is cross-validated as
// sparse[v] < count && dense[sparse[v]] == v, so stale entries left behind by
// Clear or Remove can never produce a false positive.
package sparseset

// None is the sentinel dense index returned for values that are negative,
// out of range, or absent.
const None = -1

// Set is a growable set of small non-negative integers. The zero value is
// usable; capacity grows on demand. Set is not safe for concurrent use.
type Set struct {
	dense  []int
	sparse []int
	count  int
}

// New constructs a set sized for values below capacity. The set still grows
// on demand when larger values are added.
func New(capacity int) *Set {
	if capacity < 0 {
		capacity = 0
	}
	s := new(Set)
	s.dense = make([]int, capacity)
	s.sparse = make([]int, capacity)
	return s
}

// Add inserts v and returns its dense index. Adding a value that is already
// present is a no-op returning the existing index. Negative values are
// rejected with None. Capacity grows as needed, preserving existing members.
func (s *Set) Add(v int) int {
	if v < 0 {
		return None
	}
	if v >= len(s.sparse) {
		s.grow(v)
	}
	if idx := s.indexOf(v); idx != None {
		return idx
	}
	idx := s.count
	s.dense[idx] = v
	s.sparse[v] = idx
	s.count++
	return idx
}

// Get returns the dense index of v, or None when v is negative, beyond the
// current capacity, or absent.
func (s *Set) Get(v int) int {
	return s.indexOf(v)
}

// Contains reports whether v is a member.
func (s *Set) Contains(v int) bool {
	return s.indexOf(v) != None
}

// Remove deletes v by swapping it with the last dense slot. Member order is
// not preserved. Removing an absent value is a no-op.
func (s *Set) Remove(v int) {
	idx := s.indexOf(v)
	if idx == None {
		return
	}
	last := s.count - 1
	moved := s.dense[last]
	s.dense[idx] = moved
	s.sparse[moved] = idx
	s.count--
}

// Clear resets the logical count to zero without shrinking or zeroing the
// backing storage. Stale entries become unreachable, not erased; callers must
// not rely on zeroed memory afterwards.
func (s *Set) Clear() {
	s.count = 0
}

// Len reports the number of members.
func (s *Set) Len() int { return s.count }

// Cap reports the current capacity, the exclusive upper bound on values that
// can be stored without growth.
func (s *Set) Cap() int { return len(s.sparse) }

// Dense returns the members in dense order. The slice aliases the backing
// storage and is invalidated by the next mutation.
func (s *Set) Dense() []int {
	return s.dense[:s.count]
}

func (s *Set) indexOf(v int) int {
	if v < 0 || v >= len(s.sparse) {
		return None
	}
	idx := s.sparse[v]
	if idx >= s.count || s.dense[idx] != v {
		return None
	}
	return idx
}

// grow extends both arrays until v fits, stepping capacity by (cap+1)*2+1.
func (s *Set) grow(v int) {
	capacity := len(s.sparse)
	for v >= capacity {
		capacity = (capacity+1)*2 + 1
	}
	dense := make([]int, capacity)
	copy(dense, s.dense)
	sparse := make([]int, capacity)
	copy(sparse, s.sparse)
	s.dense = dense
	s.sparse = sparse
}
