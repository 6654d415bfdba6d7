package gossip

import "slices"

// ValueSet is an append-only set of values. It is not safe for concurrent use; the
// owner serializes access.
type ValueSet struct {
	values map[Value]struct{}
}

// NewValueSet returns a set holding vs.
func NewValueSet(vs ...Value) *ValueSet {
	s := &ValueSet{values: make(map[Value]struct{}, len(vs))}
	for _, v := range vs {
		s.values[v] = struct{}{}
	}
	return s
}

// Insert adds v and reports whether it was not already present.
func (s *ValueSet) Insert(v Value) bool {
	if _, ok := s.values[v]; ok {
		return false
	}
	s.values[v] = struct{}{}
	return true
}

func (s *ValueSet) Contains(v Value) bool {
	_, ok := s.values[v]
	return ok
}

func (s *ValueSet) Len() int {
	return len(s.values)
}

// Snapshot returns a copy of the contents in ascending order. The order is only for
// stable output; the set itself is unordered.
func (s *ValueSet) Snapshot() []Value {
	out := make([]Value, 0, len(s.values))
	for v := range s.values {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Clone returns an independent copy of the set.
func (s *ValueSet) Clone() *ValueSet {
	c := &ValueSet{values: make(map[Value]struct{}, len(s.values))}
	for v := range s.values {
		c.values[v] = struct{}{}
	}
	return c
}

// Difference returns the values in s that are not in other, in ascending order.
func (s *ValueSet) Difference(other *ValueSet) []Value {
	out := make([]Value, 0)
	for v := range s.values {
		if other == nil || !other.Contains(v) {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}
