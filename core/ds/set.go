// Package ds provides small generic data structures used by the actors.
package ds

import "encoding/json"

// Set is an insertion-ordered set: O(1) membership plus deterministic
// iteration. The checkout quorum uses it to track confirmations.
type Set[T comparable] struct {
	items map[T]struct{}
	order []T
}

// NewSet creates a set containing the given values.
func NewSet[T comparable](values ...T) *Set[T] {
	s := &Set[T]{items: make(map[T]struct{}, len(values))}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v; a no-op if already present.
func (s *Set[T]) Add(v T) {
	if s.Contains(v) {
		return
	}
	s.items[v] = struct{}{}
	s.order = append(s.order, v)
}

// Remove deletes v if present.
func (s *Set[T]) Remove(v T) {
	if !s.Contains(v) {
		return
	}
	delete(s.items, v)
	for i, o := range s.order {
		if o == v {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Contains reports membership of v.
func (s *Set[T]) Contains(v T) bool {
	_, ok := s.items[v]
	return ok
}

// Len returns the number of elements.
func (s *Set[T]) Len() int { return len(s.order) }

// Values returns the elements in insertion order as a fresh slice.
func (s *Set[T]) Values() []T {
	return append([]T(nil), s.order...)
}

// Clear removes all elements.
func (s *Set[T]) Clear() {
	s.items = make(map[T]struct{})
	s.order = nil
}

// Copy returns an independent set with the same elements and order.
func (s *Set[T]) Copy() *Set[T] {
	return NewSet(s.order...)
}

// MarshalJSON encodes the set as an ordered array.
func (s *Set[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.order)
}

// UnmarshalJSON decodes an array, replacing the set's contents.
func (s *Set[T]) UnmarshalJSON(data []byte) error {
	var values []T
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	s.items = make(map[T]struct{}, len(values))
	s.order = nil
	for _, v := range values {
		s.Add(v)
	}
	return nil
}
