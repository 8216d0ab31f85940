package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

type SetInterface[T comparable] interface {
	Add(value T) bool
	Contains(value T) bool
	Size() int
	List() []T
	Union(other *OrderedSet[T]) *OrderedSet[T]
	ToString() string
}

var _ SetInterface[string] = (*OrderedSet[string])(nil)

// OrderedSet is a collection of unique elements that remembers insertion order.
// There is no removal: topology data only ever grows during a run.
type OrderedSet[T comparable] struct {
	items    []T
	elements map[T]struct{}
}

// NewOrderedSet creates a new set holding the given values in order
func NewOrderedSet[T comparable](values ...T) *OrderedSet[T] {
	s := &OrderedSet[T]{
		elements: make(map[T]struct{}, len(values)),
	}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add appends value if it is not present yet and reports whether it was added
func (s *OrderedSet[T]) Add(value T) bool {
	if s.elements == nil {
		s.elements = make(map[T]struct{})
	}
	if _, found := s.elements[value]; found {
		return false
	}
	s.elements[value] = struct{}{}
	s.items = append(s.items, value)
	return true
}

// Contains checks if an element is in the set
func (s *OrderedSet[T]) Contains(value T) bool {
	if s == nil {
		return false
	}
	_, found := s.elements[value]
	return found
}

// Size returns the number of elements in the set
func (s *OrderedSet[T]) Size() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// List returns a copy of the elements in insertion order
func (s *OrderedSet[T]) List() []T {
	if s == nil {
		return []T{}
	}
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

func (s *OrderedSet[T]) Union(other *OrderedSet[T]) *OrderedSet[T] {
	result := NewOrderedSet(s.List()...)
	for _, v := range other.List() {
		result.Add(v)
	}
	return result
}

func (s *OrderedSet[T]) ToString() string {
	parts := make([]string, 0, s.Size())
	for _, v := range s.List() {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, ",")
}

func (s *OrderedSet[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

func (s *OrderedSet[T]) UnmarshalJSON(data []byte) error {
	var values []T
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	s.items = nil
	s.elements = make(map[T]struct{}, len(values))
	for _, v := range values {
		s.Add(v)
	}
	return nil
}

func (s *OrderedSet[T]) MarshalYAML() (interface{}, error) {
	return s.List(), nil
}
