//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

// Package input holds the value types produced by an input source and
// consumed exactly once, in order, by the import pipeline. None of these
// types are ever persisted as-is, they only exist between the source and
// the encoding workers.
package input

// KV is a single property. Properties keep their input order, which is why
// they are a slice and not a map.
type KV struct {
	Key   string
	Value any
}

// Node is a single node as supplied by the input source. ID is either an
// int64 (dense-compatible input) or a string. Group namespaces the ID so
// that multiple sources can use overlapping id spaces without colliding.
type Node struct {
	ID         any
	Properties []KV
	Labels     []string
	Group      string
}

// Relationship is a single relationship as supplied by the input source.
// StartNode and EndNode reference node IDs in the same id space (and group)
// the nodes were supplied in.
type Relationship struct {
	ID         int64
	Properties []KV
	Type       string
	StartNode  any
	EndNode    any
	Group      string
}

// Sequence is a lazily produced, single-pass, finite stream. Next returns
// the zero value and false once the sequence is exhausted. A sequence is
// only ever pulled from a single goroutine.
type Sequence[T any] interface {
	Next() (T, bool, error)
}

// NodeSequence and RelationshipSequence are the two sequences an import
// consumes.
type (
	NodeSequence         = Sequence[Node]
	RelationshipSequence = Sequence[Relationship]
)

type sliceSequence[T any] struct {
	items []T
	pos   int
}

func (s *sliceSequence[T]) Next() (T, bool, error) {
	if s.pos >= len(s.items) {
		var zero T
		return zero, false, nil
	}

	item := s.items[s.pos]
	s.pos++
	return item, true, nil
}

// FromSlice wraps an in-memory slice as a Sequence. Mostly useful in tests
// and small tools.
func FromSlice[T any](items []T) Sequence[T] {
	return &sliceSequence[T]{items: items}
}

type funcSequence[T any] struct {
	next func() (T, bool, error)
}

func (s *funcSequence[T]) Next() (T, bool, error) {
	return s.next()
}

// FromFunc adapts a pull function into a Sequence.
func FromFunc[T any](next func() (T, bool, error)) Sequence[T] {
	return &funcSequence[T]{next: next}
}
