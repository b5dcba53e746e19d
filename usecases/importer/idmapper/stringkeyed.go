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

package idmapper

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/willf/bloom"
)

const (
	defaultExpectedIDs = 1 << 20
	bloomFalsePositive = 0.001
)

// groupSeparator keeps identical strings in different groups from
// producing the same bloom key.
const groupSeparator = 0x1f

type stringKeyed struct {
	groups   map[string]map[string]int64
	filter   *bloom.BloomFilter
	sealed   atomic.Bool
	expected uint
}

type StringKeyedOption func(m *stringKeyed)

// WithExpectedIDs sizes the negative-lookup filter. Getting this wrong
// only costs lookup speed, never correctness.
func WithExpectedIDs(n uint) StringKeyedOption {
	return func(m *stringKeyed) {
		m.expected = n
	}
}

// StringKeyed returns a mapper for arbitrary string ids. The table is
// built single-writer during the node stage; Prepare seals it, after
// which lookups are lock-free map reads behind a bloom filter that
// answers definite misses early.
func StringKeyed(opts ...StringKeyedOption) Mapper {
	m := &stringKeyed{
		groups:   map[string]map[string]int64{},
		expected: defaultExpectedIDs,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.filter = bloom.NewWithEstimates(m.expected, bloomFalsePositive)
	return m
}

func (m *stringKeyed) Put(external any, internal int64, group string) error {
	if m.sealed.Load() {
		return errors.New("string id mapping is sealed, no further registrations")
	}

	s, ok := external.(string)
	if !ok {
		return errors.Errorf("string id mapping requires string ids, got %T", external)
	}

	table, ok := m.groups[group]
	if !ok {
		table = map[string]int64{}
		m.groups[group] = table
	}

	if existing, ok := table[s]; ok {
		return errors.Errorf("duplicate external id %q in group %q, "+
			"already registered as internal id %d", s, group, existing)
	}

	table[s] = internal
	m.filter.Add(bloomKey(group, s))
	return nil
}

// Prepare seals the mapper. The pipeline's stage barrier provides the
// happens-before edge between the last Put and the first Get; the sealed
// flag additionally turns a violated write discipline into a hard error.
func (m *stringKeyed) Prepare(context.Context) error {
	m.sealed.Store(true)
	return nil
}

func (m *stringKeyed) Get(external any, group string) (int64, error) {
	if !m.sealed.Load() {
		return 0, errors.New("string id mapping must be prepared before lookups")
	}

	s, ok := external.(string)
	if !ok {
		return 0, errors.Errorf("string id mapping requires string ids, got %T", external)
	}

	if !m.filter.Test(bloomKey(group, s)) {
		return 0, ErrNotRegistered
	}

	table, ok := m.groups[group]
	if !ok {
		return 0, ErrNotRegistered
	}

	internal, ok := table[s]
	if !ok {
		return 0, ErrNotRegistered
	}

	return internal, nil
}

func bloomKey(group, id string) []byte {
	key := make([]byte, 0, len(group)+1+len(id))
	key = append(key, group...)
	key = append(key, groupSeparator)
	key = append(key, id...)
	return key
}
