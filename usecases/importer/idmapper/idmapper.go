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

// Package idmapper maps externally supplied node ids to the dense internal
// ids the store is addressed by. A mapper lives through two phases with a
// hard barrier in between: during the node stage Put is called from a
// single goroutine; after Prepare the mapper is immutable and Get may be
// called from any number of goroutines.
package idmapper

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotRegistered is returned by Get for an external id that was never
// registered during the node stage. The pipeline turns it into a
// MissingReferenceError naming the offending relationship.
var ErrNotRegistered = errors.New("external id was never registered")

// Mapper is the pipeline's view of an id mapping.
type Mapper interface {
	// Put registers an external id under its group. Single-writer; only
	// valid before Prepare.
	Put(external any, internal int64, group string) error

	// Prepare seals the mapping between the node and relationship stages.
	Prepare(ctx context.Context) error

	// Get resolves an external id to its internal id. Only valid after
	// Prepare; safe for concurrent use.
	Get(external any, group string) (int64, error)
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}
