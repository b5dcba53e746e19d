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
)

type direct struct {
	maxSeen atomic.Int64
}

// Direct returns the pass-through mapper for input sources that already
// supply dense integer ids in enumeration order. Get is an identity
// lookup, no table is built; the only state is the highest id seen, so
// that dangling references can still be detected.
func Direct() Mapper {
	d := &direct{}
	d.maxSeen.Store(-1)
	return d
}

func (d *direct) Put(external any, internal int64, group string) error {
	id, ok := asInt64(external)
	if !ok {
		return errors.Errorf("direct id mapping requires integer ids, got %T", external)
	}
	if id != internal {
		return errors.Errorf("direct id mapping requires ids in input order: "+
			"external id %d arrived at position %d", id, internal)
	}

	d.maxSeen.Store(internal)
	return nil
}

func (d *direct) Prepare(context.Context) error {
	return nil
}

func (d *direct) Get(external any, group string) (int64, error) {
	id, ok := asInt64(external)
	if !ok {
		return 0, errors.Errorf("direct id mapping requires integer ids, got %T", external)
	}
	if id < 0 || id > d.maxSeen.Load() {
		return 0, ErrNotRegistered
	}

	return id, nil
}
