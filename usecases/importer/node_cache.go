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

package importer

import (
	"sync/atomic"

	"github.com/weaviate/graphload/adapters/repos/store"
)

// nodeCache tracks, per internal node id, the relationship count and the
// head of the node's relationship chain while the relationship stage runs.
// Both arrays are written with atomics so workers never coordinate; the
// linking stage reads them after the stage barrier.
type nodeCache struct {
	chains  []uint64
	degrees []uint32
}

func newNodeCache(nodeCount int64) *nodeCache {
	chains := make([]uint64, nodeCount)
	for i := range chains {
		chains[i] = store.NilRef
	}

	return &nodeCache{
		chains:  chains,
		degrees: make([]uint32, nodeCount),
	}
}

// swapChain makes rel the new chain head of node and returns the previous
// head, which becomes the new record's chain predecessor.
func (c *nodeCache) swapChain(node int64, rel uint64) uint64 {
	return atomic.SwapUint64(&c.chains[node], rel)
}

func (c *nodeCache) incDegree(node int64) {
	atomic.AddUint32(&c.degrees[node], 1)
}

func (c *nodeCache) chainHead(node int64) uint64 {
	return c.chains[node]
}

func (c *nodeCache) degree(node int64) uint32 {
	return c.degrees[node]
}
