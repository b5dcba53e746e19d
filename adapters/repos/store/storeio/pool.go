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

package storeio

import "sync"

// BufferPool recycles the byte buffers that back write requests. A buffer
// handed to a Writer may not be reused until that write completed, which
// is why buffers only re-enter the pool through the writing side, never
// through the producer. A nil *BufferPool is valid and simply allocates.
type BufferPool struct {
	pool sync.Pool
}

func NewBufferPool() *BufferPool {
	return &BufferPool{}
}

// Get returns a buffer of exactly size bytes, recycled if possible.
func (p *BufferPool) Get(size int) []byte {
	if p == nil {
		return make([]byte, size)
	}

	if buf, ok := p.pool.Get().(*[]byte); ok && cap(*buf) >= size {
		return (*buf)[:size]
	}

	return make([]byte, size)
}

// Put returns a buffer to the pool. Only the component that completed the
// buffer's write may call this.
func (p *BufferPool) Put(buf []byte) {
	if p == nil || buf == nil {
		return
	}

	p.pool.Put(&buf)
}
