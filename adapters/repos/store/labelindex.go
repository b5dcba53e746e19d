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

package store

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/weaviate/sroar"

	"github.com/weaviate/graphload/usecases/byteops"
)

// labelIndex accumulates one roaring bitmap of internal node ids per label
// token during the node stage. It is flushed to disk once the node stage
// has drained and is read-only from then on.
type labelIndex struct {
	lock    sync.Mutex
	bitmaps map[uint32]*sroar.Bitmap
}

func newLabelIndex() *labelIndex {
	return &labelIndex{bitmaps: map[uint32]*sroar.Bitmap{}}
}

// add registers a range-free set of tokens for one node. Called once per
// node by whichever worker encodes its batch.
func (li *labelIndex) add(tokens []uint32, nodeID uint64) {
	li.lock.Lock()
	defer li.lock.Unlock()

	for _, token := range tokens {
		bm, ok := li.bitmaps[token]
		if !ok {
			bm = sroar.NewBitmap()
			li.bitmaps[token] = bm
		}
		bm.Set(nodeID)
	}
}

// marshal serializes all bitmaps into a single self-describing buffer:
// uint32 entry count, then per entry uint32 token, uint32 length, payload.
func (li *labelIndex) marshal() []byte {
	li.lock.Lock()
	defer li.lock.Unlock()

	total := byteops.Uint32Len
	payloads := make(map[uint32][]byte, len(li.bitmaps))
	for token, bm := range li.bitmaps {
		buf := bm.ToBuffer()
		payloads[token] = buf
		total += 2*byteops.Uint32Len + len(buf)
	}

	out := make([]byte, total)
	bo := byteops.NewReadWriter(out)
	bo.WriteUint32(uint32(len(payloads)))
	for token, payload := range payloads {
		bo.WriteUint32(token)
		bo.WriteUint32(uint32(len(payload)))
		bo.CopyBytesToBuffer(payload)
	}

	return out
}

func unmarshalLabelIndex(buf []byte) (map[uint32]*sroar.Bitmap, error) {
	out := map[uint32]*sroar.Bitmap{}
	if len(buf) == 0 {
		return out, nil
	}

	bo := byteops.NewReadWriter(buf)
	count := bo.ReadUint32()
	for i := uint32(0); i < count; i++ {
		if bo.Position+2*byteops.Uint32Len > uint64(len(buf)) {
			return nil, errors.Errorf("label index truncated at entry %d", i)
		}

		token := bo.ReadUint32()
		length := bo.ReadUint32()
		if bo.Position+uint64(length) > uint64(len(buf)) {
			return nil, errors.Errorf("label index bitmap %d exceeds buffer", token)
		}

		payload := bo.ReadBytesFromBuffer(uint64(length))
		out[token] = sroar.FromBufferWithCopy(payload)
	}

	return out, nil
}
