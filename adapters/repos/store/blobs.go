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
	"bytes"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/weaviate/graphload/adapters/repos/store/storeio"
	"github.com/weaviate/graphload/entities/input"
	"github.com/weaviate/graphload/usecases/byteops"
)

// blobBatch accumulates the variable-length blobs of one batch so they can
// be reserved and written as a single contiguous region. Blob layout is
// uint32 length + payload; positions returned by the append methods are
// relative to the batch start.
type blobBatch struct {
	buf bytes.Buffer
}

func newBlobBatch() *blobBatch {
	return &blobBatch{}
}

// appendProps encodes properties as msgpack, preserving input order.
func (b *blobBatch) appendProps(props []input.KV) (int, error) {
	pos := b.buf.Len()

	payload, err := msgpack.Marshal(props)
	if err != nil {
		return 0, err
	}

	b.writeBlob(payload)
	return pos, nil
}

// appendLabels encodes a label token set as uint16 count + uint32 tokens.
func (b *blobBatch) appendLabels(tokens []uint32) int {
	pos := b.buf.Len()

	payload := make([]byte, byteops.Uint16Len+len(tokens)*byteops.Uint32Len)
	bo := byteops.NewReadWriter(payload)
	bo.WriteUint16(uint16(len(tokens)))
	for _, token := range tokens {
		bo.WriteUint32(token)
	}

	b.writeBlob(payload)
	return pos
}

func (b *blobBatch) writeBlob(payload []byte) {
	var length [byteops.Uint32Len]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(payload)))
	b.buf.Write(length[:])
	b.buf.Write(payload)
}

func (b *blobBatch) size() int {
	return b.buf.Len()
}

// flush submits the accumulated region at base through w using a pooled
// buffer. A batch without blobs writes nothing.
func (b *blobBatch) flush(w storeio.Writer, base int64, pool *storeio.BufferPool) error {
	if b.buf.Len() == 0 {
		return nil
	}

	buf := pool.Get(b.buf.Len())
	copy(buf, b.buf.Bytes())
	return w.Write(buf, base, pool)
}
