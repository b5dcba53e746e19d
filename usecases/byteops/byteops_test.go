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

package byteops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWriterRoundTrip(t *testing.T) {
	buf := make([]byte, 32)

	w := NewReadWriter(buf)
	w.WriteUint8(0x7f)
	w.WriteUint64(1 << 40)
	w.WriteUint32(12345)
	w.WriteUint16(777)
	w.CopyBytesToBuffer([]byte("abc"))
	w.MoveBufferPositionForward(2)
	w.WriteUint8(9)

	r := NewReadWriter(buf)
	assert.Equal(t, uint8(0x7f), r.ReadUint8())
	assert.Equal(t, uint64(1<<40), r.ReadUint64())
	assert.Equal(t, uint32(12345), r.ReadUint32())
	assert.Equal(t, uint16(777), r.ReadUint16())
	assert.Equal(t, []byte("abc"), r.ReadBytesFromBuffer(3))
	r.MoveBufferPositionForward(2)
	assert.Equal(t, uint8(9), r.ReadUint8())
	require.Equal(t, w.Position, r.Position)
}

func TestReadBytesShareTheBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	r := NewReadWriter(buf)

	sub := r.ReadBytesFromBuffer(2)
	buf[0] = 9
	assert.Equal(t, []byte{9, 2}, sub, "reads must not copy")
}
