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

// Package byteops provides helpers to (un-)marshal fixed-layout records
// from or into a buffer without reallocating.
package byteops

import "encoding/binary"

const (
	Uint64Len = 8
	Uint32Len = 4
	Uint16Len = 2
	Uint8Len  = 1
)

// ReadWriter walks a buffer, keeping track of the current position. All
// values are little-endian.
type ReadWriter struct {
	Position uint64
	Buffer   []byte
}

func NewReadWriter(buf []byte) *ReadWriter {
	return &ReadWriter{Buffer: buf}
}

func (bo *ReadWriter) ReadUint64() uint64 {
	bo.Position += Uint64Len
	return binary.LittleEndian.Uint64(bo.Buffer[bo.Position-Uint64Len : bo.Position])
}

func (bo *ReadWriter) ReadUint32() uint32 {
	bo.Position += Uint32Len
	return binary.LittleEndian.Uint32(bo.Buffer[bo.Position-Uint32Len : bo.Position])
}

func (bo *ReadWriter) ReadUint16() uint16 {
	bo.Position += Uint16Len
	return binary.LittleEndian.Uint16(bo.Buffer[bo.Position-Uint16Len : bo.Position])
}

func (bo *ReadWriter) ReadUint8() uint8 {
	bo.Position += Uint8Len
	return bo.Buffer[bo.Position-Uint8Len]
}

// ReadBytesFromBuffer returns a subslice of the underlying buffer, no copy.
func (bo *ReadWriter) ReadBytesFromBuffer(length uint64) []byte {
	bo.Position += length
	return bo.Buffer[bo.Position-length : bo.Position]
}

func (bo *ReadWriter) WriteUint64(value uint64) {
	bo.Position += Uint64Len
	binary.LittleEndian.PutUint64(bo.Buffer[bo.Position-Uint64Len:bo.Position], value)
}

func (bo *ReadWriter) WriteUint32(value uint32) {
	bo.Position += Uint32Len
	binary.LittleEndian.PutUint32(bo.Buffer[bo.Position-Uint32Len:bo.Position], value)
}

func (bo *ReadWriter) WriteUint16(value uint16) {
	bo.Position += Uint16Len
	binary.LittleEndian.PutUint16(bo.Buffer[bo.Position-Uint16Len:bo.Position], value)
}

func (bo *ReadWriter) WriteUint8(value uint8) {
	bo.Position += Uint8Len
	bo.Buffer[bo.Position-Uint8Len] = value
}

func (bo *ReadWriter) CopyBytesToBuffer(data []byte) {
	bo.Position += uint64(len(data))
	copy(bo.Buffer[bo.Position-uint64(len(data)):bo.Position], data)
}

// MoveBufferPositionForward skips over bytes that the caller does not care
// about, e.g. reserved record space.
func (bo *ReadWriter) MoveBufferPositionForward(length uint64) {
	bo.Position += length
}
