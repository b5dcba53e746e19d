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
	"math"

	"github.com/weaviate/graphload/usecases/byteops"
)

const (
	// NodeRecordSize is the fixed on-disk size of a node record. Records
	// are addressed by internal node id, i.e. record n lives at byte
	// offset n*NodeRecordSize in the nodes channel.
	NodeRecordSize = 32

	// RelRecordSize is the fixed on-disk size of a relationship record,
	// addressed by relationship id.
	RelRecordSize = 48

	// GroupRecordSize is the fixed on-disk size of a relationship-group
	// record, addressed by group id.
	GroupRecordSize = 40

	// NilRef marks an unset reference in any record field.
	NilRef = math.MaxUint64
)

const (
	flagInUse uint8 = 1 << 0
	flagDense uint8 = 1 << 1
)

// NodeRecord is the decoded form of a node store record.
//
// Layout: flags(1) relRef(8) propRef(8) labelRef(8) degree(4) reserved(3).
// RelRef points at the head of the node's relationship chain, or at the
// node's first group record if Dense is set. PropRef and LabelRef are byte
// offsets into the property and label blob channels.
type NodeRecord struct {
	InUse    bool
	Dense    bool
	RelRef   uint64
	PropRef  uint64
	LabelRef uint64
	Degree   uint32
}

// MarshalInto writes the record into buf, which must hold at least
// NodeRecordSize bytes. The full record is cleared first: buf may come from
// a recycled pool buffer, and the reserved bytes must persist as zero.
func (r NodeRecord) MarshalInto(buf []byte) {
	clear(buf[:NodeRecordSize])
	bo := byteops.NewReadWriter(buf)

	var flags uint8
	if r.InUse {
		flags |= flagInUse
	}
	if r.Dense {
		flags |= flagDense
	}

	bo.WriteUint8(flags)
	bo.WriteUint64(r.RelRef)
	bo.WriteUint64(r.PropRef)
	bo.WriteUint64(r.LabelRef)
	bo.WriteUint32(r.Degree)
}

// UnmarshalNodeRecord decodes a record from the first NodeRecordSize bytes
// of buf.
func UnmarshalNodeRecord(buf []byte) NodeRecord {
	bo := byteops.NewReadWriter(buf)
	flags := bo.ReadUint8()

	return NodeRecord{
		InUse:    flags&flagInUse != 0,
		Dense:    flags&flagDense != 0,
		RelRef:   bo.ReadUint64(),
		PropRef:  bo.ReadUint64(),
		LabelRef: bo.ReadUint64(),
		Degree:   bo.ReadUint32(),
	}
}

// RelRecord is the decoded form of a relationship store record.
//
// Layout: flags(1) start(8) end(8) typeToken(4) startPrev(8) endPrev(8)
// propRef(8) reserved(3). StartPrev/EndPrev are the ids of the previous
// relationship in the start/end node's chain; chain order is unspecified
// beyond "every relationship of the node is reachable". A self-loop links
// through StartPrev only, EndPrev stays NilRef.
type RelRecord struct {
	InUse     bool
	Start     uint64
	End       uint64
	TypeToken uint32
	StartPrev uint64
	EndPrev   uint64
	PropRef   uint64
}

func (r RelRecord) MarshalInto(buf []byte) {
	clear(buf[:RelRecordSize])
	bo := byteops.NewReadWriter(buf)

	var flags uint8
	if r.InUse {
		flags |= flagInUse
	}

	bo.WriteUint8(flags)
	bo.WriteUint64(r.Start)
	bo.WriteUint64(r.End)
	bo.WriteUint32(r.TypeToken)
	bo.WriteUint64(r.StartPrev)
	bo.WriteUint64(r.EndPrev)
	bo.WriteUint64(r.PropRef)
}

func UnmarshalRelRecord(buf []byte) RelRecord {
	bo := byteops.NewReadWriter(buf)
	flags := bo.ReadUint8()

	return RelRecord{
		InUse:     flags&flagInUse != 0,
		Start:     bo.ReadUint64(),
		End:       bo.ReadUint64(),
		TypeToken: bo.ReadUint32(),
		StartPrev: bo.ReadUint64(),
		EndPrev:   bo.ReadUint64(),
		PropRef:   bo.ReadUint64(),
	}
}

// NextInChain returns the id of the relationship preceding r in the chain
// of the given node, or NilRef at the end of the chain.
func (r RelRecord) NextInChain(node uint64) uint64 {
	if r.Start == node {
		return r.StartPrev
	}

	return r.EndPrev
}

// GroupRecord is the decoded form of a relationship-group record. Dense
// nodes get one group per relationship type; a node's groups are linked
// through Next. FirstRel is the newest relationship of the group's type in
// the owner's chain, so a chain walk from there reaches all of them.
//
// Layout: flags(1) owner(8) typeToken(4) firstRel(8) count(4) next(8)
// reserved(7).
type GroupRecord struct {
	InUse     bool
	Owner     uint64
	TypeToken uint32
	FirstRel  uint64
	Count     uint32
	Next      uint64
}

func (r GroupRecord) MarshalInto(buf []byte) {
	clear(buf[:GroupRecordSize])
	bo := byteops.NewReadWriter(buf)

	var flags uint8
	if r.InUse {
		flags |= flagInUse
	}

	bo.WriteUint8(flags)
	bo.WriteUint64(r.Owner)
	bo.WriteUint32(r.TypeToken)
	bo.WriteUint64(r.FirstRel)
	bo.WriteUint32(r.Count)
	bo.WriteUint64(r.Next)
}

func UnmarshalGroupRecord(buf []byte) GroupRecord {
	bo := byteops.NewReadWriter(buf)
	flags := bo.ReadUint8()

	return GroupRecord{
		InUse:     flags&flagInUse != 0,
		Owner:     bo.ReadUint64(),
		TypeToken: bo.ReadUint32(),
		FirstRel:  bo.ReadUint64(),
		Count:     bo.ReadUint32(),
		Next:      bo.ReadUint64(),
	}
}
