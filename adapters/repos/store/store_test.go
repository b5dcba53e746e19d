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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/graphload/adapters/repos/store/storeio"
	"github.com/weaviate/graphload/entities/input"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// buildTestStore writes a small hand-linked graph:
//
//	r0: 0 -> 1 (TYPE0)
//	r1: 0 -> 2 (TYPE0)
//	r2: 0 -> 0 (TYPE1, self-loop)
//
// Node 0's chain is r2 -> r1 -> r0 and is optionally converted to the
// group representation. Nodes 0 and 1 carry {Person, Guy}, 2 and 3 only
// {Person}.
func buildTestStore(t *testing.T, dense bool) string {
	t.Helper()
	dir := t.TempDir()

	st, err := New(dir, storeio.Synchronous(), nil, testLogger())
	require.NoError(t, err)

	nodes := make([]input.Node, 4)
	for i := range nodes {
		labels := []string{"Person"}
		if i < 2 {
			labels = []string{"Person", "Guy"}
		}
		age := int64(10)
		if i == 3 {
			age = 11
		}
		nodes[i] = input.Node{
			ID:     int64(i),
			Labels: labels,
			Properties: []input.KV{
				{Key: "name", Value: fmt.Sprintf("node %d", i)},
				{Key: "age", Value: age},
			},
		}
	}
	require.NoError(t, st.PutNodes(0, nodes))
	require.NoError(t, st.FlushLabelIndex())

	type0 := st.RelTypeToken("TYPE0")
	type1 := st.RelTypeToken("TYPE1")

	rels := []ResolvedRel{
		{Start: 0, End: 1, TypeToken: type0, StartPrev: NilRef, EndPrev: NilRef,
			Props: []input.KV{{Key: "since", Value: int64(2014)}}},
		{Start: 0, End: 2, TypeToken: type0, StartPrev: 0, EndPrev: NilRef},
		// self-loop: links through StartPrev only
		{Start: 0, End: 0, TypeToken: type1, StartPrev: 1, EndPrev: NilRef},
	}
	require.NoError(t, st.PutRelationships(0, rels))

	// linking pass: patch node records the way the pipeline does, by
	// reading the already-completed record writes back
	mm, err := st.MapChannel(NodesChannel)
	require.NoError(t, err)

	recs := make([]NodeRecord, 4)
	for i := range recs {
		recs[i] = UnmarshalNodeRecord(mm[i*NodeRecordSize:])
	}
	require.NoError(t, mm.Unmap())

	recs[0].Degree = 4 // r0 + r1 + self-loop counting twice
	recs[1].Degree = 1
	recs[2].Degree = 1

	recs[1].RelRef = 0
	recs[2].RelRef = 1

	if dense {
		first := st.ReserveGroups(2)
		require.NoError(t, st.PutGroups(first, []GroupRecord{
			{InUse: true, Owner: 0, TypeToken: type0, FirstRel: 1, Count: 2,
				Next: uint64(first) + 1},
			{InUse: true, Owner: 0, TypeToken: type1, FirstRel: 2, Count: 1,
				Next: NilRef},
		}))
		recs[0].Dense = true
		recs[0].RelRef = uint64(first)
	} else {
		recs[0].RelRef = 2
	}

	require.NoError(t, st.WriteNodeRecords(0, recs))
	st.SetCounts(4, 3)
	require.NoError(t, st.Close())

	return dir
}

func relIDs(rels []RelView) []int64 {
	out := make([]int64, len(rels))
	for i, r := range rels {
		out[i] = r.ID
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestStoreRoundTrip(t *testing.T) {
	for _, dense := range []bool{false, true} {
		name := "sparse chain"
		if dense {
			name = "dense groups"
		}

		t.Run(name, func(t *testing.T) {
			dir := buildTestStore(t, dense)

			r, err := OpenReader(dir)
			require.NoError(t, err)
			defer r.Close()

			assert.Equal(t, int64(4), r.NodeCount())
			assert.Equal(t, int64(3), r.RelationshipCount())

			t.Run("node view", func(t *testing.T) {
				node, err := r.Node(0)
				require.NoError(t, err)
				assert.Equal(t, []string{"Person", "Guy"}, node.Labels)
				assert.Equal(t, 4, node.Degree)
				assert.Equal(t, dense, node.Dense)
				require.Len(t, node.Properties, 2)
				assert.Equal(t, "name", node.Properties[0].Key)
				assert.Equal(t, "node 0", node.Properties[0].Value)
			})

			t.Run("all relationships reachable, self-loop once", func(t *testing.T) {
				rels, err := r.Relationships(0)
				require.NoError(t, err)
				assert.Equal(t, []int64{0, 1, 2}, relIDs(rels))
			})

			t.Run("chain seen from the far end", func(t *testing.T) {
				rels, err := r.Relationships(1)
				require.NoError(t, err)
				require.Len(t, rels, 1)
				assert.Equal(t, int64(0), rels[0].ID)
				assert.Equal(t, "TYPE0", rels[0].Type)
				assert.Equal(t, int64(0), rels[0].Start)
				assert.Equal(t, int64(1), rels[0].End)
				require.Len(t, rels[0].Properties, 1)
				assert.Equal(t, "since", rels[0].Properties[0].Key)
			})

			t.Run("node without relationships", func(t *testing.T) {
				rels, err := r.Relationships(3)
				require.NoError(t, err)
				assert.Empty(t, rels)

				degree, err := r.Degree(3)
				require.NoError(t, err)
				assert.Zero(t, degree)
			})

			t.Run("label scan index", func(t *testing.T) {
				guys, err := r.NodesWithLabel("Guy")
				require.NoError(t, err)
				assert.Equal(t, []uint64{0, 1}, guys)

				persons, err := r.NodesWithLabel("Person")
				require.NoError(t, err)
				assert.Equal(t, []uint64{0, 1, 2, 3}, persons)

				none, err := r.NodesWithLabel("Unknown")
				require.NoError(t, err)
				assert.Empty(t, none)

				labels := r.Labels()
				sort.Strings(labels)
				assert.Equal(t, []string{"Guy", "Person"}, labels)
			})

			t.Run("property scan", func(t *testing.T) {
				ids, err := r.FindNodesByProperty("age", int64(10))
				require.NoError(t, err)
				assert.Equal(t, []int64{0, 1, 2}, ids)

				ids, err = r.FindNodesByProperty("age", 11)
				require.NoError(t, err)
				assert.Equal(t, []int64{3}, ids)

				ids, err = r.FindNodesByProperty("name", "node 2")
				require.NoError(t, err)
				assert.Equal(t, []int64{2}, ids)
			})

			t.Run("out of range id", func(t *testing.T) {
				_, err := r.Node(4)
				require.Error(t, err)
				_, err = r.Node(-1)
				require.Error(t, err)
			})
		})
	}
}

func TestTokenRegistry(t *testing.T) {
	reg := newTokenRegistry()

	a := reg.token("TYPE0")
	b := reg.token("TYPE1")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, reg.token("TYPE0"), "interning is stable")

	tokens := reg.tokens([]string{"TYPE1", "TYPE2", "TYPE0"})
	assert.Equal(t, []uint32{b, tokens[1], a}, tokens)

	names := reg.snapshot()
	require.Len(t, names, 3)
	assert.Equal(t, "TYPE0", names[a])
	assert.Equal(t, "TYPE1", names[b])
}

func TestRecordMarshalZeroesReservedBytes(t *testing.T) {
	dirty := func(n int) []byte {
		buf := make([]byte, n)
		for i := range buf {
			buf[i] = 0xaa
		}
		return buf
	}

	t.Run("node record", func(t *testing.T) {
		buf := dirty(NodeRecordSize)
		rec := NodeRecord{InUse: true, Dense: true, RelRef: 1, PropRef: 2,
			LabelRef: 3, Degree: 4}
		rec.MarshalInto(buf)
		assert.Equal(t, []byte{0, 0, 0}, buf[29:])
		assert.Equal(t, rec, UnmarshalNodeRecord(buf))
	})

	t.Run("rel record", func(t *testing.T) {
		buf := dirty(RelRecordSize)
		rec := RelRecord{InUse: true, Start: 1, End: 2, TypeToken: 3,
			StartPrev: 4, EndPrev: 5, PropRef: 6}
		rec.MarshalInto(buf)
		assert.Equal(t, []byte{0, 0, 0}, buf[45:])
		assert.Equal(t, rec, UnmarshalRelRecord(buf))
	})

	t.Run("group record", func(t *testing.T) {
		buf := dirty(GroupRecordSize)
		rec := GroupRecord{InUse: true, Owner: 1, TypeToken: 2, FirstRel: 3,
			Count: 4, Next: 5}
		rec.MarshalInto(buf)
		assert.Equal(t, make([]byte, 7), buf[33:])
		assert.Equal(t, rec, UnmarshalGroupRecord(buf))
	})
}

// Record buffers come from the same pool as the property blobs, so a batch
// can be handed a buffer still holding an earlier blob. The padding behind
// the defined record fields must end up zero on disk regardless.
func TestRecordPaddingZeroAfterBufferRecycling(t *testing.T) {
	dir := t.TempDir()

	st, err := New(dir, storeio.Synchronous(), nil, testLogger())
	require.NoError(t, err)

	// the oversized property pushes a large blob buffer through the pool,
	// where the next record batch will pick it up
	first := []input.Node{{
		ID:         0,
		Labels:     []string{"Person"},
		Properties: []input.KV{{Key: "bio", Value: strings.Repeat("x", 4096)}},
	}}
	require.NoError(t, st.PutNodes(0, first))

	second := make([]input.Node, 8)
	for i := range second {
		second[i] = input.Node{ID: int64(i) + 1, Labels: []string{"Person"}}
	}
	require.NoError(t, st.PutNodes(1, second))

	rels := []ResolvedRel{
		{Start: 0, End: 1, TypeToken: st.RelTypeToken("TYPE0"),
			StartPrev: NilRef, EndPrev: NilRef},
	}
	require.NoError(t, st.PutRelationships(0, rels))
	require.NoError(t, st.FlushLabelIndex())
	st.SetCounts(9, 1)
	require.NoError(t, st.Close())

	nodeData, err := os.ReadFile(filepath.Join(dir, NodesChannel))
	require.NoError(t, err)
	require.Len(t, nodeData, 9*NodeRecordSize)
	for i := 0; i < 9; i++ {
		rec := nodeData[i*NodeRecordSize : (i+1)*NodeRecordSize]
		assert.Equal(t, []byte{0, 0, 0}, rec[29:], "node record %d", i)
	}

	relData, err := os.ReadFile(filepath.Join(dir, RelsChannel))
	require.NoError(t, err)
	require.Len(t, relData, RelRecordSize)
	assert.Equal(t, []byte{0, 0, 0}, relData[45:])
}

func TestRelRecordChainTraversal(t *testing.T) {
	rec := RelRecord{Start: 3, End: 7, StartPrev: 11, EndPrev: 13}
	assert.Equal(t, uint64(11), rec.NextInChain(3))
	assert.Equal(t, uint64(13), rec.NextInChain(7))

	loop := RelRecord{Start: 5, End: 5, StartPrev: 2, EndPrev: NilRef}
	assert.Equal(t, uint64(2), loop.NextInChain(5),
		"a self-loop chains through the start side only")
}

func TestLabelIndexRoundTrip(t *testing.T) {
	idx := newLabelIndex()
	idx.add([]uint32{0, 1}, 4)
	idx.add([]uint32{0}, 9)
	idx.add([]uint32{2}, 1_000_000)

	bitmaps, err := unmarshalLabelIndex(idx.marshal())
	require.NoError(t, err)

	require.Len(t, bitmaps, 3)
	assert.Equal(t, []uint64{4, 9}, bitmaps[0].ToArray())
	assert.Equal(t, []uint64{4}, bitmaps[1].ToArray())
	assert.Equal(t, []uint64{1_000_000}, bitmaps[2].ToArray())
}
