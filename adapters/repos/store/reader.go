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
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/weaviate/sroar"
	bolt "go.etcd.io/bbolt"

	"github.com/weaviate/graphload/entities/input"
	"github.com/weaviate/graphload/usecases/byteops"
)

// Reader is the read side of a finished store directory. It memory-maps
// the record and blob channels and answers the lookups the import's
// correctness is judged by. It must only be opened after the import
// completed and its writers drained.
type Reader struct {
	dir   string
	files []*os.File

	nodes  mmap.MMap
	rels   mmap.MMap
	groups mmap.MMap
	props  mmap.MMap
	labels mmap.MMap

	labelNames   []string
	labelTokens  map[string]uint32
	typeNames    []string
	labelBitmaps map[uint32]*sroar.Bitmap

	nodeCount int64
	relCount  int64
}

// NodeView is a fully decoded node.
type NodeView struct {
	ID         int64
	Labels     []string
	Properties []input.KV
	Degree     int
	Dense      bool
}

// RelView is a fully decoded relationship as seen from one of its nodes.
type RelView struct {
	ID         int64
	Start      int64
	End        int64
	Type       string
	Properties []input.KV
}

// OpenReader opens a finished store directory.
func OpenReader(dir string) (*Reader, error) {
	r := &Reader{dir: dir, labelTokens: map[string]uint32{}}

	if err := r.readMeta(); err != nil {
		r.Close()
		return nil, err
	}

	for _, target := range []struct {
		name string
		mm   *mmap.MMap
	}{
		{NodesChannel, &r.nodes},
		{RelsChannel, &r.rels},
		{GroupsChannel, &r.groups},
		{PropsChannel, &r.props},
		{LabelsChannel, &r.labels},
	} {
		mm, f, err := openMapped(filepath.Join(dir, target.name))
		if err != nil {
			r.Close()
			return nil, errors.Wrapf(err, "map channel %q", target.name)
		}
		*target.mm = mm
		if f != nil {
			r.files = append(r.files, f)
		}
	}

	indexBuf, err := os.ReadFile(filepath.Join(dir, LabelIndexChannel))
	if err != nil {
		r.Close()
		return nil, errors.Wrap(err, "read label index")
	}

	bitmaps, err := unmarshalLabelIndex(indexBuf)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.labelBitmaps = bitmaps

	return r, nil
}

func openMapped(path string) (mmap.MMap, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.Size() == 0 {
		f.Close()
		return nil, nil, nil
	}

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	return mm, f, nil
}

func (r *Reader) readMeta() error {
	meta, err := bolt.Open(filepath.Join(r.dir, metaFile), 0o644,
		&bolt.Options{ReadOnly: true})
	if err != nil {
		return errors.Wrap(err, "open meta store")
	}
	defer meta.Close()

	return meta.View(func(tx *bolt.Tx) error {
		r.labelNames = readTokenBucket(tx, metaLabelsBucket)
		for token, name := range r.labelNames {
			r.labelTokens[name] = uint32(token)
		}
		r.typeNames = readTokenBucket(tx, metaRelTypesBucket)

		counts := tx.Bucket(metaCountsBucket)
		if counts == nil {
			return errors.New("meta store: missing counts")
		}

		r.nodeCount = int64(binary.LittleEndian.Uint64(counts.Get(metaNodeCountKey)))
		r.relCount = int64(binary.LittleEndian.Uint64(counts.Get(metaRelCountKey)))
		return nil
	})
}

func readTokenBucket(tx *bolt.Tx, bucket []byte) []string {
	b := tx.Bucket(bucket)
	if b == nil {
		return nil
	}

	var out []string
	b.ForEach(func(k, v []byte) error {
		token := binary.LittleEndian.Uint32(k)
		for uint32(len(out)) <= token {
			out = append(out, "")
		}
		out[token] = string(v)
		return nil
	})

	return out
}

func (r *Reader) NodeCount() int64 {
	return r.nodeCount
}

func (r *Reader) RelationshipCount() int64 {
	return r.relCount
}

func (r *Reader) nodeRecord(id int64) (NodeRecord, error) {
	offset := id * NodeRecordSize
	if id < 0 || offset+NodeRecordSize > int64(len(r.nodes)) {
		return NodeRecord{}, errors.Errorf("node %d out of range", id)
	}

	rec := UnmarshalNodeRecord(r.nodes[offset:])
	if !rec.InUse {
		return NodeRecord{}, errors.Errorf("node %d not in use", id)
	}

	return rec, nil
}

func (r *Reader) relRecord(id uint64) (RelRecord, error) {
	offset := int64(id) * RelRecordSize
	if offset+RelRecordSize > int64(len(r.rels)) {
		return RelRecord{}, errors.Errorf("relationship %d out of range", id)
	}

	return UnmarshalRelRecord(r.rels[offset:]), nil
}

func (r *Reader) groupRecord(id uint64) (GroupRecord, error) {
	offset := int64(id) * GroupRecordSize
	if offset+GroupRecordSize > int64(len(r.groups)) {
		return GroupRecord{}, errors.Errorf("relationship group %d out of range", id)
	}

	return UnmarshalGroupRecord(r.groups[offset:]), nil
}

// Node returns the fully decoded node with the given internal id.
func (r *Reader) Node(id int64) (*NodeView, error) {
	rec, err := r.nodeRecord(id)
	if err != nil {
		return nil, err
	}

	labels, err := r.labelSet(rec.LabelRef)
	if err != nil {
		return nil, errors.Wrapf(err, "labels of node %d", id)
	}

	props, err := r.propSet(rec.PropRef)
	if err != nil {
		return nil, errors.Wrapf(err, "properties of node %d", id)
	}

	return &NodeView{
		ID:         id,
		Labels:     labels,
		Properties: props,
		Degree:     int(rec.Degree),
		Dense:      rec.Dense,
	}, nil
}

// Degree returns the relationship count of a node as recorded by the
// linking pass.
func (r *Reader) Degree(id int64) (int, error) {
	rec, err := r.nodeRecord(id)
	if err != nil {
		return 0, err
	}

	return int(rec.Degree), nil
}

// Relationships returns every relationship referencing the node, walking
// either the inline chain or the group records depending on the node's
// representation. A self-loop is returned once.
func (r *Reader) Relationships(id int64) ([]RelView, error) {
	rec, err := r.nodeRecord(id)
	if err != nil {
		return nil, err
	}

	node := uint64(id)
	var out []RelView

	collect := func(head uint64, typeToken uint32, filtered bool) error {
		for cur := head; cur != NilRef; {
			rel, err := r.relRecord(cur)
			if err != nil {
				return err
			}
			if rel.Start != node && rel.End != node {
				return errors.Errorf("relationship %d in chain of node %d references neither end",
					cur, id)
			}

			if !filtered || rel.TypeToken == typeToken {
				view, err := r.relView(int64(cur), rel)
				if err != nil {
					return err
				}
				out = append(out, view)
			}

			cur = rel.NextInChain(node)
		}
		return nil
	}

	if !rec.Dense {
		if err := collect(rec.RelRef, 0, false); err != nil {
			return nil, err
		}
		return out, nil
	}

	for groupID := rec.RelRef; groupID != NilRef; {
		group, err := r.groupRecord(groupID)
		if err != nil {
			return nil, err
		}
		if group.Owner != node {
			return nil, errors.Errorf("group %d owned by node %d, reached from node %d",
				groupID, group.Owner, id)
		}

		if err := collect(group.FirstRel, group.TypeToken, true); err != nil {
			return nil, err
		}

		groupID = group.Next
	}

	return out, nil
}

func (r *Reader) relView(id int64, rec RelRecord) (RelView, error) {
	props, err := r.propSet(rec.PropRef)
	if err != nil {
		return RelView{}, errors.Wrapf(err, "properties of relationship %d", id)
	}

	typeName := ""
	if int(rec.TypeToken) < len(r.typeNames) {
		typeName = r.typeNames[rec.TypeToken]
	}

	return RelView{
		ID:         id,
		Start:      int64(rec.Start),
		End:        int64(rec.End),
		Type:       typeName,
		Properties: props,
	}, nil
}

// NodesWithLabel returns the internal ids of all nodes carrying the label,
// served from the label scan index.
func (r *Reader) NodesWithLabel(name string) ([]uint64, error) {
	token, ok := r.labelTokens[name]
	if !ok {
		return nil, nil
	}

	bm, ok := r.labelBitmaps[token]
	if !ok {
		return nil, nil
	}

	return bm.ToArray(), nil
}

// Labels returns all label names present in the store.
func (r *Reader) Labels() []string {
	out := make([]string, 0, len(r.labelNames))
	for _, name := range r.labelNames {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// FindNodesByProperty scans all nodes and returns the ids of those whose
// property key equals value. Numeric values compare across integer widths.
func (r *Reader) FindNodesByProperty(key string, value any) ([]int64, error) {
	var out []int64

	for id := int64(0); id < r.nodeCount; id++ {
		rec, err := r.nodeRecord(id)
		if err != nil {
			return nil, err
		}

		props, err := r.propSet(rec.PropRef)
		if err != nil {
			return nil, errors.Wrapf(err, "properties of node %d", id)
		}

		for _, kv := range props {
			if kv.Key == key && propValueEqual(kv.Value, value) {
				out = append(out, id)
				break
			}
		}
	}

	return out, nil
}

func (r *Reader) labelSet(ref uint64) ([]string, error) {
	payload, err := readBlob(r.labels, ref)
	if err != nil {
		return nil, err
	}

	bo := byteops.NewReadWriter(payload)
	count := bo.ReadUint16()
	out := make([]string, count)
	for i := range out {
		token := bo.ReadUint32()
		if int(token) >= len(r.labelNames) {
			return nil, errors.Errorf("unknown label token %d", token)
		}
		out[i] = r.labelNames[token]
	}

	return out, nil
}

func (r *Reader) propSet(ref uint64) ([]input.KV, error) {
	payload, err := readBlob(r.props, ref)
	if err != nil {
		return nil, err
	}

	var props []input.KV
	if err := msgpack.Unmarshal(payload, &props); err != nil {
		return nil, errors.Wrap(err, "decode property blob")
	}

	return props, nil
}

func readBlob(mm mmap.MMap, ref uint64) ([]byte, error) {
	if ref == NilRef {
		return nil, errors.New("nil blob reference")
	}
	if ref+byteops.Uint32Len > uint64(len(mm)) {
		return nil, errors.Errorf("blob reference %d out of range", ref)
	}

	length := uint64(binary.LittleEndian.Uint32(mm[ref:]))
	start := ref + byteops.Uint32Len
	if start+length > uint64(len(mm)) {
		return nil, errors.Errorf("blob at %d exceeds channel", ref)
	}

	return mm[start : start+length], nil
}

func (r *Reader) Close() error {
	var combined *multierror.Error

	for _, mm := range []mmap.MMap{r.nodes, r.rels, r.groups, r.props, r.labels} {
		if mm != nil {
			combined = multierror.Append(combined, mm.Unmap())
		}
	}
	r.nodes, r.rels, r.groups, r.props, r.labels = nil, nil, nil, nil, nil

	for _, f := range r.files {
		combined = multierror.Append(combined, f.Close())
	}
	r.files = nil

	return combined.ErrorOrNil()
}

// propValueEqual compares two property values loosely: integers compare by
// value across widths, slices compare element-wise, everything else by
// direct equality. msgpack decodes into the smallest fitting type, so a
// stored int64(10) comes back as int8.
func propValueEqual(a, b any) bool {
	if ai, ok := toInt64(a); ok {
		bi, ok := toInt64(b)
		return ok && ai == bi
	}

	if as, ok := a.([]any); ok {
		return sliceEqual(as, b)
	}
	if bs, ok := b.([]any); ok {
		return sliceEqual(bs, a)
	}

	return a == b
}

func sliceEqual(a []any, b any) bool {
	switch bv := b.(type) {
	case []any:
		if len(a) != len(bv) {
			return false
		}
		for i := range a {
			if !propValueEqual(a[i], bv[i]) {
				return false
			}
		}
		return true
	case []int64:
		if len(a) != len(bv) {
			return false
		}
		for i := range a {
			if !propValueEqual(a[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}
