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

// Package store owns the on-disk structures the importer produces: fixed
// size node/relationship/group record channels, append-only property and
// label blob channels, a label scan index and a token registry. All record
// writes go through the pluggable storeio strategies; nothing in here ever
// reads its own writes without the caller barriering first.
package store

import (
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/weaviate/graphload/adapters/repos/store/storeio"
	"github.com/weaviate/graphload/entities/input"
	"github.com/weaviate/graphload/usecases/byteops"
)

// Channel file names inside a store directory.
const (
	NodesChannel      = "nodes.db"
	RelsChannel       = "relationships.db"
	GroupsChannel     = "relgroups.db"
	PropsChannel      = "props.db"
	LabelsChannel     = "labels.db"
	LabelIndexChannel = "labelindex.db"

	metaFile = "meta.db"
)

var (
	metaLabelsBucket   = []byte("labels")
	metaRelTypesBucket = []byte("reltypes")
	metaCountsBucket   = []byte("counts")

	metaNodeCountKey  = []byte("nodes")
	metaRelCountKey   = []byte("relationships")
	metaGroupCountKey = []byte("groups")
)

// Store is the write side of a graph store directory. It is created empty,
// filled by exactly one import and then closed; it is not meant to be
// reopened for further writing.
type Store struct {
	dir    string
	logger logrus.FieldLogger

	files   map[string]*os.File
	writers map[string]storeio.Writer
	pool    *storeio.BufferPool

	labels     *tokenRegistry
	relTypes   *tokenRegistry
	labelIndex *labelIndex

	propsTail  atomic.Int64
	labelsTail atomic.Int64
	groupsTail atomic.Int64

	nodeCount atomic.Int64
	relCount  atomic.Int64

	meta *bolt.DB
}

// New creates the store directory and its channels and hooks every channel
// up to a writer from factory. The monitor may be nil.
func New(dir string, factory storeio.WriterFactory, monitor storeio.Monitor,
	logger logrus.FieldLogger,
) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create store directory")
	}

	s := &Store{
		dir:        dir,
		logger:     logger,
		files:      map[string]*os.File{},
		writers:    map[string]storeio.Writer{},
		pool:       storeio.NewBufferPool(),
		labels:     newTokenRegistry(),
		relTypes:   newTokenRegistry(),
		labelIndex: newLabelIndex(),
	}

	channels := []string{
		NodesChannel, RelsChannel, GroupsChannel,
		PropsChannel, LabelsChannel, LabelIndexChannel,
	}
	for _, name := range channels {
		f, err := os.OpenFile(filepath.Join(dir, name),
			os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			s.Close()
			return nil, errors.Wrapf(err, "create channel %q", name)
		}
		s.files[name] = f

		w, err := factory.Create(channelFile{f, name}, monitor)
		if err != nil {
			s.Close()
			return nil, errors.Wrapf(err, "create writer for %q", name)
		}
		s.writers[name] = w
	}

	meta, err := bolt.Open(filepath.Join(dir, metaFile), 0o644, nil)
	if err != nil {
		s.Close()
		return nil, errors.Wrap(err, "open meta store")
	}
	s.meta = meta

	return s, nil
}

// channelFile gives writers a stable channel name regardless of the
// directory the store lives in.
type channelFile struct {
	*os.File
	name string
}

func (c channelFile) Name() string {
	return c.name
}

// LabelTokens interns the given label names.
func (s *Store) LabelTokens(names []string) []uint32 {
	return s.labels.tokens(names)
}

// RelTypeToken interns a relationship type name.
func (s *Store) RelTypeToken(name string) uint32 {
	return s.relTypes.token(name)
}

// PutNodes encodes one batch of nodes whose internal ids are contiguous
// starting at firstID: property and label blobs into their channels, one
// record per node into the node channel, and the nodes' labels into the
// in-memory label index. The relationship fields of the records stay
// unset, the linking pass fills them in.
func (s *Store) PutNodes(firstID int64, nodes []input.Node) error {
	props := newBlobBatch()
	labelBlobs := newBlobBatch()

	type encoded struct {
		propPos  int
		labelPos int
		tokens   []uint32
	}
	encs := make([]encoded, len(nodes))

	for i, node := range nodes {
		propPos, err := props.appendProps(node.Properties)
		if err != nil {
			return errors.Wrapf(err, "encode properties of node %v", node.ID)
		}

		tokens := s.labels.tokens(node.Labels)
		encs[i] = encoded{
			propPos:  propPos,
			labelPos: labelBlobs.appendLabels(tokens),
			tokens:   tokens,
		}
	}

	propBase := s.reserve(&s.propsTail, props.size())
	labelBase := s.reserve(&s.labelsTail, labelBlobs.size())

	recBuf := s.pool.Get(len(nodes) * NodeRecordSize)
	for i := range nodes {
		rec := NodeRecord{
			InUse:    true,
			RelRef:   NilRef,
			PropRef:  uint64(propBase) + uint64(encs[i].propPos),
			LabelRef: uint64(labelBase) + uint64(encs[i].labelPos),
		}
		rec.MarshalInto(recBuf[i*NodeRecordSize:])

		s.labelIndex.add(encs[i].tokens, uint64(firstID)+uint64(i))
	}

	if err := props.flush(s.writers[PropsChannel], propBase, s.pool); err != nil {
		return err
	}
	if err := labelBlobs.flush(s.writers[LabelsChannel], labelBase, s.pool); err != nil {
		return err
	}

	return s.writers[NodesChannel].Write(recBuf, firstID*NodeRecordSize, s.pool)
}

// ResolvedRel is a relationship whose endpoints have been mapped to
// internal ids and whose chain predecessors have been claimed.
type ResolvedRel struct {
	Start     uint64
	End       uint64
	TypeToken uint32
	StartPrev uint64
	EndPrev   uint64
	Props     []input.KV
}

// PutRelationships encodes one batch of resolved relationships with
// contiguous ids starting at firstID.
func (s *Store) PutRelationships(firstID int64, rels []ResolvedRel) error {
	props := newBlobBatch()

	positions := make([]int, len(rels))
	for i, rel := range rels {
		pos, err := props.appendProps(rel.Props)
		if err != nil {
			return errors.Wrapf(err, "encode properties of relationship %d",
				firstID+int64(i))
		}
		positions[i] = pos
	}

	propBase := s.reserve(&s.propsTail, props.size())

	recBuf := s.pool.Get(len(rels) * RelRecordSize)
	for i, rel := range rels {
		rec := RelRecord{
			InUse:     true,
			Start:     rel.Start,
			End:       rel.End,
			TypeToken: rel.TypeToken,
			StartPrev: rel.StartPrev,
			EndPrev:   rel.EndPrev,
			PropRef:   uint64(propBase) + uint64(positions[i]),
		}
		rec.MarshalInto(recBuf[i*RelRecordSize:])
	}

	if err := props.flush(s.writers[PropsChannel], propBase, s.pool); err != nil {
		return err
	}

	return s.writers[RelsChannel].Write(recBuf, firstID*RelRecordSize, s.pool)
}

// ReserveGroups claims n contiguous group record ids and returns the first.
func (s *Store) ReserveGroups(n int) int64 {
	return s.groupsTail.Add(int64(n)) - int64(n)
}

// PutGroups writes group records with contiguous ids starting at firstID.
func (s *Store) PutGroups(firstID int64, groups []GroupRecord) error {
	buf := s.pool.Get(len(groups) * GroupRecordSize)
	for i, g := range groups {
		g.MarshalInto(buf[i*GroupRecordSize:])
	}

	return s.writers[GroupsChannel].Write(buf, firstID*GroupRecordSize, s.pool)
}

// WriteNodeRecords rewrites the records of a contiguous id range. Used by
// the linking pass; the caller must have barriered all earlier node writes
// before reading the state it is now patching.
func (s *Store) WriteNodeRecords(firstID int64, recs []NodeRecord) error {
	buf := s.pool.Get(len(recs) * NodeRecordSize)
	for i, rec := range recs {
		rec.MarshalInto(buf[i*NodeRecordSize:])
	}

	return s.writers[NodesChannel].Write(buf, firstID*NodeRecordSize, s.pool)
}

// FlushLabelIndex persists the accumulated label bitmaps. Call exactly
// once, after the node stage has drained.
func (s *Store) FlushLabelIndex() error {
	marshalled := s.labelIndex.marshal()
	buf := s.pool.Get(len(marshalled))
	copy(buf, marshalled)

	return s.writers[LabelIndexChannel].Write(buf, 0, s.pool)
}

// MapChannel memory-maps a channel read-only at its current size. The
// caller must have barriered all writes it wants to observe and must
// Unmap the result. An empty channel maps to nil.
func (s *Store) MapChannel(name string) (mmap.MMap, error) {
	f, ok := s.files[name]
	if !ok {
		return nil, errors.Errorf("unknown channel %q", name)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "stat channel %q", name)
	}
	if info.Size() == 0 {
		return nil, nil
	}

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap channel %q", name)
	}

	return mm, nil
}

// SetCounts records the final entity counts for the meta store.
func (s *Store) SetCounts(nodes, rels int64) {
	s.nodeCount.Store(nodes)
	s.relCount.Store(rels)
}

func (s *Store) reserve(tail *atomic.Int64, n int) int64 {
	return tail.Add(int64(n)) - int64(n)
}

func (s *Store) writeMeta() error {
	return s.meta.Update(func(tx *bolt.Tx) error {
		if err := writeTokenBucket(tx, metaLabelsBucket, s.labels.snapshot()); err != nil {
			return err
		}
		if err := writeTokenBucket(tx, metaRelTypesBucket, s.relTypes.snapshot()); err != nil {
			return err
		}

		counts, err := tx.CreateBucketIfNotExists(metaCountsBucket)
		if err != nil {
			return err
		}

		for _, entry := range []struct {
			key   []byte
			value int64
		}{
			{metaNodeCountKey, s.nodeCount.Load()},
			{metaRelCountKey, s.relCount.Load()},
			{metaGroupCountKey, s.groupsTail.Load()},
		} {
			buf := make([]byte, byteops.Uint64Len)
			byteops.NewReadWriter(buf).WriteUint64(uint64(entry.value))
			if err := counts.Put(entry.key, buf); err != nil {
				return err
			}
		}

		return nil
	})
}

func writeTokenBucket(tx *bolt.Tx, bucket []byte, names []string) error {
	b, err := tx.CreateBucketIfNotExists(bucket)
	if err != nil {
		return err
	}

	for token, name := range names {
		key := make([]byte, byteops.Uint32Len)
		byteops.NewReadWriter(key).WriteUint32(uint32(token))
		if err := b.Put(key, []byte(name)); err != nil {
			return err
		}
	}

	return nil
}

// Close persists the meta store and closes all channels. The caller must
// have drained its writer factory first; Close does not barrier.
func (s *Store) Close() error {
	var combined *multierror.Error

	if s.meta != nil {
		combined = multierror.Append(combined,
			errors.Wrap(s.writeMeta(), "write meta store"))
		combined = multierror.Append(combined, s.meta.Close())
		s.meta = nil
	}

	for name, f := range s.files {
		combined = multierror.Append(combined,
			errors.Wrapf(f.Close(), "close channel %q", name))
	}
	s.files = map[string]*os.File{}

	return combined.ErrorOrNil()
}
