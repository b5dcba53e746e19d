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
	"context"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/weaviate/graphload/adapters/repos/store"
	"github.com/weaviate/graphload/entities/batchimport"
	enterrors "github.com/weaviate/graphload/entities/errors"
)

// linkingStage decides each node's relationship representation and
// patches the node records accordingly. The dense-or-not decision needs
// the final relationship count per node, which is why it runs as its own
// stage after the relationship writes drained rather than incrementally.
// It reads the relationship channel through an mmap, which the preceding
// barrier made safe.
func (im *Importer) linkingStage(ctx context.Context, cache *nodeCache,
	nodeCount int64, report *batchimport.Report,
) error {
	relsMM, err := im.store.MapChannel(store.RelsChannel)
	if err != nil {
		return err
	}
	if relsMM != nil {
		defer relsMM.Unmap()
	}

	nodesMM, err := im.store.MapChannel(store.NodesChannel)
	if err != nil {
		return err
	}
	if nodesMM != nil {
		defer nodesMM.Unmap()
	}

	g, gctx := enterrors.NewErrorGroupWithContextWrapper(im.logger, ctx)

	var denseCount atomic.Int64

	type idRange struct {
		firstID int64
		count   int
	}
	ranges := make(chan idRange, im.cfg.Workers)

	g.Go(func() error {
		defer close(ranges)

		for firstID := int64(0); firstID < nodeCount; firstID += int64(im.cfg.BatchSize) {
			count := im.cfg.BatchSize
			if rest := nodeCount - firstID; rest < int64(count) {
				count = int(rest)
			}

			select {
			case ranges <- idRange{firstID: firstID, count: count}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < im.cfg.Workers; i++ {
		g.Go(func() error {
			for r := range ranges {
				dense, err := im.linkRange(nodesMM, relsMM, cache, r.firstID, r.count)
				if err != nil {
					return err
				}

				denseCount.Add(dense)
				im.monitor.BatchCompleted(StageLinking, r.count)
				im.metrics.BatchCompleted(StageLinking)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	report.DenseNodes = denseCount.Load()
	return nil
}

// relTypeChain is the per-type view of one dense node's chain: the newest
// relationship of that type plus the type's count, in first-seen order.
type relTypeChain struct {
	typeToken uint32
	firstRel  uint64
	count     uint32
}

func (im *Importer) linkRange(nodesMM, relsMM []byte, cache *nodeCache,
	firstID int64, count int,
) (int64, error) {
	recs := make([]store.NodeRecord, count)
	var denseNodes int64

	// group records for all dense nodes of this range, reserved and
	// written as one contiguous run
	var groups []store.GroupRecord

	type groupRun struct {
		recIndex int
		start    int
		length   int
	}
	var runs []groupRun

	for i := 0; i < count; i++ {
		id := firstID + int64(i)
		rec := store.UnmarshalNodeRecord(nodesMM[id*store.NodeRecordSize:])
		if !rec.InUse {
			return 0, errors.Errorf("node %d missing during linking", id)
		}

		degree := cache.degree(id)
		head := cache.chainHead(id)
		rec.Degree = degree

		if int(degree) <= im.cfg.DenseNodeThreshold {
			rec.RelRef = head
			recs[i] = rec
			continue
		}

		chains, err := collectTypeChains(relsMM, uint64(id), head)
		if err != nil {
			return 0, err
		}

		rec.Dense = true
		denseNodes++
		runs = append(runs, groupRun{recIndex: i, start: len(groups), length: len(chains)})
		for _, c := range chains {
			groups = append(groups, store.GroupRecord{
				InUse:     true,
				Owner:     uint64(id),
				TypeToken: c.typeToken,
				FirstRel:  c.firstRel,
				Count:     c.count,
			})
		}

		recs[i] = rec
	}

	if len(groups) > 0 {
		firstGroup := im.store.ReserveGroups(len(groups))

		for _, run := range runs {
			base := firstGroup + int64(run.start)
			recs[run.recIndex].RelRef = uint64(base)

			for j := 0; j < run.length; j++ {
				next := uint64(store.NilRef)
				if j+1 < run.length {
					next = uint64(base + int64(j) + 1)
				}
				groups[run.start+j].Next = next
			}
		}

		if err := im.store.PutGroups(firstGroup, groups); err != nil {
			return 0, err
		}
	}

	return denseNodes, im.store.WriteNodeRecords(firstID, recs)
}

// collectTypeChains walks one node's chain and aggregates it by
// relationship type. The walk visits every relationship of the node
// exactly once because chain predecessors were claimed atomically.
func collectTypeChains(relsMM []byte, node, head uint64) ([]relTypeChain, error) {
	var chains []relTypeChain
	index := map[uint32]int{}

	for cur := head; cur != store.NilRef; {
		offset := int64(cur) * store.RelRecordSize
		if offset+store.RelRecordSize > int64(len(relsMM)) {
			return nil, errors.Errorf("relationship %d out of range in chain of node %d",
				cur, node)
		}

		rec := store.UnmarshalRelRecord(relsMM[offset:])
		if rec.Start != node && rec.End != node {
			return nil, errors.Errorf("relationship %d in chain of node %d references neither end",
				cur, node)
		}

		if at, ok := index[rec.TypeToken]; ok {
			chains[at].count++
		} else {
			index[rec.TypeToken] = len(chains)
			chains = append(chains, relTypeChain{
				typeToken: rec.TypeToken,
				firstRel:  cur,
				count:     1,
			})
		}

		cur = rec.NextInChain(node)
	}

	return chains, nil
}
