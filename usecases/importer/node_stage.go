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

	"github.com/weaviate/graphload/entities/batchimport"
	enterrors "github.com/weaviate/graphload/entities/errors"
	"github.com/weaviate/graphload/entities/input"
)

type nodeBatch struct {
	firstID int64
	nodes   []input.Node
}

// nodeStage pulls the node sequence once, assigning internal ids strictly
// in enumeration order on the producer goroutine, and fans complete
// batches out to workers that encode and submit them. Id assignment and
// id-mapping registration are sequential by construction; only the
// encoding is parallel.
func (im *Importer) nodeStage(ctx context.Context, seq input.NodeSequence,
	report *batchimport.Report,
) (int64, error) {
	g, gctx := enterrors.NewErrorGroupWithContextWrapper(im.logger, ctx)
	batches := make(chan nodeBatch, im.cfg.Workers)

	var nodeCount int64
	var propCount atomic.Int64

	g.Go(func() error {
		defer close(batches)

		var nextID int64
		pending := nodeBatch{nodes: make([]input.Node, 0, im.cfg.BatchSize)}

		flush := func() error {
			select {
			case batches <- pending:
			case <-gctx.Done():
				return gctx.Err()
			}
			pending = nodeBatch{
				firstID: nextID,
				nodes:   make([]input.Node, 0, im.cfg.BatchSize),
			}
			return nil
		}

		for {
			node, ok, err := seq.Next()
			if err != nil {
				return errors.Wrap(err, "pull node sequence")
			}
			if !ok {
				break
			}

			if err := im.mapper.Put(node.ID, nextID, node.Group); err != nil {
				return errors.Wrapf(err, "register node id %v", node.ID)
			}

			pending.nodes = append(pending.nodes, node)
			nextID++

			if len(pending.nodes) == im.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}

		if len(pending.nodes) > 0 {
			if err := flush(); err != nil {
				return err
			}
		}

		nodeCount = nextID
		return nil
	})

	for i := 0; i < im.cfg.Workers; i++ {
		g.Go(func() error {
			for batch := range batches {
				if err := im.store.PutNodes(batch.firstID, batch.nodes); err != nil {
					return err
				}

				for _, node := range batch.nodes {
					propCount.Add(int64(len(node.Properties)))
				}

				im.monitor.BatchCompleted(StageNodeImport, len(batch.nodes))
				im.metrics.BatchCompleted(StageNodeImport)
				im.metrics.NodesImported(len(batch.nodes))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	report.Properties += propCount.Load()
	return nodeCount, nil
}
