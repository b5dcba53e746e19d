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
	"github.com/weaviate/graphload/entities/input"
	"github.com/weaviate/graphload/usecases/importer/idmapper"
)

type relBatch struct {
	firstID int64
	rels    []input.Relationship
}

// relationshipStage mirrors the node stage's producer/worker split: the
// producer assigns relationship ids sequentially, workers resolve
// endpoints through the now-immutable id mapping, claim chain
// predecessors with atomic swaps, and submit encoded batches. An
// unresolvable endpoint is fatal immediately.
func (im *Importer) relationshipStage(ctx context.Context,
	seq input.RelationshipSequence, cache *nodeCache,
	report *batchimport.Report,
) (int64, error) {
	g, gctx := enterrors.NewErrorGroupWithContextWrapper(im.logger, ctx)
	batches := make(chan relBatch, im.cfg.Workers)

	var relCount int64
	var propCount atomic.Int64

	g.Go(func() error {
		defer close(batches)

		var nextID int64
		pending := relBatch{rels: make([]input.Relationship, 0, im.cfg.BatchSize)}

		flush := func() error {
			select {
			case batches <- pending:
			case <-gctx.Done():
				return gctx.Err()
			}
			pending = relBatch{
				firstID: nextID,
				rels:    make([]input.Relationship, 0, im.cfg.BatchSize),
			}
			return nil
		}

		for {
			rel, ok, err := seq.Next()
			if err != nil {
				return errors.Wrap(err, "pull relationship sequence")
			}
			if !ok {
				break
			}

			pending.rels = append(pending.rels, rel)
			nextID++

			if len(pending.rels) == im.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}

		if len(pending.rels) > 0 {
			if err := flush(); err != nil {
				return err
			}
		}

		relCount = nextID
		return nil
	})

	for i := 0; i < im.cfg.Workers; i++ {
		g.Go(func() error {
			for batch := range batches {
				if err := im.processRelBatch(batch, cache, &propCount); err != nil {
					return err
				}

				im.monitor.BatchCompleted(StageRelationshipImport, len(batch.rels))
				im.metrics.BatchCompleted(StageRelationshipImport)
				im.metrics.RelationshipsImported(len(batch.rels))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	report.Properties += propCount.Load()
	return relCount, nil
}

func (im *Importer) processRelBatch(batch relBatch, cache *nodeCache,
	propCount *atomic.Int64,
) error {
	resolved := make([]store.ResolvedRel, len(batch.rels))

	for i, rel := range batch.rels {
		start, err := im.resolveEndpoint(rel, rel.StartNode, batchimport.StartNode)
		if err != nil {
			return err
		}

		end, err := im.resolveEndpoint(rel, rel.EndNode, batchimport.EndNode)
		if err != nil {
			return err
		}

		relID := uint64(batch.firstID + int64(i))
		cache.incDegree(start)
		cache.incDegree(end)

		// A self-loop occupies a single chain slot; linking both prev
		// pointers to the same predecessor would make the chain cyclic.
		startPrev := cache.swapChain(start, relID)
		endPrev := uint64(store.NilRef)
		if start != end {
			endPrev = cache.swapChain(end, relID)
		}

		resolved[i] = store.ResolvedRel{
			Start:     uint64(start),
			End:       uint64(end),
			TypeToken: im.store.RelTypeToken(rel.Type),
			StartPrev: startPrev,
			EndPrev:   endPrev,
			Props:     rel.Properties,
		}

		propCount.Add(int64(len(rel.Properties)))
	}

	return im.store.PutRelationships(batch.firstID, resolved)
}

func (im *Importer) resolveEndpoint(rel input.Relationship, external any,
	side batchimport.RelationshipSide,
) (int64, error) {
	internal, err := im.mapper.Get(external, rel.Group)
	if err != nil {
		if errors.Is(err, idmapper.ErrNotRegistered) {
			return 0, &batchimport.MissingReferenceError{
				RelationshipID: rel.ID,
				MissingID:      external,
				Group:          rel.Group,
				Side:           side,
			}
		}
		return 0, errors.Wrapf(err, "resolve %s node of relationship %d", side, rel.ID)
	}

	return internal, nil
}
