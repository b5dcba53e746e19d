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

// Package importer drives the one-shot parallel bulk import: sequential id
// assignment, parallel batch encoding, and the stage sequencing that keeps
// the result deterministic despite out-of-order workers. An import that
// fails leaves the store invalid in its entirety.
package importer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/graphload/adapters/repos/store"
	"github.com/weaviate/graphload/adapters/repos/store/storeio"
	"github.com/weaviate/graphload/entities/batchimport"
	"github.com/weaviate/graphload/entities/input"
	"github.com/weaviate/graphload/usecases/importer/idmapper"
	"github.com/weaviate/graphload/usecases/monitoring"
)

// Stage names, in execution order. Each stage is terminal before the next
// begins; a write barrier separates any stage from one that reads its
// output.
const (
	StageNodeImport         = "node_import"
	StageMappingFinalize    = "mapping_finalize"
	StageRelationshipImport = "relationship_import"
	StageLinking            = "linking"
)

// Importer coordinates one import run. It is single-use: create, DoImport
// once, discard.
type Importer struct {
	store   *store.Store
	factory storeio.WriterFactory
	mapper  idmapper.Mapper
	cfg     Config
	logger  logrus.FieldLogger
	monitor ExecutionMonitor
	metrics *monitoring.ImportMetrics
}

type Option func(im *Importer)

// WithMonitor replaces the default silent execution monitor.
func WithMonitor(monitor ExecutionMonitor) Option {
	return func(im *Importer) {
		im.monitor = monitor
	}
}

// WithMetrics attaches prometheus metrics to the pipeline.
func WithMetrics(metrics *monitoring.ImportMetrics) Option {
	return func(im *Importer) {
		im.metrics = metrics
	}
}

// New validates cfg eagerly and returns an importer writing through
// factory into st. The factory must be the same one st's writers were
// created from, as the importer uses it for the stage barriers.
func New(st *store.Store, factory storeio.WriterFactory, mapper idmapper.Mapper,
	cfg Config, logger logrus.FieldLogger, opts ...Option,
) (*Importer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	im := &Importer{
		store:   st,
		factory: factory,
		mapper:  mapper,
		cfg:     cfg,
		logger:  logger,
		monitor: SilentMonitor(),
	}

	for _, opt := range opts {
		opt(im)
	}

	return im, nil
}

// DoImport consumes both sequences exactly once and runs the four stages.
// The first error aborts everything: in-flight work settles, no new work
// is submitted, and the half-written store must be discarded by the
// caller.
func (im *Importer) DoImport(ctx context.Context, nodes input.NodeSequence,
	rels input.RelationshipSequence,
) (*batchimport.Report, error) {
	start := time.Now()
	report := &batchimport.Report{StageDurations: map[string]time.Duration{}}

	var nodeCount int64
	err := im.runStage(ctx, StageNodeImport, report, func(ctx context.Context) error {
		var err error
		nodeCount, err = im.nodeStage(ctx, nodes, report)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = im.runStage(ctx, StageMappingFinalize, report, func(ctx context.Context) error {
		if err := im.mapper.Prepare(ctx); err != nil {
			return errors.Wrap(err, "prepare id mapping")
		}
		return errors.Wrap(im.store.FlushLabelIndex(), "flush label index")
	})
	if err != nil {
		return nil, err
	}

	cache := newNodeCache(nodeCount)

	var relCount int64
	err = im.runStage(ctx, StageRelationshipImport, report, func(ctx context.Context) error {
		var err error
		relCount, err = im.relationshipStage(ctx, rels, cache, report)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = im.runStage(ctx, StageLinking, report, func(ctx context.Context) error {
		return im.linkingStage(ctx, cache, nodeCount, report)
	})
	if err != nil {
		return nil, err
	}

	im.store.SetCounts(nodeCount, relCount)

	report.Nodes = nodeCount
	report.Relationships = relCount
	report.Took = time.Since(start)

	im.logger.WithFields(logrus.Fields{
		"nodes":         report.Nodes,
		"relationships": report.Relationships,
		"took":          report.Took,
	}).Info("import completed")

	return report, nil
}

// runStage wraps a stage with monitoring and, crucially, the write
// barrier: a stage is only complete once every write it submitted is
// confirmed drained.
func (im *Importer) runStage(ctx context.Context, stage string,
	report *batchimport.Report, fn func(ctx context.Context) error,
) error {
	im.monitor.StageStarted(stage)
	start := time.Now()

	if err := fn(ctx); err != nil {
		return errors.Wrapf(err, "stage %s", stage)
	}

	if err := im.factory.AwaitEverythingWritten(ctx); err != nil {
		return errors.Wrapf(err, "drain writes after stage %s", stage)
	}

	took := time.Since(start)
	report.StageDurations[stage] = took
	im.monitor.StageCompleted(stage, took)
	im.metrics.StageCompleted(stage, took)
	return nil
}
