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

// graphload-import generates a synthetic dataset and bulk-loads it into a
// fresh store directory. It exists to exercise and benchmark the import
// pipeline end to end; real input sources plug into the same library API.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/weaviate/graphload/adapters/repos/store"
	"github.com/weaviate/graphload/adapters/repos/store/storeio"
	"github.com/weaviate/graphload/entities/input"
	"github.com/weaviate/graphload/usecases/importer"
	"github.com/weaviate/graphload/usecases/importer/idmapper"
	"github.com/weaviate/graphload/usecases/monitoring"
)

func main() {
	app := &cli.App{
		Name:  "graphload-import",
		Usage: "bulk-load a synthetic graph into a fresh store directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "store-dir", Required: true,
				Usage: "target directory, will be created"},
			&cli.Int64Flag{Name: "nodes", Value: 10_000},
			&cli.Int64Flag{Name: "rels", Value: 100_000},
			&cli.IntFlag{Name: "batch-size", Value: 10_000},
			&cli.IntFlag{Name: "dense-threshold", Value: 50},
			&cli.IntFlag{Name: "workers", Value: 0,
				Usage: "stage worker pool size, 0 means GOMAXPROCS"},
			&cli.IntFlag{Name: "io-workers", Value: 3},
			&cli.IntFlag{Name: "queue-depth", Value: 32},
			&cli.StringFlag{Name: "writer", Value: "queued",
				Usage: "write strategy: sync, queued or queued-retry"},
			&cli.BoolFlag{Name: "string-ids",
				Usage: "use random string ids instead of dense integers"},
			&cli.Int64Flag{Name: "seed", Value: time.Now().UnixNano()},
			&cli.BoolFlag{Name: "verbose"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := logrus.New()
	if c.Bool("verbose") {
		logger.SetLevel(logrus.DebugLevel)
	}

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewImportMetrics(registry)

	factory, err := buildFactory(c, logger, metrics)
	if err != nil {
		return err
	}
	defer factory.Shutdown()

	st, err := store.New(c.String("store-dir"), factory, metrics, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	scheme := input.IDsSequential
	mapper := idmapper.Direct()
	if c.Bool("string-ids") {
		scheme = input.IDsStringKeyed
		mapper = idmapper.StringKeyed(
			idmapper.WithExpectedIDs(uint(c.Int64("nodes"))))
	}

	gen := input.NewGenerator(scheme,
		[]string{"Person", "Guy"},
		[]string{"TYPE0", "TYPE1", "TYPE2"})

	cfg := importer.Config{
		BatchSize:          c.Int("batch-size"),
		DenseNodeThreshold: c.Int("dense-threshold"),
		Workers:            c.Int("workers"),
	}

	im, err := importer.New(st, factory, mapper, cfg, logger,
		importer.WithMonitor(importer.LogMonitor(logger)),
		importer.WithMetrics(metrics))
	if err != nil {
		return err
	}

	nodes := gen.Nodes(c.Int64("nodes"))
	rels := gen.Relationships(c.Int64("rels"),
		rand.New(rand.NewSource(c.Int64("seed"))))

	report, err := im.DoImport(c.Context, nodes, rels)
	if err != nil {
		return errors.Wrap(err, "import failed, discard the store directory")
	}

	logger.WithFields(logrus.Fields{
		"nodes":         report.Nodes,
		"relationships": report.Relationships,
		"properties":    report.Properties,
		"dense_nodes":   report.DenseNodes,
		"took":          report.Took,
	}).Info("import report")

	if c.Bool("verbose") {
		dumpMetrics(registry, logger)
	}

	return nil
}

// dumpMetrics logs the final counter and gauge values. A batch run has no
// scrape endpoint, so this is how the metrics leave the process.
func dumpMetrics(registry *prometheus.Registry, logger logrus.FieldLogger) {
	families, err := registry.Gather()
	if err != nil {
		logger.WithError(err).Warn("gather metrics")
		return
	}

	for _, family := range families {
		for _, metric := range family.GetMetric() {
			entry := logger.WithField("metric", family.GetName())
			for _, label := range metric.GetLabel() {
				entry = entry.WithField(label.GetName(), label.GetValue())
			}

			switch {
			case metric.GetCounter() != nil:
				entry.WithField("value", metric.GetCounter().GetValue()).Debug("metric")
			case metric.GetGauge() != nil:
				entry.WithField("value", metric.GetGauge().GetValue()).Debug("metric")
			case metric.GetHistogram() != nil:
				entry.WithField("count", metric.GetHistogram().GetSampleCount()).
					WithField("sum", metric.GetHistogram().GetSampleSum()).Debug("metric")
			}
		}
	}
}

func buildFactory(c *cli.Context, logger logrus.FieldLogger,
	metrics *monitoring.ImportMetrics,
) (storeio.WriterFactory, error) {
	queued := func(delegate storeio.WriterFactory) storeio.WriterFactory {
		return storeio.NewIoQueue(c.Int("io-workers"), delegate, logger,
			storeio.WithQueueDepth(c.Int("queue-depth")),
			storeio.WithQueueDepthMonitor(metrics))
	}

	switch c.String("writer") {
	case "sync":
		return storeio.Synchronous(), nil
	case "queued":
		return queued(storeio.Synchronous()), nil
	case "queued-retry":
		return queued(storeio.NewRetryFactory(storeio.Synchronous(), 30*time.Second)), nil
	default:
		return nil, errors.Errorf("unknown writer strategy %q", c.String("writer"))
	}
}
