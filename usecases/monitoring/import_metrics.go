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

// Package monitoring exposes the import pipeline's prometheus metrics.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ImportMetrics observes one import run. All methods are nil-receiver
// safe, so callers never need to branch on whether metrics are enabled.
type ImportMetrics struct {
	nodesImported  prometheus.Counter
	relsImported   prometheus.Counter
	batches        *prometheus.CounterVec
	bytesWritten   *prometheus.CounterVec
	queueDepth     prometheus.Gauge
	stageDurations *prometheus.HistogramVec
}

// NewImportMetrics registers the import metrics with reg. A nil registerer
// returns nil, which disables all observations.
func NewImportMetrics(reg prometheus.Registerer) *ImportMetrics {
	if reg == nil {
		return nil
	}

	return &ImportMetrics{
		nodesImported: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "graphload",
			Name:      "nodes_imported_total",
			Help:      "Number of nodes encoded and submitted to the store",
		}),
		relsImported: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "graphload",
			Name:      "relationships_imported_total",
			Help:      "Number of relationships encoded and submitted to the store",
		}),
		batches: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphload",
			Name:      "batches_total",
			Help:      "Number of batches processed per stage",
		}, []string{"stage"}),
		bytesWritten: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphload",
			Name:      "bytes_written_total",
			Help:      "Bytes physically written per store channel",
		}, []string{"channel"}),
		queueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "graphload",
			Name:      "write_queue_depth",
			Help:      "Write requests currently queued but not yet written",
		}),
		stageDurations: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "graphload",
			Name:      "stage_seconds",
			Help:      "Wall time per pipeline stage",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage"}),
	}
}

func (m *ImportMetrics) NodesImported(n int) {
	if m == nil {
		return
	}
	m.nodesImported.Add(float64(n))
}

func (m *ImportMetrics) RelationshipsImported(n int) {
	if m == nil {
		return
	}
	m.relsImported.Add(float64(n))
}

func (m *ImportMetrics) BatchCompleted(stage string) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(stage).Inc()
}

// BytesWritten implements the storeio monitor contract.
func (m *ImportMetrics) BytesWritten(channel string, n int) {
	if m == nil {
		return
	}
	m.bytesWritten.WithLabelValues(channel).Add(float64(n))
}

// QueueDepthChanged implements the write queue's depth monitor contract.
func (m *ImportMetrics) QueueDepthChanged(delta int) {
	if m == nil {
		return
	}
	m.queueDepth.Add(float64(delta))
}

func (m *ImportMetrics) StageCompleted(stage string, took time.Duration) {
	if m == nil {
		return
	}
	m.stageDurations.WithLabelValues(stage).Observe(took.Seconds())
}
