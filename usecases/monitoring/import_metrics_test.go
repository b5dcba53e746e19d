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

package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewImportMetrics(reg)
	require.NotNil(t, m)

	m.NodesImported(100)
	m.RelationshipsImported(250)
	m.BatchCompleted("node_import")
	m.BatchCompleted("node_import")
	m.BytesWritten("nodes.db", 4096)
	m.QueueDepthChanged(3)
	m.QueueDepthChanged(-1)
	m.StageCompleted("linking", 50*time.Millisecond)

	assert.Equal(t, float64(100), testutil.ToFloat64(m.nodesImported))
	assert.Equal(t, float64(250), testutil.ToFloat64(m.relsImported))
	assert.Equal(t, float64(2),
		testutil.ToFloat64(m.batches.WithLabelValues("node_import")))
	assert.Equal(t, float64(4096),
		testutil.ToFloat64(m.bytesWritten.WithLabelValues("nodes.db")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.queueDepth))
}

func TestImportMetricsNilReceiver(t *testing.T) {
	assert.Nil(t, NewImportMetrics(nil))

	// all observations must be safe without a registry
	var m *ImportMetrics
	m.NodesImported(1)
	m.RelationshipsImported(1)
	m.BatchCompleted("x")
	m.BytesWritten("x", 1)
	m.QueueDepthChanged(1)
	m.StageCompleted("x", time.Second)
}
