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

package storeio

import (
	"context"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/graphload/entities/batchimport"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func openChannel(t *testing.T, name string) *os.File {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(t.TempDir(), name),
		os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

// writeScript is a reproducible set of non-overlapping writes spread over
// a few regions, so that both a synchronous and a queued run can replay
// the exact same physical layout.
type scriptedWrite struct {
	offset int64
	data   []byte
}

func writeScript(rnd *rand.Rand, count int, chunk int64) []scriptedWrite {
	out := make([]scriptedWrite, 0, count)
	perm := rnd.Perm(count)
	for _, slot := range perm {
		data := make([]byte, chunk)
		rnd.Read(data)
		out = append(out, scriptedWrite{offset: int64(slot) * chunk, data: data})
	}
	return out
}

func replay(t *testing.T, factory WriterFactory, channel Channel,
	script []scriptedWrite, workers int,
) {
	t.Helper()

	w, err := factory.Create(channel, nil)
	require.NoError(t, err)

	pool := NewBufferPool()
	var wg sync.WaitGroup
	jobs := make(chan scriptedWrite)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				buf := pool.Get(len(job.data))
				copy(buf, job.data)
				assert.NoError(t, w.Write(buf, job.offset, pool))
			}
		}()
	}

	for _, job := range script {
		jobs <- job
	}
	close(jobs)
	wg.Wait()

	require.NoError(t, factory.AwaitEverythingWritten(context.Background()))
}

func TestIoQueueMatchesSynchronousByteForByte(t *testing.T) {
	rnd := rand.New(rand.NewSource(0xfeed))
	script := writeScript(rnd, 512, 1024)

	reference := openChannel(t, "reference.db")
	replay(t, Synchronous(), reference, script, 4)

	for _, ioWorkers := range []int{1, 2, 3, 7} {
		queued := openChannel(t, "queued.db")
		// a small region shift spreads the script across all workers,
		// the slow wrapper shakes timing-dependent orderings loose
		q := NewIoQueue(ioWorkers, NewSlowFactory(Synchronous(), 42),
			testLogger(), WithRegionShift(11), WithQueueDepth(4))
		replay(t, q, queued, script, 4)
		require.NoError(t, q.Shutdown())

		want, err := os.ReadFile(reference.Name())
		require.NoError(t, err)
		got, err := os.ReadFile(queued.Name())
		require.NoError(t, err)
		assert.Equal(t, want, got, "with %d io workers", ioWorkers)
	}
}

func TestIoQueueBarrier(t *testing.T) {
	channel := openChannel(t, "barrier.db")
	q := NewIoQueue(2, Synchronous(), testLogger())

	w, err := q.Create(channel, nil)
	require.NoError(t, err)

	payload := []byte("written before the barrier")
	require.NoError(t, w.Write(append([]byte(nil), payload...), 0, nil))
	require.NoError(t, q.AwaitEverythingWritten(context.Background()))

	got, err := os.ReadFile(channel.Name())
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, q.Shutdown())
}

// gatedChannel holds every write until the gate is closed, keeping the
// queue's inflight count above zero for as long as the test needs.
type gatedChannel struct {
	file *os.File
	gate chan struct{}
}

func (c *gatedChannel) WriteAt(p []byte, off int64) (int, error) {
	<-c.gate
	return c.file.WriteAt(p, off)
}

func (c *gatedChannel) Name() string { return c.file.Name() }

func TestIoQueueBarrierHonorsCancellation(t *testing.T) {
	gate := make(chan struct{})
	channel := &gatedChannel{file: openChannel(t, "gated.db"), gate: gate}
	q := NewIoQueue(1, Synchronous(), testLogger())

	w, err := q.Create(channel, nil)
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte("held back"), 0, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// repeated canceled barriers must neither block nor pile up waiter
	// goroutines while the write is stuck
	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		require.ErrorIs(t, q.AwaitEverythingWritten(ctx), context.Canceled)
	}
	assert.LessOrEqual(t, runtime.NumGoroutine(), before+2)

	close(gate)
	require.NoError(t, q.AwaitEverythingWritten(context.Background()))

	got, err := os.ReadFile(channel.Name())
	require.NoError(t, err)
	assert.Equal(t, []byte("held back"), got)

	require.NoError(t, q.Shutdown())
}

func TestInflightTrackerReuse(t *testing.T) {
	tr := newInflightTracker()
	require.NoError(t, tr.wait(context.Background()), "idle tracker does not block")

	tr.add()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, tr.wait(ctx), context.Canceled)

	tr.done()
	require.NoError(t, tr.wait(context.Background()))

	// the zero signal must re-arm once new work arrives after a drain
	tr.add()
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, tr.wait(ctx), context.DeadlineExceeded)
	tr.done()
}

type failingChannel struct {
	name string
	err  error
}

func (c failingChannel) WriteAt([]byte, int64) (int, error) { return 0, c.err }
func (c failingChannel) Name() string                       { return c.name }

func TestIoQueueSurfacesFirstWriteError(t *testing.T) {
	boom := errors.New("disk on fire")
	q := NewIoQueue(2, Synchronous(), testLogger())

	w, err := q.Create(failingChannel{name: "doomed.db", err: boom}, nil)
	require.NoError(t, err)

	// the submission itself may still succeed, the failure surfaces at
	// the barrier at the latest
	_ = w.Write([]byte("x"), 0, nil)

	err = q.AwaitEverythingWritten(context.Background())
	require.Error(t, err)

	var ioErr *batchimport.IOWriteError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "doomed.db", ioErr.Channel)
	assert.ErrorIs(t, ioErr, boom)

	t.Run("subsequent submissions fail fast", func(t *testing.T) {
		err := w.Write([]byte("y"), 1, nil)
		require.Error(t, err)
		require.ErrorAs(t, err, &ioErr)
	})

	t.Run("shutdown reports the error as well", func(t *testing.T) {
		require.Error(t, q.Shutdown())
	})
}

func TestIoQueueShutdown(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		q := NewIoQueue(3, Synchronous(), testLogger())
		require.NoError(t, q.Shutdown())
		require.NoError(t, q.Shutdown())
	})

	t.Run("write after shutdown is rejected", func(t *testing.T) {
		channel := openChannel(t, "late.db")
		q := NewIoQueue(1, Synchronous(), testLogger())

		w, err := q.Create(channel, nil)
		require.NoError(t, err)
		require.NoError(t, q.Shutdown())

		err = w.Write([]byte("too late"), 0, nil)
		require.ErrorIs(t, err, ErrQueueShutDown)

		info, err := os.Stat(channel.Name())
		require.NoError(t, err)
		assert.Zero(t, info.Size())
	})

	t.Run("drains submitted writes before stopping", func(t *testing.T) {
		channel := openChannel(t, "drain.db")
		q := NewIoQueue(2, NewSlowFactory(Synchronous(), 7), testLogger())

		w, err := q.Create(channel, nil)
		require.NoError(t, err)
		for i := int64(0); i < 64; i++ {
			require.NoError(t, w.Write([]byte{byte(i)}, i, nil))
		}
		require.NoError(t, q.Shutdown())

		got, err := os.ReadFile(channel.Name())
		require.NoError(t, err)
		require.Len(t, got, 64)
		for i := range got {
			assert.Equal(t, byte(i), got[i])
		}
	})
}

func TestIoQueueRegionStickiness(t *testing.T) {
	q := NewIoQueue(4, Synchronous(), testLogger())
	defer q.Shutdown()

	// offsets inside the same region must always land on the same worker
	for _, channel := range []string{"nodes.db", "relationships.db"} {
		base := int64(5) << q.regionShift
		first := q.pick(channel, base)
		for delta := int64(1); delta < 1<<q.regionShift; delta <<= 1 {
			assert.Equal(t, first, q.pick(channel, base+delta))
		}
	}
}

func TestBufferPool(t *testing.T) {
	t.Run("recycles buffers of sufficient capacity", func(t *testing.T) {
		p := NewBufferPool()
		buf := p.Get(128)
		require.Len(t, buf, 128)
		p.Put(buf)

		again := p.Get(64)
		require.Len(t, again, 64)
	})

	t.Run("nil pool allocates", func(t *testing.T) {
		var p *BufferPool
		buf := p.Get(16)
		require.Len(t, buf, 16)
		p.Put(buf) // must not panic
	})
}

func TestRetryFactoryRecoversFromTransientErrors(t *testing.T) {
	flaky := &flakyChannel{name: "flaky.db", failures: 3}
	factory := &retryFactory{
		delegate:        Synchronous(),
		initialInterval: time.Millisecond,
	}

	w, err := factory.Create(flaky, nil)
	require.NoError(t, err)

	require.NoError(t, w.Write([]byte("eventually"), 0, nil))
	assert.Equal(t, []byte("eventually"), flaky.written)
	assert.Equal(t, 4, flaky.attempts)

	require.NoError(t, factory.AwaitEverythingWritten(context.Background()))
	require.NoError(t, factory.Shutdown())
}

type flakyChannel struct {
	name     string
	failures int
	attempts int
	written  []byte
}

func (c *flakyChannel) WriteAt(p []byte, off int64) (int, error) {
	c.attempts++
	if c.attempts <= c.failures {
		return 0, errors.New("transient")
	}

	need := off + int64(len(p))
	if int64(len(c.written)) < need {
		grown := make([]byte, need)
		copy(grown, c.written)
		c.written = grown
	}
	copy(c.written[off:], p)
	return len(p), nil
}

func (c *flakyChannel) Name() string { return c.name }
