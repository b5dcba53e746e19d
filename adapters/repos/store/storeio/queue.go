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
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spaolacci/murmur3"

	enterrors "github.com/weaviate/graphload/entities/errors"
)

const (
	// defaultQueueDepth bounds the number of outstanding write requests per
	// worker. A full worker channel blocks the producer, which is the
	// backpressure that caps memory held by unwritten buffers.
	defaultQueueDepth = 32

	// defaultRegionShift makes every 1 MiB region of a channel sticky to
	// one worker. Writes within a region keep their submission order,
	// writes across regions never overlap, so cross-worker reordering is
	// harmless.
	defaultRegionShift = 20
)

// ErrQueueShutDown is returned by writes submitted after Shutdown.
var ErrQueueShutDown = errors.New("io queue: already shut down")

type writeJob struct {
	writer  Writer
	buf     []byte
	offset  int64
	pool    *BufferPool
	monitor queueDepthMonitor
}

type queueDepthMonitor interface {
	QueueDepthChanged(delta int)
}

// IoQueue fans write requests out across a fixed pool of delegate writers
// so that slow physical I/O does not stall the encoding workers. Requests
// for the same channel region are always dispatched to the same worker
// (murmur3 over channel name and region), which preserves submission order
// wherever order can matter.
type IoQueue struct {
	delegate WriterFactory
	logger   logrus.FieldLogger

	jobs      []chan writeJob
	workersWG sync.WaitGroup
	inflight  *inflightTracker

	depth       int
	regionShift uint

	closeLock sync.RWMutex
	closed    atomic.Bool

	errLock  sync.Mutex
	firstErr error

	shutdownOnce sync.Once
	shutdownErr  error

	depthMonitor queueDepthMonitor
}

type IoQueueOption func(q *IoQueue)

// WithQueueDepth overrides the per-worker bound on outstanding requests.
func WithQueueDepth(depth int) IoQueueOption {
	return func(q *IoQueue) {
		q.depth = depth
	}
}

// WithRegionShift overrides the size (as a power of two) of the channel
// regions that stick to a single worker.
func WithRegionShift(shift uint) IoQueueOption {
	return func(q *IoQueue) {
		q.regionShift = shift
	}
}

// WithQueueDepthMonitor reports the number of queued-but-unwritten
// requests, e.g. to a metrics gauge.
func WithQueueDepthMonitor(m queueDepthMonitor) IoQueueOption {
	return func(q *IoQueue) {
		q.depthMonitor = m
	}
}

// NewIoQueue starts workers goroutines, each executing its share of write
// requests through writers created by delegate.
func NewIoQueue(workers int, delegate WriterFactory,
	logger logrus.FieldLogger, opts ...IoQueueOption,
) *IoQueue {
	if workers < 1 {
		workers = 1
	}

	q := &IoQueue{
		delegate:    delegate,
		logger:      logger,
		inflight:    newInflightTracker(),
		depth:       defaultQueueDepth,
		regionShift: defaultRegionShift,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.jobs = make([]chan writeJob, workers)
	for i := range q.jobs {
		q.jobs[i] = make(chan writeJob, q.depth)
		q.workersWG.Add(1)
		ch := q.jobs[i]
		enterrors.GoWrapper(func() { q.worker(ch) }, logger)
	}

	return q
}

func (q *IoQueue) worker(jobs chan writeJob) {
	defer q.workersWG.Done()

	for job := range jobs {
		if job.monitor != nil {
			job.monitor.QueueDepthChanged(-1)
		}

		if q.errState() != nil {
			// the import is already doomed, settle without touching disk
			job.pool.Put(job.buf)
			q.inflight.done()
			continue
		}

		if err := job.writer.Write(job.buf, job.offset, job.pool); err != nil {
			q.recordErr(err)
		}
		q.inflight.done()
	}
}

// Create returns a Writer that enqueues instead of writing. The returned
// writer is safe for concurrent use; its submissions block only when the
// responsible worker's queue is full.
func (q *IoQueue) Create(channel Channel, monitor Monitor) (Writer, error) {
	delegate, err := q.delegate.Create(channel, monitor)
	if err != nil {
		return nil, errors.Wrapf(err, "create delegate writer for %q", channel.Name())
	}

	return &queuedWriter{
		queue:    q,
		delegate: delegate,
		channel:  channel.Name(),
	}, nil
}

// AwaitEverythingWritten blocks until every write submitted before the
// call has completed, then surfaces the first write error if there was
// one. Every stage transition that depends on prior writes being visible
// goes through here.
func (q *IoQueue) AwaitEverythingWritten(ctx context.Context) error {
	if err := q.inflight.wait(ctx); err != nil {
		return err
	}

	if err := q.delegate.AwaitEverythingWritten(ctx); err != nil {
		return err
	}

	return q.errState()
}

// Shutdown drains outstanding work, stops the workers and shuts the
// delegate down. Subsequent calls return the first call's result.
func (q *IoQueue) Shutdown() error {
	q.shutdownOnce.Do(func() {
		q.inflight.wait(context.Background())

		q.closeLock.Lock()
		q.closed.Store(true)
		for _, ch := range q.jobs {
			close(ch)
		}
		q.closeLock.Unlock()

		q.workersWG.Wait()

		var combined *multierror.Error
		combined = multierror.Append(combined, q.errState())
		combined = multierror.Append(combined, q.delegate.Shutdown())
		q.shutdownErr = combined.ErrorOrNil()
	})

	return q.shutdownErr
}

func (q *IoQueue) pick(channel string, offset int64) int {
	h := murmur3.New64()
	h.Write([]byte(channel))

	var region [8]byte
	binary.LittleEndian.PutUint64(region[:], uint64(offset)>>q.regionShift)
	h.Write(region[:])

	return int(h.Sum64() % uint64(len(q.jobs)))
}

func (q *IoQueue) recordErr(err error) {
	q.errLock.Lock()
	defer q.errLock.Unlock()

	if q.firstErr == nil {
		q.firstErr = err
	}
}

func (q *IoQueue) errState() error {
	q.errLock.Lock()
	defer q.errLock.Unlock()

	return q.firstErr
}

type queuedWriter struct {
	queue    *IoQueue
	delegate Writer
	channel  string
}

func (w *queuedWriter) Write(buf []byte, offset int64, pool *BufferPool) error {
	q := w.queue

	if err := q.errState(); err != nil {
		return err
	}

	q.closeLock.RLock()
	defer q.closeLock.RUnlock()

	if q.closed.Load() {
		return ErrQueueShutDown
	}

	q.inflight.add()
	if q.depthMonitor != nil {
		q.depthMonitor.QueueDepthChanged(1)
	}

	q.jobs[q.pick(w.channel, offset)] <- writeJob{
		writer:  w.delegate,
		buf:     buf,
		offset:  offset,
		pool:    pool,
		monitor: q.depthMonitor,
	}

	return nil
}

// inflightTracker counts submitted-but-unfinished write requests and lets
// waiters block until the count reaches zero. Unlike a sync.WaitGroup it is
// context-aware: a canceled waiter unblocks without leaving a helper
// goroutine behind, and later waits observe the tracker's current state.
type inflightTracker struct {
	lock  sync.Mutex
	count int
	zero  chan struct{} // closed while count is zero
}

func newInflightTracker() *inflightTracker {
	zero := make(chan struct{})
	close(zero)
	return &inflightTracker{zero: zero}
}

func (t *inflightTracker) add() {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.count == 0 {
		t.zero = make(chan struct{})
	}
	t.count++
}

func (t *inflightTracker) done() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.count--
	if t.count == 0 {
		close(t.zero)
	}
}

func (t *inflightTracker) wait(ctx context.Context) error {
	t.lock.Lock()
	zero := t.zero
	t.lock.Unlock()

	select {
	case <-zero:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
