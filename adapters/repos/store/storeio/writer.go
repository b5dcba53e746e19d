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

// Package storeio contains the pluggable write strategies the import
// pipeline pushes store pages through: a synchronous baseline, an
// asynchronous worker queue, a retrying wrapper and a latency-injecting
// wrapper for tests. All strategies share one buffer-ownership rule:
// whoever completes a write returns its buffer to the pool; a failed write
// leaves the buffer with the caller.
package storeio

import (
	"context"
	"io"

	"github.com/weaviate/graphload/entities/batchimport"
)

// Channel is a byte-addressable write target. *os.File satisfies it.
type Channel interface {
	io.WriterAt
	Name() string
}

// Monitor is notified about completed physical writes. Implementations
// must be safe for concurrent use. A nil monitor is allowed.
type Monitor interface {
	BytesWritten(channel string, n int)
}

type noopMonitor struct{}

func (noopMonitor) BytesWritten(string, int) {}

// Writer persists buf at the given byte offset in its channel. The buffer
// must not be touched by the caller again until the write is observably
// complete; on success ownership passes to the writer, which returns the
// buffer to pool once done. Writers are safe for concurrent use.
type Writer interface {
	Write(buf []byte, offset int64, pool *BufferPool) error
}

// WriterFactory creates Writers for store channels and owns the lifecycle
// of whatever machinery sits behind them. AwaitEverythingWritten is the
// barrier: it blocks until every previously submitted write completed.
// Anything that depends on submitted data being visible must call it
// first. Shutdown drains outstanding work and releases resources; it is
// idempotent.
type WriterFactory interface {
	Create(channel Channel, monitor Monitor) (Writer, error)
	AwaitEverythingWritten(ctx context.Context) error
	Shutdown() error
}

type synchronousFactory struct{}

// Synchronous returns the baseline strategy: Write issues the physical
// write and returns only once it completed. It is also the delegate inside
// every other strategy.
func Synchronous() WriterFactory {
	return synchronousFactory{}
}

func (synchronousFactory) Create(channel Channel, monitor Monitor) (Writer, error) {
	if monitor == nil {
		monitor = noopMonitor{}
	}

	return &syncWriter{channel: channel, monitor: monitor}, nil
}

func (synchronousFactory) AwaitEverythingWritten(context.Context) error {
	return nil
}

func (synchronousFactory) Shutdown() error {
	return nil
}

type syncWriter struct {
	channel Channel
	monitor Monitor
}

func (w *syncWriter) Write(buf []byte, offset int64, pool *BufferPool) error {
	if _, err := w.channel.WriteAt(buf, offset); err != nil {
		return &batchimport.IOWriteError{
			Channel: w.channel.Name(),
			Offset:  offset,
			Err:     err,
		}
	}

	w.monitor.BytesWritten(w.channel.Name(), len(buf))
	pool.Put(buf)
	return nil
}
