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
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewRetryFactory wraps delegate with exponential-backoff retries on
// failed writes, giving up after maxElapsed. Retrying is safe because a
// write is positional: re-issuing the same buffer at the same offset is
// idempotent. The retry policy is local to this strategy, the pipeline
// above never retries.
func NewRetryFactory(delegate WriterFactory, maxElapsed time.Duration) WriterFactory {
	return &retryFactory{delegate: delegate, maxElapsed: maxElapsed}
}

type retryFactory struct {
	delegate   WriterFactory
	maxElapsed time.Duration

	// zero means the backoff library's default; tests shorten it
	initialInterval time.Duration
}

func (f *retryFactory) Create(channel Channel, monitor Monitor) (Writer, error) {
	delegate, err := f.delegate.Create(channel, monitor)
	if err != nil {
		return nil, err
	}

	return &retryWriter{
		delegate:        delegate,
		maxElapsed:      f.maxElapsed,
		initialInterval: f.initialInterval,
	}, nil
}

func (f *retryFactory) AwaitEverythingWritten(ctx context.Context) error {
	return f.delegate.AwaitEverythingWritten(ctx)
}

func (f *retryFactory) Shutdown() error {
	return f.delegate.Shutdown()
}

type retryWriter struct {
	delegate        Writer
	maxElapsed      time.Duration
	initialInterval time.Duration
}

func (w *retryWriter) Write(buf []byte, offset int64, pool *BufferPool) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = w.maxElapsed
	if w.initialInterval > 0 {
		bo.InitialInterval = w.initialInterval
	}

	return backoff.Retry(func() error {
		return w.delegate.Write(buf, offset, pool)
	}, bo)
}
