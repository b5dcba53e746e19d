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
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// NewSlowFactory wraps delegate so that roughly one in ten writes is
// delayed by a random duration of up to 100ms before delegating. Relative
// to the delegate nothing is ever reordered or corrupted, only timing
// changes, which makes this useful to shake out concurrency bugs in the
// strategies layered on top. Not meant for production writers.
func NewSlowFactory(delegate WriterFactory, seed int64) WriterFactory {
	return &slowFactory{delegate: delegate, seed: seed}
}

type slowFactory struct {
	delegate WriterFactory
	seed     int64
	created  atomic.Int64
}

func (f *slowFactory) Create(channel Channel, monitor Monitor) (Writer, error) {
	delegate, err := f.delegate.Create(channel, monitor)
	if err != nil {
		return nil, err
	}

	return &slowWriter{
		delegate: delegate,
		rnd:      rand.New(rand.NewSource(f.seed + f.created.Add(1))),
	}, nil
}

func (f *slowFactory) AwaitEverythingWritten(ctx context.Context) error {
	return f.delegate.AwaitEverythingWritten(ctx)
}

func (f *slowFactory) Shutdown() error {
	return f.delegate.Shutdown()
}

type slowWriter struct {
	delegate Writer
	rndLock  sync.Mutex
	rnd      *rand.Rand
}

func (w *slowWriter) Write(buf []byte, offset int64, pool *BufferPool) error {
	w.rndLock.Lock()
	slow := w.rnd.Intn(10) == 0
	var delay time.Duration
	if slow {
		delay = time.Duration(w.rnd.Intn(100)) * time.Millisecond
	}
	w.rndLock.Unlock()

	if slow {
		time.Sleep(delay)
	}

	return w.delegate.Write(buf, offset, pool)
}
