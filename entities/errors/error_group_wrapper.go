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

// Package errors wraps goroutine creation so that a panic inside a worker
// surfaces as a regular error instead of crashing the process.
package errors

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrorGroupWrapper embeds errgroup.Group and converts panics inside
// spawned goroutines into returned errors.
type ErrorGroupWrapper struct {
	*errgroup.Group
	logger logrus.FieldLogger
}

// NewErrorGroupWithContextWrapper wraps errgroup.WithContext: the returned
// context is canceled as soon as any goroutine returns an error or panics.
func NewErrorGroupWithContextWrapper(logger logrus.FieldLogger,
	ctx context.Context,
) (*ErrorGroupWrapper, context.Context) {
	group, groupCtx := errgroup.WithContext(ctx)
	return &ErrorGroupWrapper{Group: group, logger: logger}, groupCtx
}

// Go overrides the errgroup method to add panic recovery.
func (egw *ErrorGroupWrapper) Go(f func() error) {
	egw.Group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				egw.logger.WithField("panic", r).Errorf("recovered from panic in worker")
				debug.PrintStack()
				err = fmt.Errorf("worker panic: %v", r)
			}
		}()
		return f()
	})
}
