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

package importer

import (
	"runtime"

	"github.com/weaviate/graphload/entities/batchimport"
)

// Config is the small set of tunables that shape the pipeline. It is a
// pure value: components receive the values they need, nothing reads
// configuration globally.
type Config struct {
	// BatchSize bounds the entity count of one unit of parallel work and
	// thereby the memory held in flight between stages.
	BatchSize int

	// DenseNodeThreshold is the relationship count above which a node's
	// relationships are stored in the grouped representation instead of an
	// inline chain. Only the linking stage consumes it.
	DenseNodeThreshold int

	// Workers is the fixed size of each stage's worker pool.
	Workers int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:          10_000,
		DenseNodeThreshold: 50,
		Workers:            runtime.GOMAXPROCS(0),
	}
}

// withDefaults fills unset values without touching set ones.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchSize == 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Workers == 0 {
		c.Workers = def.Workers
	}
	return c
}

// Validate is run before the pipeline starts; an invalid configuration
// never reaches a stage.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return &batchimport.ConfigurationError{
			Field: "batchSize", Reason: "must be positive",
		}
	}
	if c.DenseNodeThreshold < 0 {
		return &batchimport.ConfigurationError{
			Field: "denseNodeThreshold", Reason: "must not be negative",
		}
	}
	if c.Workers <= 0 {
		return &batchimport.ConfigurationError{
			Field: "workers", Reason: "must be positive",
		}
	}

	return nil
}
