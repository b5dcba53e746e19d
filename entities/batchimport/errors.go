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

// Package batchimport holds the value types shared across the import
// pipeline: the error taxonomy and the final import report. All errors in
// here are fatal to the import, there is no partial success.
package batchimport

import "fmt"

// RelationshipSide names which endpoint of a relationship an error refers
// to.
type RelationshipSide string

const (
	StartNode RelationshipSide = "start"
	EndNode   RelationshipSide = "end"
)

// MissingReferenceError reports a relationship referencing an external node
// id that was never registered during the node stage.
type MissingReferenceError struct {
	RelationshipID int64
	MissingID      any
	Group          string
	Side           RelationshipSide
}

func (e *MissingReferenceError) Error() string {
	if e.Group != "" {
		return fmt.Sprintf("relationship %d: %s node %v (group %q) was never imported",
			e.RelationshipID, e.Side, e.MissingID, e.Group)
	}

	return fmt.Sprintf("relationship %d: %s node %v was never imported",
		e.RelationshipID, e.Side, e.MissingID)
}

// ConfigurationError reports an invalid import configuration. It is always
// detected before the pipeline starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// IOWriteError reports a failed physical write. The pipeline never retries
// at this layer; a writer strategy may retry internally before surfacing
// one of these.
type IOWriteError struct {
	Channel string
	Offset  int64
	Err     error
}

func (e *IOWriteError) Error() string {
	return fmt.Sprintf("write %s at offset %d: %v", e.Channel, e.Offset, e.Err)
}

func (e *IOWriteError) Unwrap() error {
	return e.Err
}
