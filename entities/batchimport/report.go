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

package batchimport

import "time"

// Report summarizes a successful import. An aborted import produces no
// report, only an error.
type Report struct {
	Nodes         int64
	Relationships int64
	Properties    int64
	DenseNodes    int64

	StageDurations map[string]time.Duration
	Took           time.Duration
}
