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

package input

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

// IDScheme selects how a Generator identifies the nodes it produces.
type IDScheme string

const (
	// IDsSequential produces int64 ids counting up from 0, i.e. ids that
	// are already dense-compatible.
	IDsSequential IDScheme = "sequential"

	// IDsStringKeyed produces random UUID strings, forcing the importer to
	// build a string id mapping.
	IDsStringKeyed IDScheme = "string-keyed"
)

// Generator produces synthetic node and relationship sequences for tools
// and tests. It holds no mutable state of its own: all randomness comes
// from the *rand.Rand handed to the sequence constructors, and relationship
// endpoints are drawn from the ids the node sequence recorded.
type Generator struct {
	Scheme IDScheme
	Labels []string
	Types  []string

	ids []any
}

// NewGenerator returns a generator producing the given labels on every node
// and cycling relationship types through the given type names.
func NewGenerator(scheme IDScheme, labels, types []string) *Generator {
	return &Generator{Scheme: scheme, Labels: labels, Types: types}
}

func (g *Generator) properties(i int64) []KV {
	return []KV{
		{Key: "name", Value: fmt.Sprintf("Nisse %d", i)},
		{Key: "age", Value: int64(10)},
		{Key: "long-string", Value: "OK here goes... a long string that will certainly " +
			"end up in a dynamic record1234567890!@#$%^&*()_|"},
		{Key: "array", Value: []int64{1234567890123, 987654321987, 123456789123, 987654321987}},
	}
}

func (g *Generator) nextID(i int64) any {
	if g.Scheme == IDsStringKeyed {
		id := uuid.New().String()
		g.ids = append(g.ids, id)
		return id
	}

	g.ids = append(g.ids, i)
	return i
}

// Nodes returns a sequence of count nodes. It must be exhausted before
// Relationships is pulled, as relationship endpoints are sampled from the
// ids produced here.
func (g *Generator) Nodes(count int64) NodeSequence {
	g.ids = make([]any, 0, count)
	var cursor int64

	return FromFunc(func() (Node, bool, error) {
		if cursor >= count {
			return Node{}, false, nil
		}

		node := Node{
			ID:         g.nextID(cursor),
			Properties: g.properties(cursor),
			Labels:     g.Labels,
		}
		cursor++
		return node, true, nil
	})
}

// Relationships returns a sequence of count relationships whose endpoints
// are randomly chosen from the previously generated node ids.
func (g *Generator) Relationships(count int64, rnd *rand.Rand) RelationshipSequence {
	var cursor int64

	return FromFunc(func() (Relationship, bool, error) {
		if cursor >= count {
			return Relationship{}, false, nil
		}

		rel := Relationship{
			ID:         cursor,
			Properties: g.properties(cursor),
			Type:       g.Types[int(cursor)%len(g.Types)],
			StartNode:  g.ids[rnd.Intn(len(g.ids))],
			EndNode:    g.ids[rnd.Intn(len(g.ids))],
		}
		cursor++
		return rel, true, nil
	})
}
