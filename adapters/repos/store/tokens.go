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

package store

import "sync"

// tokenRegistry interns label and relationship-type names into dense
// uint32 tokens. Tokens are assigned in first-seen order and persisted to
// the meta store on close.
type tokenRegistry struct {
	lock   sync.Mutex
	byName map[string]uint32
	names  []string
}

func newTokenRegistry() *tokenRegistry {
	return &tokenRegistry{byName: map[string]uint32{}}
}

func (r *tokenRegistry) token(name string) uint32 {
	r.lock.Lock()
	defer r.lock.Unlock()

	if token, ok := r.byName[name]; ok {
		return token
	}

	token := uint32(len(r.names))
	r.byName[name] = token
	r.names = append(r.names, name)
	return token
}

func (r *tokenRegistry) tokens(names []string) []uint32 {
	out := make([]uint32, len(names))
	for i, name := range names {
		out[i] = r.token(name)
	}
	return out
}

// snapshot returns the interned names indexed by token.
func (r *tokenRegistry) snapshot() []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
