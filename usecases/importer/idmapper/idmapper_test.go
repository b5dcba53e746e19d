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

package idmapper

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectMapper(t *testing.T) {
	ctx := context.Background()

	t.Run("identity round trip", func(t *testing.T) {
		m := Direct()
		for i := int64(0); i < 100; i++ {
			require.NoError(t, m.Put(i, i, ""))
		}
		require.NoError(t, m.Prepare(ctx))

		got, err := m.Get(int64(42), "")
		require.NoError(t, err)
		assert.Equal(t, int64(42), got)
	})

	t.Run("accepts any integer width on input", func(t *testing.T) {
		m := Direct()
		require.NoError(t, m.Put(int(0), 0, ""))
		require.NoError(t, m.Put(int32(1), 1, ""))
		require.NoError(t, m.Put(uint64(2), 2, ""))

		got, err := m.Get(int32(1), "")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)
	})

	t.Run("rejects non integer ids", func(t *testing.T) {
		m := Direct()
		err := m.Put("abc", 0, "")
		require.Error(t, err)
	})

	t.Run("rejects ids out of input order", func(t *testing.T) {
		m := Direct()
		require.NoError(t, m.Put(int64(0), 0, ""))
		err := m.Put(int64(7), 1, "")
		require.Error(t, err)
	})

	t.Run("unseen id is not registered", func(t *testing.T) {
		m := Direct()
		require.NoError(t, m.Put(int64(0), 0, ""))
		require.NoError(t, m.Prepare(ctx))

		_, err := m.Get(int64(1), "")
		require.ErrorIs(t, err, ErrNotRegistered)

		_, err = m.Get(int64(-1), "")
		require.ErrorIs(t, err, ErrNotRegistered)
	})

	t.Run("empty mapper registers nothing", func(t *testing.T) {
		m := Direct()
		require.NoError(t, m.Prepare(ctx))

		_, err := m.Get(int64(0), "")
		require.ErrorIs(t, err, ErrNotRegistered)
	})
}

func TestStringKeyedMapper(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		m := StringKeyed(WithExpectedIDs(1000))
		for i := int64(0); i < 1000; i++ {
			require.NoError(t, m.Put(fmt.Sprintf("id-%d", i), i, ""))
		}
		require.NoError(t, m.Prepare(ctx))

		for i := int64(0); i < 1000; i++ {
			got, err := m.Get(fmt.Sprintf("id-%d", i), "")
			require.NoError(t, err)
			assert.Equal(t, i, got)
		}
	})

	t.Run("groups are independent namespaces", func(t *testing.T) {
		m := StringKeyed()
		require.NoError(t, m.Put("alice", 0, "users"))
		require.NoError(t, m.Put("alice", 1, "admins"))
		require.NoError(t, m.Prepare(ctx))

		got, err := m.Get("alice", "users")
		require.NoError(t, err)
		assert.Equal(t, int64(0), got)

		got, err = m.Get("alice", "admins")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)

		_, err = m.Get("alice", "visitors")
		require.ErrorIs(t, err, ErrNotRegistered)
	})

	t.Run("duplicate id in same group fails", func(t *testing.T) {
		m := StringKeyed()
		require.NoError(t, m.Put("alice", 0, ""))
		err := m.Put("alice", 1, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("missing id is not registered", func(t *testing.T) {
		m := StringKeyed()
		require.NoError(t, m.Put("alice", 0, ""))
		require.NoError(t, m.Prepare(ctx))

		_, err := m.Get("bob", "")
		require.ErrorIs(t, err, ErrNotRegistered)
	})

	t.Run("rejects non string ids", func(t *testing.T) {
		m := StringKeyed()
		require.Error(t, m.Put(int64(7), 0, ""))

		require.NoError(t, m.Prepare(ctx))
		_, err := m.Get(int64(7), "")
		require.Error(t, err)
	})

	t.Run("put after seal fails", func(t *testing.T) {
		m := StringKeyed()
		require.NoError(t, m.Put("alice", 0, ""))
		require.NoError(t, m.Prepare(ctx))

		err := m.Put("bob", 1, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sealed")
	})

	t.Run("get before prepare fails", func(t *testing.T) {
		m := StringKeyed()
		require.NoError(t, m.Put("alice", 0, ""))

		_, err := m.Get("alice", "")
		require.Error(t, err)
	})
}
