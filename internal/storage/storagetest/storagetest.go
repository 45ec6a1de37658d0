// Package storagetest holds the behaviour every storage.KV backend must share.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/chatquiz/internal/storage"
)

// Run exercises a backend. newKV must return an empty store for every call.
func Run(t *testing.T, newKV func(t *testing.T) storage.KV) {
	t.Run("get missing key", func(t *testing.T) {
		kv := newKV(t)

		_, err := kv.Get(ctx(t), "missing")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		kv := newKV(t)

		rev, err := kv.Put(ctx(t), "k", []byte(`{"a":1}`), 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rev)

		r, err := kv.Get(ctx(t), "k")
		require.NoError(t, err)
		assert.Equal(t, storage.Record{Value: []byte(`{"a":1}`), Revision: 1}, r)

		rev, err = kv.Put(ctx(t), "k", []byte(`{"a":2}`), 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), rev)

		r, err = kv.Get(ctx(t), "k")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"a":2}`), r.Value)
	})

	t.Run("stale revision is a conflict", func(t *testing.T) {
		kv := newKV(t)

		_, err := kv.Put(ctx(t), "k", []byte("v1"), 0)
		require.NoError(t, err)

		_, err = kv.Put(ctx(t), "k", []byte("v2"), 0)
		require.ErrorIs(t, err, storage.ErrConflict, "create over an existing record")

		_, err = kv.Put(ctx(t), "k", []byte("v2"), 5)
		require.ErrorIs(t, err, storage.ErrConflict, "update with a wrong revision")

		err = kv.Delete(ctx(t), "k", 2)
		require.ErrorIs(t, err, storage.ErrConflict, "delete with a wrong revision")

		r, err := kv.Get(ctx(t), "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), r.Value, "rejected writes must not change the record")
	})

	t.Run("delete", func(t *testing.T) {
		kv := newKV(t)

		require.NoError(t, kv.Delete(ctx(t), "absent", 0))

		_, err := kv.Put(ctx(t), "k", []byte("v1"), 0)
		require.NoError(t, err)
		require.NoError(t, kv.Delete(ctx(t), "k", 1))

		_, err = kv.Get(ctx(t), "k")
		require.ErrorIs(t, err, storage.ErrNotFound)

		rev, err := kv.Put(ctx(t), "k", []byte("v2"), 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rev, "a deleted key starts over")
	})

	t.Run("keys are independent", func(t *testing.T) {
		kv := newKV(t)

		_, err := kv.Put(ctx(t), "a", []byte("1"), 0)
		require.NoError(t, err)
		_, err = kv.Put(ctx(t), "b", []byte("2"), 0)
		require.NoError(t, err)
		require.NoError(t, kv.Delete(ctx(t), "a", 1))

		r, err := kv.Get(ctx(t), "b")
		require.NoError(t, err)
		assert.Equal(t, []byte("2"), r.Value)
	})

	t.Run("concurrent creates have one winner", func(t *testing.T) {
		kv := newKV(t)

		const n = 16
		var (
			wg  sync.WaitGroup
			won atomic.Int32
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := kv.Put(context.Background(), "k", []byte(fmt.Sprint(i)), 0); err == nil {
					won.Add(1)
				} else {
					assert.ErrorIs(t, err, storage.ErrConflict)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), won.Load())
	})

	t.Run("ping", func(t *testing.T) {
		kv := newKV(t)
		require.NoError(t, kv.Ping(ctx(t)))
	})
}

func ctx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
