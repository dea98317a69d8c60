package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite exercises the Store contract against one backend. Every
// subtest uses its own key root so backends can share a server.
func runStoreSuite(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("Get missing", func(t *testing.T) {
		v, ok, err := store.Get(ctx, "/suite/missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, v)
	})

	t.Run("Put and Get", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "/suite/put/a", []byte("1")))
		require.NoError(t, store.Put(ctx, "/suite/put/bin", []byte{0x00, 0xff, 0x10}))

		v, ok, err := store.Get(ctx, "/suite/put/a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("1"), v)

		v, ok, err = store.Get(ctx, "/suite/put/bin")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte{0x00, 0xff, 0x10}, v)
	})

	t.Run("GetPrefix is sorted and bounded", func(t *testing.T) {
		for _, k := range []string{"/suite/scan/b", "/suite/scan/a/2", "/suite/scan/a/1", "/suite/scan0", "/suite/sca"} {
			require.NoError(t, store.Put(ctx, k, []byte(k)))
		}
		kvs, err := store.GetPrefix(ctx, "/suite/scan/")
		require.NoError(t, err)

		var keys []string
		for _, kv := range kvs {
			keys = append(keys, kv.Key)
			assert.Equal(t, kv.Key, string(kv.Value))
		}
		assert.Equal(t, []string{"/suite/scan/a/1", "/suite/scan/a/2", "/suite/scan/b"}, keys)

		kvs, err = store.GetPrefix(ctx, "/suite/nothing/")
		require.NoError(t, err)
		assert.Empty(t, kvs)
	})

	t.Run("Txn applies then when conditions hold", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "/suite/txn1/index", []byte("id")))
		ok, err := store.Txn(ctx,
			[]Condition{{Key: "/suite/txn1/index", Exists: true}, {Key: "/suite/txn1/ver", Exists: false}},
			[]KV{{Key: "/suite/txn1/ver", Value: []byte("then")}},
			[]KV{{Key: "/suite/txn1/top", Value: []byte("else")}},
		)
		require.NoError(t, err)
		assert.True(t, ok)

		v, found, err := store.Get(ctx, "/suite/txn1/ver")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("then"), v)
		_, found, err = store.Get(ctx, "/suite/txn1/top")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Txn applies otherwise when a condition fails", func(t *testing.T) {
		ok, err := store.Txn(ctx,
			[]Condition{{Key: "/suite/txn2/index", Exists: true}},
			[]KV{{Key: "/suite/txn2/ver", Value: []byte("then")}},
			[]KV{{Key: "/suite/txn2/index", Value: []byte("id")}, {Key: "/suite/txn2/top", Value: []byte("else")}},
		)
		require.NoError(t, err)
		assert.False(t, ok)

		kvs, err := store.GetPrefix(ctx, "/suite/txn2/")
		require.NoError(t, err)
		require.Len(t, kvs, 2)
		assert.Equal(t, "/suite/txn2/index", kvs[0].Key)
		assert.Equal(t, "/suite/txn2/top", kvs[1].Key)
	})

	t.Run("Txn create race has a single winner", func(t *testing.T) {
		const writers = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners []int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := []byte(fmt.Sprintf("id-%d", i))
				ok, err := store.Txn(ctx,
					[]Condition{{Key: "/suite/race/index", Exists: true}},
					nil,
					[]KV{{Key: "/suite/race/index", Value: id}, {Key: "/suite/race/owner", Value: id}},
				)
				assert.NoError(t, err)
				if err == nil && !ok {
					mu.Lock()
					winners = append(winners, i)
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		require.Len(t, winners, 1)
		want := []byte(fmt.Sprintf("id-%d", winners[0]))
		index, _, err := store.Get(ctx, "/suite/race/index")
		require.NoError(t, err)
		owner, _, err := store.Get(ctx, "/suite/race/owner")
		require.NoError(t, err)
		assert.Equal(t, want, index)
		assert.Equal(t, want, owner)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}
