package kvstore_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alovak/paytrust/internal/kvstore"
	"github.com/stretchr/testify/require"
)

// testStore runs the behaviour every Store must share. advance moves the
// store's clock forward by at least d.
func testStore(t *testing.T, s kvstore.Store, advance func(d time.Duration)) {
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		require.ErrorIs(t, err, kvstore.ErrNotFound)
	})

	t.Run("put and get", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "k1", []byte("v1"), time.Minute))

		got, err := s.Get(ctx, "k1")
		require.NoError(t, err)
		require.Equal(t, []byte("v1"), got)

		require.NoError(t, s.Put(ctx, "k1", []byte("v2"), time.Minute))
		got, err = s.Get(ctx, "k1")
		require.NoError(t, err)
		require.Equal(t, []byte("v2"), got)
	})

	t.Run("non positive ttl is rejected", func(t *testing.T) {
		require.Error(t, s.Put(ctx, "k0", []byte("v"), 0))
		require.Error(t, s.Create(ctx, "k0", []byte("v"), -time.Second))
	})

	t.Run("create refuses live key", func(t *testing.T) {
		require.NoError(t, s.Create(ctx, "k2", []byte("first"), time.Minute))
		err := s.Create(ctx, "k2", []byte("second"), time.Minute)
		require.ErrorIs(t, err, kvstore.ErrConflict)

		got, err := s.Get(ctx, "k2")
		require.NoError(t, err)
		require.Equal(t, []byte("first"), got)
	})

	t.Run("compare and swap", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "k3", []byte("a"), time.Minute))

		ok, err := s.CompareAndSwap(ctx, "k3", []byte("b"), []byte("c"))
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = s.CompareAndSwap(ctx, "k3", []byte("a"), []byte("c"))
		require.NoError(t, err)
		require.True(t, ok)

		got, err := s.Get(ctx, "k3")
		require.NoError(t, err)
		require.Equal(t, []byte("c"), got)

		ok, err = s.CompareAndSwap(ctx, "nope", []byte("a"), []byte("c"))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("concurrent compare and swap has one winner", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "k4", []byte("open"), time.Minute))

		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := s.CompareAndSwap(ctx, "k4", []byte("open"), []byte(fmt.Sprintf("claimed-%d", i)))
				if err == nil && ok {
					atomic.AddInt32(&wins, 1)
				}
			}(i)
		}
		wg.Wait()
		require.Equal(t, int32(1), wins)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "k5", []byte("v"), time.Minute))
		require.NoError(t, s.Delete(ctx, "k5"))
		_, err := s.Get(ctx, "k5")
		require.ErrorIs(t, err, kvstore.ErrNotFound)

		// deleting a missing key is not an error
		require.NoError(t, s.Delete(ctx, "k5"))
	})

	t.Run("expired entries are invisible", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "k6", []byte("v"), time.Second))
		require.NoError(t, s.Put(ctx, "k7", []byte("v"), time.Hour))

		advance(2 * time.Second)

		_, err := s.Get(ctx, "k6")
		require.ErrorIs(t, err, kvstore.ErrNotFound)

		ok, err := s.CompareAndSwap(ctx, "k6", []byte("v"), []byte("w"))
		require.NoError(t, err)
		require.False(t, ok)

		// an expired key can be created again
		require.NoError(t, s.Create(ctx, "k6", []byte("again"), time.Minute))

		_, err = s.Get(ctx, "k7")
		require.NoError(t, err)
	})

	t.Run("swap keeps expiry", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "k8", []byte("a"), time.Second))
		ok, err := s.CompareAndSwap(ctx, "k8", []byte("a"), []byte("b"))
		require.NoError(t, err)
		require.True(t, ok)

		advance(2 * time.Second)

		_, err = s.Get(ctx, "k8")
		require.ErrorIs(t, err, kvstore.ErrNotFound)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, s.Ping(ctx))
	})
}
