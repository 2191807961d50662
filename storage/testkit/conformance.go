// Package testkit holds the behaviour every storage.Store backend must share.
package testkit

import (
	"context"
	"fmt"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/pqdag/hashing"
	"xdao.co/pqdag/storage"
)

// NewStore constructs a fresh, empty Store for a test. The returned store
// must be isolated from other tests.
type NewStore func(t *testing.T) storage.Store

func RunConformance(t *testing.T, newStore NewStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		want := []byte("hello, pqdag storage")

		id, err := s.Put(ctx, want)
		require.NoError(t, err)
		wantID, err := hashing.Sum(hashing.Default, want)
		require.NoError(t, err)
		assert.Equal(t, wantID, id)

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.True(t, hashing.Matches(id, got))
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		s := newStore(t)
		b := []byte("same bytes")

		id1, err := s.Put(ctx, b)
		require.NoError(t, err)
		id2, err := s.Put(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, id1, id2)

		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 1)
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		s := newStore(t)
		b := []byte("missing")
		id, err := storage.Sum(b)
		require.NoError(t, err)

		ok, err := s.Has(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.Get(ctx, id)
		assert.True(t, storage.IsNotFound(err), "got %v", err)

		_, err = s.Put(ctx, b)
		require.NoError(t, err)
		ok, err = s.Has(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		s := newStore(t)
		var undef cid.Cid
		ok, _ := s.Has(ctx, undef)
		assert.False(t, ok)
		_, err := s.Get(ctx, undef)
		assert.Error(t, err)
	})

	t.Run("KeysSorted", func(t *testing.T) {
		s := newStore(t)
		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)

		var want []cid.Cid
		for i := 0; i < 5; i++ {
			id, err := s.Put(ctx, []byte(fmt.Sprintf("object-%d", i)))
			require.NoError(t, err)
			want = append(want, id)
		}
		keys, err = s.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, storage.SortKeys(want), keys)
	})

	t.Run("GetReturnsCopy", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Put(ctx, []byte("stable"))
		require.NoError(t, err)
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		got[0] = 'X'
		again, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []byte("stable"), again)
	})
}
