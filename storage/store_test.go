package storage_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/pqdag/storage"
	"xdao.co/pqdag/storage/testkit"
)

func TestMemory_Conformance(t *testing.T) {
	testkit.RunConformance(t, func(t *testing.T) storage.Store { return storage.NewMemory() })
}

func TestMultiStore_Conformance(t *testing.T) {
	testkit.RunConformance(t, func(t *testing.T) storage.Store {
		return storage.MultiStore{Stores: []storage.Store{storage.NewMemory(), storage.NewMemory()}}
	})
}

func TestReplicatingStore_Conformance(t *testing.T) {
	testkit.RunConformance(t, func(t *testing.T) storage.Store {
		return storage.ReplicatingStore{Backends: []storage.Named{
			{Name: "a", Store: storage.NewMemory()},
			{Name: "b", Store: storage.NewMemory()},
		}}
	})
}

func TestMultiStore_FallbackAndWriteFirst(t *testing.T) {
	ctx := context.Background()
	first, second := storage.NewMemory(), storage.NewMemory()
	m := storage.MultiStore{Stores: []storage.Store{first, second}}

	id, err := second.Put(ctx, []byte("only in second"))
	require.NoError(t, err)
	got, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("only in second"), got)

	id2, err := m.Put(ctx, []byte("written"))
	require.NoError(t, err)
	ok, _ := first.Has(ctx, id2)
	assert.True(t, ok)
	ok, _ = second.Has(ctx, id2)
	assert.False(t, ok)

	keys, err := m.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []cid.Cid{id, id2}, keys)

	_, err = storage.MultiStore{}.Put(ctx, []byte("x"))
	assert.True(t, errors.Is(err, storage.ErrNoBackends))
}

type lyingStore struct{ storage.Store }

func (l lyingStore) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	return l.Store.Put(ctx, append([]byte("salt"), data...))
}

func TestReplicatingStore_DetectsMismatch(t *testing.T) {
	ctx := context.Background()
	a, b := storage.NewMemory(), storage.NewMemory()
	r := storage.ReplicatingStore{Backends: []storage.Named{
		{Name: "a", Store: a},
		{Name: "liar", Store: lyingStore{b}},
	}}

	_, per, err := r.PutAll(ctx, []byte("payload"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrCIDMismatch))
	assert.Len(t, per, 2)
}

func TestReplicatingStore_WritesAll(t *testing.T) {
	ctx := context.Background()
	a, b := storage.NewMemory(), storage.NewMemory()
	r := storage.ReplicatingStore{Backends: []storage.Named{{Name: "a", Store: a}, {Name: "b", Store: b}}}

	id, per, err := r.PutAll(ctx, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, map[string]cid.Cid{"a": id, "b": id}, per)
	for _, s := range []storage.Store{a, b} {
		ok, err := s.Has(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestCheck(t *testing.T) {
	id, err := storage.Sum([]byte("abc"))
	require.NoError(t, err)
	assert.NoError(t, storage.Check(id, []byte("abc")))
	err = storage.Check(id, []byte("abd"))
	assert.True(t, errors.Is(err, storage.ErrCIDMismatch))
}

func TestMemory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := storage.NewMemory().Put(ctx, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
