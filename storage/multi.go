package storage

import (
	"context"

	"github.com/ipfs/go-cid"
)

// MultiStore provides deterministic, ordered fallback across stores.
//
// Read order is the slice order in Stores; callers supply a fixed order.
// Put writes only to the first store. Keys is the sorted union.
type MultiStore struct {
	Stores []Store
}

var _ Store = MultiStore{}

func (m MultiStore) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if len(m.Stores) == 0 {
		return cid.Undef, ErrNoBackends
	}
	return m.Stores[0].Put(ctx, data)
}

func (m MultiStore) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	return getFirst(ctx, id, m.Stores)
}

func (m MultiStore) Has(ctx context.Context, id cid.Cid) (bool, error) {
	return hasAny(ctx, id, m.Stores)
}

func (m MultiStore) Keys(ctx context.Context) ([]cid.Cid, error) {
	return union(ctx, m.Stores)
}

func getFirst(ctx context.Context, id cid.Cid, stores []Store) ([]byte, error) {
	for _, s := range stores {
		b, err := s.Get(ctx, id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, NotFound(id)
}

func hasAny(ctx context.Context, id cid.Cid, stores []Store) (bool, error) {
	for _, s := range stores {
		ok, err := s.Has(ctx, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func union(ctx context.Context, stores []Store) ([]cid.Cid, error) {
	seen := make(map[cid.Cid]struct{})
	var out []cid.Cid
	for _, s := range stores {
		ids, err := s.Keys(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return SortKeys(out), nil
}
