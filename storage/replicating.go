package storage

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/ipfs/go-cid"
)

// Named associates a Store with a stable backend name.
type Named struct {
	Name  string
	Store Store
}

// ReplicatingStore writes to every backend and reads in order.
//
// Every backend must return the same CID for a Put, otherwise ErrCIDMismatch
// is returned. Use PutAll for the per-backend mapping.
type ReplicatingStore struct {
	Backends []Named
}

var _ Store = ReplicatingStore{}

// PutAll writes data to all backends and returns the expected CID plus the
// CID each backend reported.
func (r ReplicatingStore) PutAll(ctx context.Context, data []byte) (cid.Cid, map[string]cid.Cid, error) {
	want, err := Sum(data)
	if err != nil {
		return cid.Undef, nil, err
	}
	if len(r.Backends) == 0 {
		return cid.Undef, nil, ErrNoBackends
	}

	out := make(map[string]cid.Cid, len(r.Backends))
	for _, b := range r.Backends {
		if b.Store == nil {
			return cid.Undef, nil, errors.Newf("storage: nil store for backend %q", b.Name)
		}
		got, err := b.Store.Put(ctx, data)
		if err != nil {
			return cid.Undef, nil, errors.Wrapf(err, "backend %q", b.Name)
		}
		out[b.Name] = got
		if got != want {
			return cid.Undef, out, errors.Wrapf(ErrCIDMismatch, "backend %q returned %s, want %s", b.Name, got, want)
		}
	}
	return want, out, nil
}

func (r ReplicatingStore) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(ctx, data)
	return id, err
}

func (r ReplicatingStore) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	return getFirst(ctx, id, r.stores())
}

func (r ReplicatingStore) Has(ctx context.Context, id cid.Cid) (bool, error) {
	return hasAny(ctx, id, r.stores())
}

func (r ReplicatingStore) Keys(ctx context.Context) ([]cid.Cid, error) {
	return union(ctx, r.stores())
}

func (r ReplicatingStore) stores() []Store {
	out := make([]Store, 0, len(r.Backends))
	for _, b := range r.Backends {
		if b.Store != nil {
			out = append(out, b.Store)
		}
	}
	return out
}
