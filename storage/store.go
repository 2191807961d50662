// Package storage persists signed transactions by content identifier.
//
// A Store keys every object by the CID of its bytes, so stored transactions
// are immutable and self-verifying: Get re-hashes what it returns.
package storage

import (
	"context"
	"sort"

	"github.com/ipfs/go-cid"

	"xdao.co/pqdag/hashing"
)

// Store is a content-addressable store for canonical transaction bytes.
//
// Contract:
//   - Put is idempotent and returns hashing.Sum(hashing.Default, data).
//   - Stored objects are immutable.
//   - Get returns ErrNotFound when the CID is absent and ErrCIDMismatch when
//     the stored bytes no longer hash to the CID.
//   - Keys lists every stored CID sorted by string form.
type Store interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) (bool, error)
	Keys(ctx context.Context) ([]cid.Cid, error)
}

// Sum is the identifier a Store assigns to data.
func Sum(data []byte) (cid.Cid, error) {
	id, err := hashing.Sum(hashing.Default, data)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, ErrInvalidCID
	}
	return id, nil
}

// Check returns ErrCIDMismatch unless data hashes to id.
func Check(id cid.Cid, data []byte) error {
	if !hashing.Matches(id, data) {
		return Mismatch(id)
	}
	return nil
}

// SortKeys orders ids by string form, in place, and returns them.
func SortKeys(ids []cid.Cid) []cid.Cid {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
