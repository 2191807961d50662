package ledger

import (
	"math"

	"xdao.co/pqdag/hashing"
	"xdao.co/pqdag/model"
)

// Snapshot is a deep, serialisable copy of a WorldState. Issuers and the
// verifier are configuration and are not captured.
type Snapshot struct {
	Wallets map[string]Wallet `json:"wallets"`
	Applied []string          `json:"applied"`
	Roots   []string          `json:"roots,omitempty"`
	// Tips are the hashes no applied transaction references. Absent in
	// older snapshots, in which case every restored root is a tip.
	Tips []string `json:"tips,omitempty"`
}

func (w *WorldState) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Snapshot{
		Wallets: make(map[string]Wallet, len(w.wallets)),
		Applied: sortedKeys(w.applied),
		Roots:   sortedKeys(w.roots),
		Tips:    w.tipsLocked(),
	}
	for pk, wl := range w.wallets {
		s.Wallets[pk] = wl.export()
	}
	return s
}

// FromSnapshot restores a WorldState. Hashes applied in the snapshot become
// roots of the restored state, so new transactions may reference them while
// wallet histories keep rejecting their re-application. Roots outside
// s.Tips are restored as already referenced.
func FromSnapshot(s Snapshot, opts ...Option) (*WorldState, error) {
	var total uint64
	for pk, wl := range s.Wallets {
		if wl.Balance > math.MaxUint64-total {
			return nil, model.Newf(model.KindOverflow, "DAG-LEDGER-601", "total supply overflows at wallet %s", pk)
		}
		total += wl.Balance
		for _, h := range wl.History {
			if _, err := hashing.Parse(h); err != nil {
				return nil, model.Wrap(model.KindDecoding, "DAG-LEDGER-602", "invalid history hash", err)
			}
		}
	}
	roots := make([]string, 0, len(s.Applied)+len(s.Roots))
	roots = append(roots, s.Applied...)
	roots = append(roots, s.Roots...)
	for _, h := range append(roots, s.Tips...) {
		if _, err := hashing.Parse(h); err != nil {
			return nil, model.Wrap(model.KindDecoding, "DAG-LEDGER-603", "invalid root hash", err)
		}
	}

	w := New(append([]Option{WithRoots(roots...)}, opts...)...)
	for pk, wl := range s.Wallets {
		dst := w.wallet(pk)
		dst.balance = wl.Balance
		for _, h := range wl.History {
			dst.history[h] = struct{}{}
		}
	}
	if len(s.Tips) > 0 {
		tips := make(map[string]struct{}, len(s.Tips))
		for _, h := range s.Tips {
			tips[h] = struct{}{}
		}
		for _, h := range roots {
			if _, ok := tips[h]; !ok {
				w.referenced[h] = struct{}{}
			}
		}
	}
	return w, nil
}
