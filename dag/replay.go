package dag

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ipfs/go-cid"
	"github.com/panjf2000/ants/v2"

	"xdao.co/pqdag/model"
	"xdao.co/pqdag/storage"
	"xdao.co/pqdag/txn"
)

// ReplayReport summarizes a Replay. Every stored object lands in exactly
// one list.
type ReplayReport struct {
	Applied  []string    `json:"applied"`
	Skipped  []string    `json:"skipped,omitempty"`
	Rejected []Rejection `json:"rejected,omitempty"`
	Orphaned []string    `json:"orphaned,omitempty"`
}

// Rejection records why a stored object was not applied.
type Rejection struct {
	Hash   string `json:"hash"`
	Rule   string `json:"rule,omitempty"`
	Reason string `json:"reason"`
}

type node struct {
	hash    string
	stx     *txn.SignedTransaction
	pending int
	kids    []*node
}

// Replay loads every transaction in src and applies it parents-first.
// Ready transactions are taken in timestamp order, ties broken by hash.
// Already known hashes are skipped. A transaction whose parent is neither
// stored nor known is orphaned, as is everything that depends on it.
// Applied transactions are not written back to src.
func (g *Graph) Replay(ctx context.Context, src storage.Store) (ReplayReport, error) {
	var rep ReplayReport
	ids, err := src.Keys(ctx)
	if err != nil {
		return rep, errors.Wrap(err, "dag: list store")
	}

	stored := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		stored[id.String()] = struct{}{}
	}
	loaded, err := g.load(ctx, src, ids)
	if err != nil {
		return rep, err
	}
	nodes := make(map[string]*node, len(ids))
	for _, l := range loaded {
		h := l.id.String()
		if l.err != nil {
			rep.Rejected = append(rep.Rejected, rejection(h, l.err))
			continue
		}
		if g.state.Known(h) {
			rep.Skipped = append(rep.Skipped, h)
			continue
		}
		nodes[h] = &node{hash: h, stx: l.stx}
	}

	ready := &queue{}
	for _, n := range nodes {
		for _, p := range n.stx.Parents() {
			if parent, ok := nodes[p]; ok {
				parent.kids = append(parent.kids, n)
				n.pending++
			}
		}
	}
	for _, n := range nodes {
		if n.pending == 0 {
			heap.Push(ready, n)
		}
	}

	done := make(map[string]struct{}, len(nodes))
	orphans := make(map[string]struct{})
	for ready.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		n := heap.Pop(ready).(*node)
		done[n.hash] = struct{}{}
		for _, k := range n.kids {
			k.pending--
			if k.pending == 0 {
				heap.Push(ready, k)
			}
		}

		if g.orphaned(n.stx, stored, orphans) {
			orphans[n.hash] = struct{}{}
			rep.Orphaned = append(rep.Orphaned, n.hash)
			continue
		}
		if err := g.replayOne(n.stx); err != nil {
			rep.Rejected = append(rep.Rejected, rejection(n.hash, err))
			continue
		}
		rep.Applied = append(rep.Applied, n.hash)
	}

	// Content addressing rules out cycles; anything left is unreachable.
	for h := range nodes {
		if _, ok := done[h]; !ok {
			rep.Orphaned = append(rep.Orphaned, h)
		}
	}
	sort.Strings(rep.Orphaned)

	g.log.Info().
		Int("applied", len(rep.Applied)).
		Int("skipped", len(rep.Skipped)).
		Int("rejected", len(rep.Rejected)).
		Int("orphaned", len(rep.Orphaned)).
		Msg("Replay finished")
	return rep, nil
}

// orphaned reports a parent that is neither stored nor known, or that is
// itself an orphan. A parent that was stored but rejected is not missing: the
// child is then rejected by Apply as having an unknown parent.
func (g *Graph) orphaned(stx *txn.SignedTransaction, stored, orphans map[string]struct{}) bool {
	for _, p := range stx.Parents() {
		if _, ok := orphans[p]; ok {
			return true
		}
		if _, ok := stored[p]; !ok && !g.state.Known(p) {
			return true
		}
	}
	return false
}

type loadedTx struct {
	id  cid.Cid
	stx *txn.SignedTransaction
	err error // corrupt object or decode failure
}

// load fetches and decodes ids on a bounded worker pool. Results keep the
// order of ids. An object whose bytes do not match its CID, or that does not
// decode, is recorded on its entry. Any other store error aborts the load.
func (g *Graph) load(ctx context.Context, src storage.Store, ids []cid.Cid) ([]loadedTx, error) {
	out := make([]loadedTx, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	workers := g.workers
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers, ants.WithDisablePurge(true))
	if err != nil {
		return nil, errors.Wrap(err, "dag: worker pool")
	}
	defer func() { _ = pool.ReleaseTimeout(5 * time.Second) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}
	for i, id := range ids {
		out[i].id = id
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			data, err := src.Get(ctx, id)
			if errors.Is(err, storage.ErrCIDMismatch) {
				out[i].err = err
				return
			}
			if err != nil {
				fail(errors.Wrapf(err, "dag: load %s", id))
				return
			}
			out[i].stx, out[i].err = txn.Decode(data)
		})
		if err != nil {
			wg.Done()
			fail(errors.Wrap(err, "dag: schedule load"))
			break
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (g *Graph) replayOne(stx *txn.SignedTransaction) error {
	r, err := g.state.Apply(stx)
	if err != nil {
		return err
	}
	g.link(r.Hash, r.Parents)
	return nil
}

func rejection(hash string, err error) Rejection {
	return Rejection{Hash: hash, Rule: model.RuleID(err), Reason: err.Error()}
}

// queue orders ready nodes by timestamp, then hash.
type queue []*node

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	ti, tj := q[i].stx.Timestamp(), q[j].stx.Timestamp()
	if ti != tj {
		return ti < tj
	}
	return q[i].hash < q[j].hash
}
func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)   { *q = append(*q, x.(*node)) }
func (q *queue) Pop() any {
	old := *q
	n := old[len(old)-1]
	*q = old[:len(old)-1]
	return n
}
