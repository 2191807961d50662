// Package dag ties the world state to a transaction store: submitted
// transactions are applied and persisted, the set of unreferenced tips is
// tracked, and a store can be replayed into a fresh state.
package dag

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"xdao.co/pqdag/ledger"
	"xdao.co/pqdag/pqsig"
	"xdao.co/pqdag/storage"
	"xdao.co/pqdag/txn"
)

const (
	// DefaultMaxParents caps the parents Issue references.
	DefaultMaxParents = 8
	// DefaultLoadWorkers bounds concurrent store reads during Replay.
	DefaultLoadWorkers = 8
)

// Graph is safe for concurrent use.
type Graph struct {
	state      *ledger.WorldState
	store      storage.Store
	log        zerolog.Logger
	maxParents int
	workers    int

	mu         sync.Mutex
	tips       map[string]struct{}
	referenced map[string]struct{}
}

type Option func(*Graph)

// WithStore persists every applied transaction to s.
func WithStore(s storage.Store) Option {
	return func(g *Graph) { g.store = s }
}

func WithLogger(l zerolog.Logger) Option {
	return func(g *Graph) { g.log = l }
}

func WithMaxParents(n int) Option {
	return func(g *Graph) { g.maxParents = n }
}

// WithLoadWorkers sets how many stored objects Replay fetches at once.
func WithLoadWorkers(n int) Option {
	return func(g *Graph) { g.workers = n }
}

// New builds a Graph over state, starting from the tips state reports.
func New(state *ledger.WorldState, opts ...Option) *Graph {
	g := &Graph{
		state:      state,
		log:        zerolog.Nop(),
		maxParents: DefaultMaxParents,
		workers:    DefaultLoadWorkers,
		tips:       make(map[string]struct{}),
		referenced: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	for _, h := range state.Tips() {
		g.tips[h] = struct{}{}
	}
	return g
}

func (g *Graph) State() *ledger.WorldState { return g.state }

// Submit applies stx and then persists its canonical bytes. When persisting
// fails the receipt is still returned: the state has changed.
func (g *Graph) Submit(ctx context.Context, stx *txn.SignedTransaction) (*ledger.Receipt, error) {
	r, err := g.state.Apply(stx)
	if err != nil {
		return nil, err
	}
	g.link(r.Hash, r.Parents)

	if g.store == nil {
		return r, nil
	}
	if err := g.persist(ctx, stx, r.Hash); err != nil {
		g.log.Error().Err(err).Str("tx_id", r.Hash).Msg("Failed to persist transaction")
		return r, err
	}
	g.log.Info().Str("tx_id", r.Hash).Int("parents", len(r.Parents)).Msg("Transaction added to DAG")
	return r, nil
}

func (g *Graph) persist(ctx context.Context, stx *txn.SignedTransaction, hash string) error {
	data, err := stx.Bytes()
	if err != nil {
		return err
	}
	id, err := g.store.Put(ctx, data)
	if err != nil {
		return errors.Wrapf(err, "dag: persist %s", hash)
	}
	if id.String() != hash {
		return errors.Wrapf(storage.ErrCIDMismatch, "dag: store returned %s for %s", id, hash)
	}
	return nil
}

// link records hash as a tip and retires its parents. A hash that was
// already referenced by a child never becomes a tip.
func (g *Graph) link(hash string, parents []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range parents {
		g.referenced[p] = struct{}{}
		delete(g.tips, p)
	}
	if _, ok := g.referenced[hash]; !ok {
		g.tips[hash] = struct{}{}
	}
}

// Tips returns the known hashes no applied transaction references, sorted.
func (g *Graph) Tips() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.tips))
	for h := range g.tips {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// KeySigner signs and can recover the public key of a secret key.
// *pqsig.Signer implements it.
type KeySigner interface {
	txn.Signer
	PublicKey(sk pqsig.SecretKey) (pqsig.PublicKey, error)
}

// Issue builds a transfer from the owner of sk that references the current
// tips, signs it and submits it. With no tips the transfer is parentless.
func (g *Graph) Issue(ctx context.Context, signer KeySigner, sk pqsig.SecretKey, amount uint64, receiver pqsig.PublicKey, opts ...txn.Option) (*txn.SignedTransaction, *ledger.Receipt, error) {
	sender, err := signer.PublicKey(sk)
	if err != nil {
		return nil, nil, err
	}
	parents := g.Tips()
	if g.maxParents > 0 && len(parents) > g.maxParents {
		parents = parents[:g.maxParents]
	}
	stx, err := txn.New(parents, sender, amount, receiver, opts...).Sign(signer, sk)
	if err != nil {
		return nil, nil, err
	}
	r, err := g.Submit(ctx, stx)
	return stx, r, err
}
