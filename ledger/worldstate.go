// Package ledger applies verified transactions to account balances.
//
// A WorldState maps encoded public keys to wallets. Apply is all-or-nothing:
// a rejected transaction leaves every wallet untouched, and the sum of
// balances is conserved by every applied transfer.
package ledger

import (
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"xdao.co/pqdag/model"
	"xdao.co/pqdag/pqsig"
	"xdao.co/pqdag/txn"
)

// WorldState is safe for concurrent use. Mutation is serialized by a single
// lock; signature verification and hashing run before it is taken.
type WorldState struct {
	mu      sync.Mutex
	wallets map[string]*wallet
	applied map[string]struct{}
	roots   map[string]struct{}
	// referenced holds known hashes named as a parent by an applied
	// transaction.
	referenced map[string]struct{}
	issuers    map[string]struct{}
	verifier   txn.Verifier
	log        zerolog.Logger
}

func New(opts ...Option) *WorldState {
	w := &WorldState{
		wallets:    make(map[string]*wallet),
		applied:    make(map[string]struct{}),
		roots:      make(map[string]struct{}),
		referenced: make(map[string]struct{}),
		issuers:    make(map[string]struct{}),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.verifier == nil {
		s, err := pqsig.Init().NewSigner(pqsig.DefaultAlgorithm)
		if err != nil {
			panic("ledger: default signature algorithm unavailable: " + err.Error())
		}
		w.verifier = s
	}
	return w
}

// wallet returns the wallet for pk, creating it at zero. Callers hold mu or
// own w exclusively.
func (w *WorldState) wallet(pk string) *wallet {
	wl, ok := w.wallets[pk]
	if !ok {
		wl = newWallet()
		w.wallets[pk] = wl
	}
	return wl
}

// Apply validates stx and, if every check passes, moves Amount from sender to
// receiver. Checks run in order: signature, duplicate, funds, parents.
func (w *WorldState) Apply(stx *txn.SignedTransaction) (*Receipt, error) {
	if stx == nil {
		return nil, model.New(model.KindMalformed, "DAG-LEDGER-001", "nil transaction")
	}

	switch v := stx.Verify(w.verifier); v.Status {
	case txn.Valid:
	case txn.Invalid:
		return nil, w.reject("", model.New(model.KindInvalidSignature, "DAG-LEDGER-101", "signature does not verify"))
	default:
		return nil, w.reject("", model.Wrap(model.KindMalformed, "DAG-LEDGER-102", "malformed transaction", v.Err))
	}

	id, err := stx.ID()
	if err != nil {
		return nil, w.reject("", model.Wrap(model.KindMalformed, "DAG-LEDGER-103", "cannot hash transaction", err))
	}
	hash := id.String()

	w.mu.Lock()
	defer w.mu.Unlock()

	from, to, amount := stx.Sender(), stx.Receiver(), stx.Amount()
	sender, receiver := w.wallets[from], w.wallets[to]

	if sender.seen(hash) || receiver.seen(hash) {
		return nil, w.reject(hash, model.Newf(model.KindDuplicateTransaction, "DAG-LEDGER-201", "transaction %s already applied", hash))
	}

	if sender == nil {
		return nil, w.reject(hash, model.New(model.KindInsufficientFunds, "DAG-LEDGER-301", "sender has no wallet"))
	}
	if sender.balance < amount {
		return nil, w.reject(hash, model.Newf(model.KindInsufficientFunds, "DAG-LEDGER-302", "balance %d below amount %d", sender.balance, amount))
	}

	parents := stx.Parents()
	if len(parents) == 0 {
		if _, ok := w.issuers[from]; !ok {
			return nil, w.reject(hash, model.New(model.KindUnknownParent, "DAG-LEDGER-401", "parentless transaction from a sender that is not an issuer"))
		}
	}
	for _, p := range parents {
		if !w.knownLocked(p) {
			return nil, w.reject(hash, model.Newf(model.KindUnknownParent, "DAG-LEDGER-402", "parent %s is not known", p))
		}
	}

	if from != to && receiver != nil && receiver.balance > math.MaxUint64-amount {
		return nil, w.reject(hash, model.Newf(model.KindOverflow, "DAG-LEDGER-501", "receiver balance %d cannot take %d more", receiver.balance, amount))
	}

	sender.balance -= amount
	if receiver == nil {
		receiver = w.wallet(to)
	}
	receiver.balance += amount
	sender.history[hash] = struct{}{}
	receiver.history[hash] = struct{}{}
	w.applied[hash] = struct{}{}
	for _, p := range parents {
		w.referenced[p] = struct{}{}
	}

	w.log.Debug().
		Str("tx_id", hash).
		Str("sender", pqsig.FingerprintOf(from)).
		Str("receiver", pqsig.FingerprintOf(to)).
		Uint64("amount", amount).
		Msg("Transaction applied")
	return &Receipt{
		Hash:            hash,
		Sender:          from,
		Receiver:        to,
		Amount:          amount,
		Parents:         parents,
		SenderBalance:   sender.balance,
		ReceiverBalance: receiver.balance,
	}, nil
}

func (w *WorldState) reject(hash string, err error) error {
	w.log.Debug().Err(err).Str("tx_id", hash).Str("rule", model.RuleID(err)).Msg("Transaction rejected")
	return err
}

func (w *WorldState) knownLocked(hash string) bool {
	if _, ok := w.applied[hash]; ok {
		return true
	}
	_, ok := w.roots[hash]
	return ok
}

// Balance returns the balance of pk and whether the wallet exists.
func (w *WorldState) Balance(pk string) (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	wl, ok := w.wallets[pk]
	if !ok {
		return 0, false
	}
	return wl.balance, true
}

// Wallet returns a copy of the wallet for pk.
func (w *WorldState) Wallet(pk string) (Wallet, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	wl, ok := w.wallets[pk]
	if !ok {
		return Wallet{}, false
	}
	return wl.export(), true
}

// Known reports whether hash was applied or is a root.
func (w *WorldState) Known(hash string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.knownLocked(hash)
}

// Applied returns the hashes applied to this state, sorted.
func (w *WorldState) Applied() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedKeys(w.applied)
}

// Roots returns the whitelisted root hashes, sorted.
func (w *WorldState) Roots() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedKeys(w.roots)
}

// Tips returns the applied and root hashes that no applied transaction
// references, sorted.
func (w *WorldState) Tips() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tipsLocked()
}

func (w *WorldState) tipsLocked() []string {
	out := make([]string, 0)
	for _, m := range []map[string]struct{}{w.applied, w.roots} {
		for h := range m {
			if _, ok := w.referenced[h]; !ok {
				out = append(out, h)
			}
		}
	}
	sort.Strings(out)
	return dedupSorted(out)
}

// TotalSupply is the sum of all balances.
func (w *WorldState) TotalSupply() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var total uint64
	for _, wl := range w.wallets {
		total += wl.balance
	}
	return total
}

// Len is the number of wallets.
func (w *WorldState) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.wallets)
}

func dedupSorted(s []string) []string {
	out := s[:0]
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			out = append(out, v)
		}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
