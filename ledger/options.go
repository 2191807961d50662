package ledger

import (
	"github.com/rs/zerolog"

	"xdao.co/pqdag/txn"
)

// Option configures a WorldState.
type Option func(*WorldState)

// WithAllocation seeds pk with an initial balance. A later allocation for the
// same key replaces the earlier one.
func WithAllocation(pk string, balance uint64) Option {
	return func(w *WorldState) {
		w.wallet(pk).balance = balance
	}
}

// WithRoots marks hashes as known without applying them. Parents may
// reference roots.
func WithRoots(hashes ...string) Option {
	return func(w *WorldState) {
		for _, h := range hashes {
			w.roots[h] = struct{}{}
		}
	}
}

// WithIssuers lists the senders allowed to submit parentless transactions.
func WithIssuers(pks ...string) Option {
	return func(w *WorldState) {
		for _, pk := range pks {
			w.issuers[pk] = struct{}{}
		}
	}
}

// WithVerifier sets the signature verifier. The default is a signer for
// pqsig.DefaultAlgorithm.
func WithVerifier(v txn.Verifier) Option {
	return func(w *WorldState) { w.verifier = v }
}

func WithLogger(l zerolog.Logger) Option {
	return func(w *WorldState) { w.log = l }
}
