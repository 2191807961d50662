// Package txn implements the transaction records of the DAG ledger.
//
// A Transaction is an immutable payload. Signing it produces a
// SignedTransaction whose signature covers the canonical encoding of the
// payload alone; the content hash covers payload and signature together.
package txn

import (
	"time"

	"xdao.co/pqdag/codec"
	"xdao.co/pqdag/pqsig"
)

// Transaction is the signed payload. Fields are fixed at construction.
type Transaction struct {
	parents   []string
	sender    string
	timestamp uint64
	amount    uint64
	receiver  string
}

// Option configures transaction construction.
type Option func(*buildOptions)

type buildOptions struct {
	now func() time.Time
}

// WithClock sets the wall-clock source used for the timestamp.
func WithClock(now func() time.Time) Option {
	return func(o *buildOptions) { o.now = now }
}

// New builds a transaction payload. No validation happens here; amount and
// parent checks belong to the ledger.
func New(parents []string, sender pqsig.PublicKey, amount uint64, receiver pqsig.PublicKey, opts ...Option) *Transaction {
	o := buildOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Transaction{
		parents:   append([]string{}, parents...),
		sender:    sender.String(),
		timestamp: uint64(o.now().UnixMilli()),
		amount:    amount,
		receiver:  receiver.String(),
	}
}

// NewFromParents is New with parents given as signed transactions; their
// content hashes are referenced in order.
func NewFromParents(parents []*SignedTransaction, sender pqsig.PublicKey, amount uint64, receiver pqsig.PublicKey, opts ...Option) (*Transaction, error) {
	hashes := make([]string, 0, len(parents))
	for _, p := range parents {
		id, err := p.ID()
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, id.String())
	}
	return New(hashes, sender, amount, receiver, opts...), nil
}

func (t *Transaction) Parents() []string { return append([]string{}, t.parents...) }
func (t *Transaction) Sender() string    { return t.sender }
func (t *Transaction) Timestamp() uint64 { return t.timestamp }
func (t *Transaction) Amount() uint64    { return t.amount }
func (t *Transaction) Receiver() string  { return t.receiver }
func (t *Transaction) IsGenesis() bool   { return len(t.parents) == 0 }

// Time returns the timestamp as a time.Time.
func (t *Transaction) Time() time.Time {
	return time.UnixMilli(int64(t.timestamp))
}

// Bytes returns the canonical encoding of the payload: the exact bytes that
// are signed.
func (t *Transaction) Bytes() ([]byte, error) {
	return codec.Marshal(t.wire())
}

// Signer produces signatures over canonical payload bytes.
type Signer interface {
	Sign(sk pqsig.SecretKey, msg []byte) ([]byte, error)
}

// Sign encodes the payload, signs it and wraps both as a SignedTransaction.
func (t *Transaction) Sign(signer Signer, sk pqsig.SecretKey) (*SignedTransaction, error) {
	msg, err := t.Bytes()
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(sk, msg)
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{tx: *t.clone(), signature: pqsig.EncodeSignature(sig)}, nil
}

func (t *Transaction) clone() *Transaction {
	c := *t
	c.parents = append([]string{}, t.parents...)
	return &c
}

func (t *Transaction) equal(o *Transaction) bool {
	if t.sender != o.sender || t.receiver != o.receiver || t.amount != o.amount || t.timestamp != o.timestamp {
		return false
	}
	if len(t.parents) != len(o.parents) {
		return false
	}
	for i := range t.parents {
		if t.parents[i] != o.parents[i] {
			return false
		}
	}
	return true
}
