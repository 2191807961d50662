package txn

import (
	"github.com/ipfs/go-cid"

	"xdao.co/pqdag/codec"
	"xdao.co/pqdag/hashing"
	"xdao.co/pqdag/model"
	"xdao.co/pqdag/pqsig"
)

// SignedTransaction is a payload plus a signature over its canonical bytes.
// It is the unit that is hashed, stored, transmitted and verified.
type SignedTransaction struct {
	tx        Transaction
	signature string
}

// Transaction returns a copy of the embedded payload.
func (s *SignedTransaction) Transaction() *Transaction { return s.tx.clone() }

// Signature returns the base64 signature text.
func (s *SignedTransaction) Signature() string { return s.signature }

func (s *SignedTransaction) Parents() []string { return s.tx.Parents() }
func (s *SignedTransaction) Sender() string    { return s.tx.sender }
func (s *SignedTransaction) Receiver() string  { return s.tx.receiver }
func (s *SignedTransaction) Amount() uint64    { return s.tx.amount }
func (s *SignedTransaction) Timestamp() uint64 { return s.tx.timestamp }

func (s *SignedTransaction) wire() wireSigned {
	return wireSigned{Transaction: s.tx.wire(), Signature: s.signature}
}

// Bytes returns the canonical encoding of payload and signature; the input to
// the content hash and the form persisted by stores.
func (s *SignedTransaction) Bytes() ([]byte, error) {
	return codec.Marshal(s.wire())
}

// ID returns the content identifier of the signed transaction.
func (s *SignedTransaction) ID() (cid.Cid, error) {
	b, err := s.Bytes()
	if err != nil {
		return cid.Undef, err
	}
	return hashing.Sum(hashing.Default, b)
}

// Hash returns the display form of ID. It is "" only if the transaction
// cannot be encoded, which a value built by this package never triggers.
func (s *SignedTransaction) Hash() string {
	id, err := s.ID()
	if err != nil {
		return ""
	}
	return id.String()
}

// Equal reports whether both carry the same payload and signature.
func (s *SignedTransaction) Equal(o *SignedTransaction) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.signature == o.signature && s.tx.equal(&o.tx)
}

// Decode parses the canonical encoding of a signed transaction. Non-canonical
// input is rejected so a record has exactly one hash.
func Decode(data []byte) (*SignedTransaction, error) {
	var w wireSigned
	if err := codec.Canonical(data, &w); err != nil {
		return nil, err
	}
	return &SignedTransaction{tx: fromWire(w.Transaction), signature: w.Signature}, nil
}

// Verifier checks a signature over canonical payload bytes.
type Verifier interface {
	Verify(pk pqsig.PublicKey, msg, sig []byte) (bool, error)
}

// Verify checks the signature against the embedded payload only.
//
// Decode failures of the sender key or the signature are reported as
// Malformed, never as Invalid, so callers can tell corrupt input from a
// rejected signature.
func (s *SignedTransaction) Verify(v Verifier) Verdict {
	pk, err := pqsig.ParsePublicKey(s.tx.sender)
	if err != nil {
		return malformed(err)
	}
	sig, err := pqsig.ParseSignature(s.signature)
	if err != nil {
		return malformed(err)
	}
	msg, err := s.tx.Bytes()
	if err != nil {
		return malformed(err)
	}
	ok, err := v.Verify(pk, msg, sig)
	if err != nil {
		return malformed(err)
	}
	if !ok {
		return Verdict{Status: Invalid}
	}
	return Verdict{Status: Valid}
}

func malformed(err error) Verdict {
	if model.KindOf(err) == "" {
		err = model.Wrap(model.KindMalformed, "DAG-TX-001", "malformed transaction", err)
	}
	return Verdict{Status: Malformed, Err: err}
}
