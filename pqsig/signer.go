package pqsig

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign"

	"xdao.co/pqdag/model"
)

var (
	errEmpty        = errors.New("empty input")
	errNotCanonical = errors.New("not canonical standard base64")
)

// Option configures a Signer.
type Option func(*Signer)

// WithRand sets the entropy source used for key generation. It defaults to
// crypto/rand.Reader.
func WithRand(r io.Reader) Option {
	return func(s *Signer) { s.rand = r }
}

// Signer signs and verifies with one algorithm. It holds no mutable state.
type Signer struct {
	alg  Algorithm
	rand io.Reader
}

// NewSigner returns a Signer for the named algorithm ("" selects
// DefaultAlgorithm).
func (c *Context) NewSigner(name string, opts ...Option) (*Signer, error) {
	alg, err := c.Lookup(name)
	if err != nil {
		return nil, err
	}
	s := &Signer{alg: alg, rand: rand.Reader}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Signer) Algorithm() string { return s.alg.Name }

// ClaimedNISTLevel returns the algorithm's claimed security category.
func (s *Signer) ClaimedNISTLevel() int { return s.alg.NISTLevel }

// GenerateKeypair draws a seed from the entropy source and derives a key pair.
func (s *Signer) GenerateKeypair() (PublicKey, SecretKey, error) {
	if s.rand == nil {
		return nil, nil, model.New(model.KindKeypair, "DAG-SIG-301", "missing entropy source")
	}
	seed := make([]byte, s.alg.scheme.SeedSize())
	if _, err := io.ReadFull(s.rand, seed); err != nil {
		return nil, nil, model.Wrap(model.KindKeypair, "DAG-SIG-302", "reading key seed", err)
	}
	pub, priv := s.alg.scheme.DeriveKey(seed)
	pk, err := pub.MarshalBinary()
	if err != nil {
		return nil, nil, model.Wrap(model.KindKeypair, "DAG-SIG-303", "packing public key", err)
	}
	sk, err := priv.MarshalBinary()
	if err != nil {
		return nil, nil, model.Wrap(model.KindKeypair, "DAG-SIG-304", "packing secret key", err)
	}
	return PublicKey(pk), SecretKey(sk), nil
}

// Sign returns a signature over msg.
func (s *Signer) Sign(sk SecretKey, msg []byte) (sig []byte, err error) {
	if len(sk) != s.alg.SecretKeySize() {
		return nil, model.Newf(model.KindSigning, "DAG-SIG-202", "%s secret key must be %d bytes, got %d", s.alg.Name, s.alg.SecretKeySize(), len(sk))
	}
	priv, err := s.alg.scheme.UnmarshalBinaryPrivateKey(sk)
	if err != nil {
		return nil, model.Wrap(model.KindSigning, "DAG-SIG-203", "invalid secret key", err)
	}
	// circl panics on internal failures instead of returning errors.
	defer func() {
		if r := recover(); r != nil {
			sig = nil
			err = model.Wrap(model.KindSigning, "DAG-SIG-204", "signing failed", fmt.Errorf("%v", r))
		}
	}()
	return s.alg.scheme.Sign(priv, msg, nil), nil
}

// Verify reports whether sig is a valid signature of msg under pk.
//
// A well-formed but wrong signature yields (false, nil). An error is returned
// only when pk or sig cannot be parsed into the algorithm's binary shapes.
func (s *Signer) Verify(pk PublicKey, msg, sig []byte) (bool, error) {
	if len(pk) != s.alg.PublicKeySize() {
		return false, model.Newf(model.KindKeyDecode, "DAG-SIG-102", "%s public key must be %d bytes, got %d", s.alg.Name, s.alg.PublicKeySize(), len(pk))
	}
	pub, err := s.alg.scheme.UnmarshalBinaryPublicKey(pk)
	if err != nil {
		return false, model.Wrap(model.KindKeyDecode, "DAG-SIG-103", "invalid public key", err)
	}
	if len(sig) != s.alg.SignatureSize() {
		return false, model.Newf(model.KindSignatureDecode, "DAG-SIG-132", "%s signature must be %d bytes, got %d", s.alg.Name, s.alg.SignatureSize(), len(sig))
	}
	return s.alg.scheme.Verify(pub, msg, sig, nil), nil
}

// PublicKey derives the public key belonging to sk.
func (s *Signer) PublicKey(sk SecretKey) (PublicKey, error) {
	if len(sk) != s.alg.SecretKeySize() {
		return nil, model.Newf(model.KindSigning, "DAG-SIG-202", "%s secret key must be %d bytes, got %d", s.alg.Name, s.alg.SecretKeySize(), len(sk))
	}
	priv, err := s.alg.scheme.UnmarshalBinaryPrivateKey(sk)
	if err != nil {
		return nil, model.Wrap(model.KindSigning, "DAG-SIG-203", "invalid secret key", err)
	}
	pub, ok := priv.Public().(sign.PublicKey)
	if !ok {
		return nil, model.New(model.KindSigning, "DAG-SIG-205", "secret key has no public counterpart")
	}
	b, err := pub.MarshalBinary()
	if err != nil {
		return nil, model.Wrap(model.KindKeypair, "DAG-SIG-303", "packing public key", err)
	}
	return PublicKey(b), nil
}
