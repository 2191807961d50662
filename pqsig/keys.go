package pqsig

import (
	"encoding/base64"

	"xdao.co/pqdag/model"
)

// PublicKey is the raw binary public key of some algorithm.
type PublicKey []byte

// String returns the standard padded base64 form, the account identity used
// in transactions and wallets.
func (pk PublicKey) String() string {
	return base64.StdEncoding.EncodeToString(pk)
}

// SecretKey is the raw binary secret key of some algorithm.
type SecretKey []byte

// String never reveals key material.
func (SecretKey) String() string { return "pqsig.SecretKey(redacted)" }

// Base64 exports the secret key as standard padded base64.
func (sk SecretKey) Base64() string {
	return base64.StdEncoding.EncodeToString(sk)
}

// ParsePublicKey decodes the text form of a public key. Only the canonical
// encoding is accepted so each key has exactly one account identity.
func ParsePublicKey(s string) (PublicKey, error) {
	b, err := decodeCanonicalBase64(s)
	if err != nil {
		return nil, model.Wrap(model.KindKeyDecode, "DAG-SIG-101", "invalid public key encoding", err)
	}
	return PublicKey(b), nil
}

// ParseSecretKey decodes the text form of a secret key.
func ParseSecretKey(s string) (SecretKey, error) {
	b, err := decodeCanonicalBase64(s)
	if err != nil {
		return nil, model.Wrap(model.KindSigning, "DAG-SIG-201", "invalid secret key encoding", err)
	}
	return SecretKey(b), nil
}

// EncodeSignature returns the text form of a signature.
func EncodeSignature(sig []byte) string {
	return base64.StdEncoding.EncodeToString(sig)
}

// ParseSignature decodes the text form of a signature.
func ParseSignature(s string) ([]byte, error) {
	b, err := decodeCanonicalBase64(s)
	if err != nil {
		return nil, model.Wrap(model.KindSignatureDecode, "DAG-SIG-131", "invalid signature encoding", err)
	}
	return b, nil
}

func decodeCanonicalBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, errEmpty
	}
	b, err := base64.StdEncoding.Strict().DecodeString(s)
	if err != nil {
		return nil, err
	}
	// DecodeString skips CR/LF; the re-encoding check closes that gap.
	if base64.StdEncoding.EncodeToString(b) != s {
		return nil, errNotCanonical
	}
	return b, nil
}
