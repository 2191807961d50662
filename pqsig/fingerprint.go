package pqsig

import (
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// Fingerprint is a short account label for logs and listings: base58 of the
// BLAKE2b-256 digest of the raw key. It is not an identity; transactions
// always carry the full key.
func Fingerprint(pk PublicKey) string {
	sum := blake2b.Sum256(pk)
	return base58.Encode(sum[:])
}

// FingerprintOf fingerprints the text form of a public key, or returns ""
// when s is not one.
func FingerprintOf(s string) string {
	pk, err := ParsePublicKey(s)
	if err != nil {
		return ""
	}
	return Fingerprint(pk)
}
