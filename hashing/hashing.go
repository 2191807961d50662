// Package hashing maps bytes to content identifiers.
//
// A content hash is a 32-byte digest wrapped in a multihash and displayed as
// a CIDv1 string with the "raw" multicodec (base32 multibase). The display
// string is both a transaction's public identity and the value children list
// in their parents.
package hashing

import (
	"crypto/sha256"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// Algorithm is a multihash function code.
type Algorithm uint64

const (
	BLAKE3   Algorithm = multihash.BLAKE3
	SHA2_256 Algorithm = multihash.SHA2_256
	SHA3_256 Algorithm = multihash.SHA3_256

	// Default is the algorithm used for transaction identity.
	Default = BLAKE3

	// Size is the digest length of every supported algorithm.
	Size = 32
)

func (a Algorithm) String() string {
	if name, ok := multihash.Codes[uint64(a)]; ok {
		return name
	}
	return fmt.Sprintf("multihash-0x%x", uint64(a))
}

// ParseAlgorithm resolves a multihash name such as "blake3" or "sha2-256".
func ParseAlgorithm(name string) (Algorithm, error) {
	code, ok := multihash.Names[name]
	if !ok {
		return 0, fmt.Errorf("hashing: unknown algorithm %q", name)
	}
	a := Algorithm(code)
	if !a.Supported() {
		return 0, fmt.Errorf("hashing: unsupported algorithm %q", name)
	}
	return a, nil
}

func (a Algorithm) Supported() bool {
	switch a {
	case BLAKE3, SHA2_256, SHA3_256:
		return true
	default:
		return false
	}
}

// Digest returns the raw digest of data.
func Digest(alg Algorithm, data []byte) ([]byte, error) {
	switch alg {
	case BLAKE3:
		s := blake3.Sum256(data)
		return s[:], nil
	case SHA2_256:
		s := sha256.Sum256(data)
		return s[:], nil
	case SHA3_256:
		s := sha3.Sum256(data)
		return s[:], nil
	default:
		return nil, fmt.Errorf("hashing: unsupported algorithm %s", alg)
	}
}

// Sum returns the CIDv1 (raw codec) of data under alg.
func Sum(alg Algorithm, data []byte) (cid.Cid, error) {
	digest, err := Digest(alg, data)
	if err != nil {
		return cid.Undef, err
	}
	mh, err := multihash.Encode(digest, uint64(alg))
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// String returns the display form of data's content hash under Default.
func String(data []byte) string {
	id, err := Sum(Default, data)
	if err != nil {
		// Sum only errors for unsupported algorithms; Default is supported.
		return ""
	}
	return id.String()
}

// Parse decodes a display string and checks it names a supported digest.
func Parse(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, fmt.Errorf("hashing: invalid content hash %q: %w", s, err)
	}
	if _, err := AlgorithmOf(id); err != nil {
		return cid.Undef, err
	}
	return id, nil
}

// AlgorithmOf returns the digest algorithm carried by id.
func AlgorithmOf(id cid.Cid) (Algorithm, error) {
	if !id.Defined() {
		return 0, fmt.Errorf("hashing: undefined cid")
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return 0, fmt.Errorf("hashing: invalid multihash: %w", err)
	}
	alg := Algorithm(dec.Code)
	if !alg.Supported() {
		return 0, fmt.Errorf("hashing: unsupported algorithm %s", alg)
	}
	if dec.Length != Size {
		return 0, fmt.Errorf("hashing: digest length %d, want %d", dec.Length, Size)
	}
	return alg, nil
}

// Matches reports whether data hashes to id under the algorithm id carries.
func Matches(id cid.Cid, data []byte) bool {
	alg, err := AlgorithmOf(id)
	if err != nil {
		return false
	}
	got, err := Sum(alg, data)
	if err != nil {
		return false
	}
	return got.Equals(id)
}
