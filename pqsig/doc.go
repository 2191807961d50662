// Package pqsig wraps post-quantum signature algorithms behind an explicit,
// idempotent setup call.
//
// Init returns a *Context holding the registry of algorithms; a Signer is
// built from the Context and is stateless afterwards. Keys and signatures are
// raw algorithm bytes; their text form is standard padded base64.
//
// Only schemes believed secure against quantum adversaries are registered
// (ML-DSA, round-3 Dilithium, and Dilithium hybrids). Swapping the algorithm
// never changes the shape of a transaction.
package pqsig
