package model

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	// KindEncoding: a payload could not be canonically serialized. Fatal.
	KindEncoding Kind = "Encoding"
	// KindDecoding: bytes are not a canonical encoding of the expected shape.
	KindDecoding Kind = "Decoding"
	// KindKeypair: key generation failed (entropy or algorithm failure).
	KindKeypair Kind = "Keypair"
	// KindSigning: the secret key is malformed or belongs to another algorithm.
	KindSigning Kind = "Signing"
	// KindKeyDecode: an externally supplied public key cannot be parsed.
	KindKeyDecode Kind = "KeyDecode"
	// KindSignatureDecode: an externally supplied signature cannot be parsed.
	KindSignatureDecode Kind = "SignatureDecode"
	// KindAlgorithm: the requested signature or hash algorithm is not registered.
	KindAlgorithm Kind = "Algorithm"

	KindInvalidSignature     Kind = "InvalidSignature"
	KindMalformed            Kind = "Malformed"
	KindDuplicateTransaction Kind = "DuplicateTransaction"
	KindInsufficientFunds    Kind = "InsufficientFunds"
	KindUnknownParent        Kind = "UnknownParent"
	KindOverflow             Kind = "Overflow"

	KindConfig Kind = "Config"
)

// Error is the structured error type of the core packages.
//
// RuleID is a stable identifier (e.g. DAG-LEDGER-003) naming the violated
// check. Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches another *Error by Kind, so errors.Is(err, &Error{Kind: k}) works
// as a kind test.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.RuleID != "" && t.RuleID != e.RuleID {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

func Newf(kind Kind, ruleID, format string, args ...any) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return New(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps, at any depth) a *Error with the
// given Kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// KindOf returns the Kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
