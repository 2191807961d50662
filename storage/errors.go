package storage

import (
	"github.com/cockroachdb/errors"
	"github.com/ipfs/go-cid"
)

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: immutable object mismatch")
	ErrNoBackends  = errors.New("storage: no backends configured")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// NotFound wraps ErrNotFound with the missing id.
func NotFound(id cid.Cid) error { return errors.Wrapf(ErrNotFound, "cid %s", id) }

// Mismatch wraps ErrCIDMismatch with the requested id.
func Mismatch(id cid.Cid) error { return errors.Wrapf(ErrCIDMismatch, "cid %s", id) }
