package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_KindAndRuleID(t *testing.T) {
	err := New(KindUnknownParent, "DAG-LEDGER-004", "unknown parent")

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindUnknownParent, e.Kind)
	assert.Equal(t, "DAG-LEDGER-004", RuleID(err))
	assert.Equal(t, KindUnknownParent, KindOf(err))
	assert.True(t, IsKind(err, KindUnknownParent))
	assert.False(t, IsKind(err, KindInsufficientFunds))
}

func TestError_IsKindWalksChain(t *testing.T) {
	inner := New(KindKeyDecode, "DAG-SIG-101", "bad key")
	outer := Wrap(KindMalformed, "DAG-LEDGER-002", "malformed transaction", inner)
	wrapped := fmt.Errorf("apply: %w", outer)

	assert.True(t, IsKind(wrapped, KindMalformed))
	assert.True(t, IsKind(wrapped, KindKeyDecode))
	assert.Equal(t, KindMalformed, KindOf(wrapped))
	assert.Equal(t, "DAG-LEDGER-002", RuleID(wrapped))
	assert.Contains(t, wrapped.Error(), "bad key")
}

func TestError_WrapNilCause(t *testing.T) {
	err := Wrap(KindEncoding, "DAG-ENC-001", "encode failed", nil)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Nil(t, e.Cause)
	assert.Equal(t, "encode failed", err.Error())
}

func TestError_NotStructured(t *testing.T) {
	err := errors.New("plain")
	assert.Equal(t, "", RuleID(err))
	assert.Equal(t, Kind(""), KindOf(err))
	assert.False(t, IsKind(err, KindEncoding))
	assert.False(t, IsKind(nil, KindEncoding))
}
