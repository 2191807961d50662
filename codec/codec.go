// Package codec is the canonical serialization layer for pqdag records.
//
// Records are encoded as core deterministic CBOR (RFC 8949 section 4.2.1):
// shortest-form integers, definite lengths and sorted map keys. Structs meant
// for the wire embed StructAsArray so their fields are encoded positionally
// and the byte layout never depends on field names.
//
// All hashing and signing input MUST come from Marshal, and all external
// input MUST pass through Canonical before it is trusted.
package codec

import (
	"bytes"

	_cbor "github.com/fxamacker/cbor/v2"

	"xdao.co/pqdag/model"
)

// StructAsArray tells the encoder to convert a struct to/from a CBOR array.
type StructAsArray struct {
	_ struct{} `cbor:",toarray"`
}

var (
	encMode _cbor.EncMode
	decMode _cbor.DecMode
)

func init() {
	encOpts := _cbor.CoreDetEncOptions()
	// A nil and an empty parent list are the same logical value.
	encOpts.NilContainers = _cbor.NilContainerAsEmpty
	em, err := encOpts.EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em

	decOpts := _cbor.DecOptions{
		DupMapKey:   _cbor.DupMapKeyEnforcedAPF,
		IndefLength: _cbor.IndefLengthForbidden,
		UTF8:        _cbor.UTF8RejectInvalid,
	}
	dm, err := decOpts.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dm
}

// Marshal returns the canonical encoding of v.
func Marshal(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, model.Wrap(model.KindEncoding, "DAG-ENC-001", "canonical encoding failed", err)
	}
	return b, nil
}

// Unmarshal decodes data into v, rejecting indefinite lengths, duplicate map
// keys, invalid UTF-8, arity mismatches and trailing bytes.
//
// Unmarshal alone does not guarantee data was canonical; use Canonical.
func Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return model.New(model.KindDecoding, "DAG-DEC-001", "empty input")
	}
	if err := decMode.Unmarshal(data, v); err != nil {
		return model.Wrap(model.KindDecoding, "DAG-DEC-002", "decoding failed", err)
	}
	return nil
}

// Canonical decodes data into v and rejects it unless re-encoding v yields the
// exact same bytes.
func Canonical(data []byte, v any) error {
	if err := Unmarshal(data, v); err != nil {
		return err
	}
	again, err := Marshal(v)
	if err != nil {
		return err
	}
	if !bytes.Equal(again, data) {
		return model.New(model.KindDecoding, "DAG-DEC-003", "input is not in canonical form")
	}
	return nil
}
