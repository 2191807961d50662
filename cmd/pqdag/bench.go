package main

import (
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/errors"

	"xdao.co/pqdag/hashing"
	"xdao.co/pqdag/pqsig"
	"xdao.co/pqdag/txn"
)

type benchResult struct {
	Algorithm      string `json:"algorithm"`
	NISTLevel      int    `json:"nist_level"`
	Rounds         int    `json:"rounds"`
	PublicKeyBytes int    `json:"public_key_bytes"`
	SecretKeyBytes int    `json:"secret_key_bytes"`
	SignatureBytes int    `json:"signature_bytes"`
	CBORBytes      int    `json:"cbor_bytes"`
	JSONBytes      int    `json:"json_bytes"`

	Keygen     string `json:"keygen"`
	Sign       string `json:"sign"`
	Verify     string `json:"verify"`
	Hash       string `json:"hash"`
	EncodeCBOR string `json:"encode_cbor"`
	DecodeCBOR string `json:"decode_cbor"`
	EncodeJSON string `json:"encode_json"`
	DecodeJSON string `json:"decode_json"`
}

// timeIt returns the mean duration of fn over rounds, stopping at the first
// error.
func timeIt(rounds int, fn func() error) (time.Duration, error) {
	start := time.Now()
	for i := 0; i < rounds; i++ {
		if err := fn(); err != nil {
			return 0, err
		}
	}
	return time.Since(start) / time.Duration(rounds), nil
}

func cmdBench(args []string, out io.Writer, errOut io.Writer) int {
	flags, cfgPath := newFlags("bench", errOut)
	var rounds int
	flags.IntVar(&rounds, "rounds", 20, "Iterations per measurement")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if rounds <= 0 {
		fmt.Fprintln(errOut, "--rounds must be positive")
		return 2
	}
	cfg, _, ok := load(flags, *cfgPath, errOut)
	if !ok {
		return 2
	}
	signer, err := cfg.Signer()
	if err != nil {
		fmt.Fprintf(errOut, "signer: %v\n", err)
		return 1
	}

	res := benchResult{Algorithm: signer.Algorithm(), NISTLevel: signer.ClaimedNISTLevel(), Rounds: rounds}
	fail := func(stage string, err error) int {
		fmt.Fprintf(errOut, "%s: %v\n", stage, err)
		return 1
	}

	d, err := timeIt(rounds, func() error {
		_, _, err := signer.GenerateKeypair()
		return err
	})
	if err != nil {
		return fail("keygen", err)
	}
	res.Keygen = d.String()

	pk, sk, err := signer.GenerateKeypair()
	if err != nil {
		return fail("keygen", err)
	}
	res.PublicKeyBytes, res.SecretKeyBytes = len(pk), len(sk)

	tx := txn.New([]string{hashing.String([]byte("bench parent"))}, pk, 100, pk)
	var stx *txn.SignedTransaction
	if d, err = timeIt(rounds, func() error {
		var err error
		stx, err = tx.Sign(signer, sk)
		return err
	}); err != nil {
		return fail("sign", err)
	}
	res.Sign = d.String()
	if d, err = timeIt(rounds, func() error {
		if v := stx.Verify(signer); !v.OK() {
			return errors.Newf("verification failed: %s", v)
		}
		return nil
	}); err != nil {
		return fail("verify", err)
	}
	res.Verify = d.String()

	var raw []byte
	if d, err = timeIt(rounds, func() error {
		var err error
		raw, err = stx.Bytes()
		return err
	}); err != nil {
		return fail("encode", err)
	}
	res.EncodeCBOR, res.CBORBytes = d.String(), len(raw)
	if d, err = timeIt(rounds, func() error {
		_, err := txn.Decode(raw)
		return err
	}); err != nil {
		return fail("decode", err)
	}
	res.DecodeCBOR = d.String()
	if d, err = timeIt(rounds, func() error {
		_ = stx.Hash()
		return nil
	}); err != nil {
		return fail("hash", err)
	}
	res.Hash = d.String()

	var js []byte
	if d, err = timeIt(rounds, func() error {
		var err error
		js, err = stx.MarshalJSON()
		return err
	}); err != nil {
		return fail("encode json", err)
	}
	res.EncodeJSON, res.JSONBytes = d.String(), len(js)
	if d, err = timeIt(rounds, func() error {
		_, err := txn.ParseJSON(js)
		return err
	}); err != nil {
		return fail("decode json", err)
	}
	res.DecodeJSON = d.String()

	sig, err := pqsig.ParseSignature(stx.Signature())
	if err != nil {
		return fail("signature", err)
	}
	res.SignatureBytes = len(sig)

	if err := writeJSON(out, res); err != nil {
		return fail("write", err)
	}
	return 0
}
