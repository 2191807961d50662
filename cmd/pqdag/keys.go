package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"

	"xdao.co/pqdag/pqsig"
)

// keyFile is the on-disk form written by keygen. The secret key is kept in
// the same file; protect it accordingly.
type keyFile struct {
	Algorithm string `json:"algorithm"`
	PublicKey string `json:"public_key"`
	SecretKey string `json:"secret_key"`
}

// loadKey reads a key file and returns a signer for its algorithm.
func loadKey(path string) (*pqsig.Signer, pqsig.PublicKey, pqsig.SecretKey, error) {
	var kf keyFile
	if err := readJSONFile(path, &kf); err != nil {
		return nil, nil, nil, errors.Wrapf(err, "read key %s", path)
	}
	signer, err := pqsig.Init().NewSigner(kf.Algorithm)
	if err != nil {
		return nil, nil, nil, err
	}
	sk, err := pqsig.ParseSecretKey(kf.SecretKey)
	if err != nil {
		return nil, nil, nil, err
	}
	pk, err := signer.PublicKey(sk)
	if err != nil {
		return nil, nil, nil, err
	}
	if pk.String() != kf.PublicKey {
		return nil, nil, nil, errors.Newf("key %s: public key does not match secret key", path)
	}
	return signer, pk, sk, nil
}

func cmdAlgorithms(args []string, out io.Writer, errOut io.Writer) int {
	fs, _ := newFlags("algorithms", errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	type row struct {
		Name          string `json:"name"`
		NISTLevel     int    `json:"nist_level"`
		PublicKeySize int    `json:"public_key_size"`
		SecretKeySize int    `json:"secret_key_size"`
		SignatureSize int    `json:"signature_size"`
		Default       bool   `json:"default,omitempty"`
	}
	var rows []row
	for _, a := range pqsig.Init().Algorithms() {
		rows = append(rows, row{
			Name:          a.Name,
			NISTLevel:     a.NISTLevel,
			PublicKeySize: a.PublicKeySize(),
			SecretKeySize: a.SecretKeySize(),
			SignatureSize: a.SignatureSize(),
			Default:       a.Name == pqsig.DefaultAlgorithm,
		})
	}
	if err := writeJSON(out, rows); err != nil {
		fmt.Fprintf(errOut, "write: %v\n", err)
		return 1
	}
	return 0
}

func cmdKeygen(args []string, out io.Writer, errOut io.Writer) int {
	fs, cfgPath := newFlags("keygen", errOut)
	var outPath string
	var force bool
	fs.StringVar(&outPath, "out", "", "Key file to write")
	fs.BoolVar(&force, "force", false, "Overwrite an existing key file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if outPath == "" {
		fmt.Fprintln(errOut, "missing --out")
		return 2
	}
	cfg, log, ok := load(fs, *cfgPath, errOut)
	if !ok {
		return 2
	}

	signer, err := cfg.Signer()
	if err != nil {
		fmt.Fprintf(errOut, "signer: %v\n", err)
		return 1
	}
	pk, sk, err := signer.GenerateKeypair()
	if err != nil {
		fmt.Fprintf(errOut, "keygen: %v\n", err)
		return 1
	}
	b, err := json.MarshalIndent(keyFile{Algorithm: signer.Algorithm(), PublicKey: pk.String(), SecretKey: sk.Base64()}, "", "  ")
	if err != nil {
		fmt.Fprintf(errOut, "encode key: %v\n", err)
		return 1
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(outPath, flags, 0o600)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	log.Info().
		Str("algorithm", signer.Algorithm()).
		Str("fingerprint", pqsig.Fingerprint(pk)).
		Str("path", outPath).
		Msg("Key pair generated")
	_, _ = fmt.Fprintln(out, pk.String())
	return 0
}
