package main

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/cockroachdb/errors"

	"xdao.co/pqdag/ledger"
	"xdao.co/pqdag/model"
	"xdao.co/pqdag/pqsig"
	"xdao.co/pqdag/txn"
)

func readTx(path string) (*txn.SignedTransaction, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return txn.ParseJSON(b)
}

// algorithmHint explains a malformed verdict caused by verifying with a
// different algorithm than the one that signed.
func algorithmHint(errOut io.Writer, algorithm string) {
	fmt.Fprintf(errOut, "hint: verified as %s; pass --signature-algorithm (or set signature.algorithm) to the signing key's algorithm\n", algorithm)
}

func cmdTransfer(args []string, out io.Writer, errOut io.Writer) int {
	flags, _ := newFlags("transfer", errOut)
	var keyPath, to string
	var amount uint64
	var parents []string
	flags.StringVar(&keyPath, "key", "", "Sender key file (from 'pqdag keygen')")
	flags.StringVar(&to, "to", "", "Receiver public key (base64)")
	flags.Uint64Var(&amount, "amount", 0, "Amount to transfer")
	flags.StringArrayVar(&parents, "parent", nil, "Parent transaction hash (repeatable)")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if keyPath == "" || to == "" {
		fmt.Fprintln(errOut, "usage: pqdag transfer --key <file> --to <public key> --amount <n> [--parent <hash> ...]")
		return 2
	}
	receiver, err := pqsig.ParsePublicKey(to)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --to: %v\n", err)
		return 2
	}
	signer, pk, sk, err := loadKey(keyPath)
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return 1
	}

	stx, err := txn.New(parents, pk, amount, receiver).Sign(signer, sk)
	if err != nil {
		fmt.Fprintf(errOut, "sign: %v\n", err)
		return 1
	}
	b, err := txn.MarshalIndent(stx)
	if err != nil {
		fmt.Fprintf(errOut, "encode: %v\n", err)
		return 1
	}
	_, _ = out.Write(append(b, '\n'))
	return 0
}

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	flags, cfgPath := newFlags("verify", errOut)
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: pqdag verify <tx.json>")
		return 2
	}
	cfg, _, ok := load(flags, *cfgPath, errOut)
	if !ok {
		return 2
	}
	stx, err := readTx(flags.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read transaction: %v\n", err)
		return 1
	}
	signer, err := cfg.Signer()
	if err != nil {
		fmt.Fprintf(errOut, "signer: %v\n", err)
		return 1
	}

	v := stx.Verify(signer)
	res := struct {
		Hash   string `json:"hash"`
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}{Hash: stx.Hash(), Status: v.Status.String()}
	if v.Err != nil {
		res.Error = v.Err.Error()
	}
	_ = writeJSON(out, res)
	if v.Status == txn.Malformed {
		algorithmHint(errOut, cfg.Signature.Algorithm)
	}
	if !v.OK() {
		return 1
	}
	return 0
}

func cmdHash(args []string, out io.Writer, errOut io.Writer) int {
	flags, _ := newFlags("hash", errOut)
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: pqdag hash <tx.json>")
		return 2
	}
	stx, err := readTx(flags.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read transaction: %v\n", err)
		return 1
	}
	id, err := stx.ID()
	if err != nil {
		fmt.Fprintf(errOut, "hash: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id)
	return 0
}

// cmdApply replays transaction files against a snapshot file. Without
// --state, or when the file does not exist yet, the state starts from the
// configured ledger section.
func cmdApply(args []string, out io.Writer, errOut io.Writer) int {
	flags, cfgPath := newFlags("apply", errOut)
	var statePath, outPath string
	var txPaths []string
	flags.StringVar(&statePath, "state", "", "Snapshot to start from")
	flags.StringArrayVar(&txPaths, "tx", nil, "Transaction file, applied in order (repeatable)")
	flags.StringVar(&outPath, "out", "", "Write the resulting snapshot here")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if len(txPaths) == 0 {
		fmt.Fprintln(errOut, "missing --tx")
		return 2
	}
	cfg, log, ok := load(flags, *cfgPath, errOut)
	if !ok {
		return 2
	}
	signer, err := cfg.Signer()
	if err != nil {
		fmt.Fprintf(errOut, "signer: %v\n", err)
		return 1
	}

	opts := []ledger.Option{ledger.WithVerifier(signer), ledger.WithLogger(log)}
	var ws *ledger.WorldState
	var snap ledger.Snapshot
	switch err := readJSONFile(statePath, &snap); {
	case statePath == "" || errors.Is(err, fs.ErrNotExist):
		ws = ledger.New(append(opts, cfg.LedgerOptions()...)...)
	case err != nil:
		fmt.Fprintf(errOut, "read --state: %v\n", err)
		return 1
	default:
		ws, err = ledger.FromSnapshot(snap, append(opts, ledger.WithIssuers(cfg.Ledger.Issuers...))...)
		if err != nil {
			fmt.Fprintf(errOut, "restore --state: %v\n", err)
			return 1
		}
	}

	code := 0
	enc := json.NewEncoder(out)
	for _, p := range txPaths {
		stx, err := readTx(p)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", p, err)
			code = 1
			continue
		}
		r, err := ws.Apply(stx)
		if err != nil {
			fmt.Fprintf(errOut, "%s: rejected: %v\n", p, err)
			if model.IsKind(err, model.KindMalformed) {
				algorithmHint(errOut, cfg.Signature.Algorithm)
			}
			code = 1
			continue
		}
		_ = enc.Encode(r)
	}

	if outPath != "" {
		b, err := json.MarshalIndent(ws.Snapshot(), "", "  ")
		if err != nil {
			fmt.Fprintf(errOut, "encode snapshot: %v\n", err)
			return 1
		}
		if err := os.WriteFile(outPath, append(b, '\n'), 0o644); err != nil {
			fmt.Fprintf(errOut, "write --out: %v\n", err)
			return 1
		}
	}
	return code
}
