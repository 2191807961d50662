package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog"

	"xdao.co/pqdag/dag"
	"xdao.co/pqdag/hashing"
	"xdao.co/pqdag/internal/config"
	"xdao.co/pqdag/ledger"
	"xdao.co/pqdag/pqsig"
	"xdao.co/pqdag/storage"
	"xdao.co/pqdag/storage/bundle"
	"xdao.co/pqdag/storage/registry"
	"xdao.co/pqdag/txn"
)

// openGraph opens the configured store and rebuilds the ledger from it.
func openGraph(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...dag.Option) (*dag.Graph, storage.Store, dag.ReplayReport, func() error, error) {
	var rep dag.ReplayReport
	signer, err := cfg.Signer()
	if err != nil {
		return nil, nil, rep, nil, err
	}
	store, closeFn, err := cfg.OpenStore(registry.UsageCLI, log)
	if err != nil {
		return nil, nil, rep, nil, err
	}
	ledgerOpts := append([]ledger.Option{ledger.WithVerifier(signer), ledger.WithLogger(log)}, cfg.LedgerOptions()...)
	g := dag.New(ledger.New(ledgerOpts...), append([]dag.Option{dag.WithStore(store), dag.WithLogger(log)}, opts...)...)
	rep, err = g.Replay(ctx, store)
	if err != nil {
		_ = closeFn()
		return nil, nil, rep, nil, err
	}
	return g, store, rep, closeFn, nil
}

func cmdSubmit(args []string, out io.Writer, errOut io.Writer) int {
	flags, cfgPath := newFlags("submit", errOut)
	var txPaths []string
	flags.StringArrayVar(&txPaths, "tx", nil, "Transaction file, submitted in order (repeatable)")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	txPaths = append(txPaths, flags.Args()...)
	if len(txPaths) == 0 {
		fmt.Fprintln(errOut, "usage: pqdag submit <tx.json>...")
		return 2
	}
	cfg, log, ok := load(flags, *cfgPath, errOut)
	if !ok {
		return 2
	}
	ctx := context.Background()
	g, _, _, closeFn, err := openGraph(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(errOut, "open ledger: %v\n", err)
		return 1
	}
	defer closeFn()

	code := 0
	enc := json.NewEncoder(out)
	for _, p := range txPaths {
		stx, err := readTx(p)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", p, err)
			code = 1
			continue
		}
		r, err := g.Submit(ctx, stx)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", p, err)
			code = 1
			continue
		}
		_ = enc.Encode(r)
	}
	return code
}

func cmdIssue(args []string, out io.Writer, errOut io.Writer) int {
	flags, cfgPath := newFlags("issue", errOut)
	var keyPath, to string
	var amount uint64
	var maxParents int
	flags.StringVar(&keyPath, "key", "", "Sender key file")
	flags.StringVar(&to, "to", "", "Receiver public key (base64)")
	flags.Uint64Var(&amount, "amount", 0, "Amount to transfer")
	flags.IntVar(&maxParents, "max-parents", dag.DefaultMaxParents, "Maximum number of tips to reference")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if keyPath == "" || to == "" {
		fmt.Fprintln(errOut, "usage: pqdag issue --key <file> --to <public key> --amount <n>")
		return 2
	}
	cfg, log, ok := load(flags, *cfgPath, errOut)
	if !ok {
		return 2
	}
	receiver, err := pqsig.ParsePublicKey(to)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --to: %v\n", err)
		return 2
	}
	signer, _, sk, err := loadKey(keyPath)
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return 1
	}

	ctx := context.Background()
	g, _, _, closeFn, err := openGraph(ctx, cfg, log, dag.WithMaxParents(maxParents))
	if err != nil {
		fmt.Fprintf(errOut, "open ledger: %v\n", err)
		return 1
	}
	defer closeFn()

	stx, _, err := g.Issue(ctx, signer, sk, amount, receiver)
	if err != nil {
		fmt.Fprintf(errOut, "issue: %v\n", err)
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

func cmdReplay(args []string, out io.Writer, errOut io.Writer) int {
	flags, cfgPath := newFlags("replay", errOut)
	var outPath string
	flags.StringVar(&outPath, "out", "", "Write the rebuilt snapshot here")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	cfg, log, ok := load(flags, *cfgPath, errOut)
	if !ok {
		return 2
	}
	g, _, rep, closeFn, err := openGraph(context.Background(), cfg, log)
	if err != nil {
		fmt.Fprintf(errOut, "replay: %v\n", err)
		return 1
	}
	defer closeFn()

	_ = writeJSON(out, struct {
		dag.ReplayReport
		Tips        []string `json:"tips"`
		TotalSupply uint64   `json:"total_supply"`
	}{rep, g.Tips(), g.State().TotalSupply()})

	if outPath != "" {
		b, err := json.MarshalIndent(g.State().Snapshot(), "", "  ")
		if err != nil {
			fmt.Fprintf(errOut, "encode snapshot: %v\n", err)
			return 1
		}
		if err := os.WriteFile(outPath, append(b, '\n'), 0o644); err != nil {
			fmt.Fprintf(errOut, "write --out: %v\n", err)
			return 1
		}
	}
	if len(rep.Rejected) > 0 || len(rep.Orphaned) > 0 {
		return 1
	}
	return 0
}

func cmdExport(args []string, out io.Writer, errOut io.Writer) int {
	flags, cfgPath := newFlags("export", errOut)
	var outPath string
	flags.StringVar(&outPath, "out", "", "Bundle file to write")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if outPath == "" {
		fmt.Fprintln(errOut, "missing --out")
		return 2
	}
	cfg, log, ok := load(flags, *cfgPath, errOut)
	if !ok {
		return 2
	}
	ctx := context.Background()
	g, store, _, closeFn, err := openGraph(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(errOut, "open ledger: %v\n", err)
		return 1
	}
	defer closeFn()

	ids, err := store.Keys(ctx)
	if err != nil {
		fmt.Fprintf(errOut, "list store: %v\n", err)
		return 1
	}
	labels := make(map[string]cid.Cid)
	for i, h := range g.Tips() {
		id, err := hashing.Parse(h)
		if err != nil {
			continue
		}
		labels[fmt.Sprintf("tip/%d", i)] = id
	}

	f, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(errOut, "create --out: %v\n", err)
		return 1
	}
	if err := bundle.Export(ctx, f, store, ids, bundle.ExportOptions{Labels: labels, IncludeIndex: true}); err != nil {
		_ = f.Close()
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(errOut, "close --out: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(out, "%d\n", len(ids))
	return 0
}

func cmdImport(args []string, out io.Writer, errOut io.Writer) int {
	flags, cfgPath := newFlags("import", errOut)
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: pqdag import <bundle.tar>")
		return 2
	}
	cfg, log, ok := load(flags, *cfgPath, errOut)
	if !ok {
		return 2
	}
	store, closeFn, err := cfg.OpenStore(registry.UsageCLI, log)
	if err != nil {
		fmt.Fprintf(errOut, "open store: %v\n", err)
		return 1
	}
	defer closeFn()

	f, err := os.Open(flags.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "open bundle: %v\n", err)
		return 1
	}
	defer f.Close()
	ids, err := bundle.Import(context.Background(), f, store, bundle.ImportOptions{})
	if err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	for _, id := range ids {
		_, _ = fmt.Fprintln(out, id)
	}
	return 0
}
