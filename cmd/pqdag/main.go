package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"xdao.co/pqdag/internal/config"
	"xdao.co/pqdag/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "algorithms":
		return cmdAlgorithms(args[1:], out, errOut)
	case "keygen":
		return cmdKeygen(args[1:], out, errOut)
	case "transfer":
		return cmdTransfer(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "hash":
		return cmdHash(args[1:], out, errOut)
	case "apply":
		return cmdApply(args[1:], out, errOut)
	case "submit":
		return cmdSubmit(args[1:], out, errOut)
	case "issue":
		return cmdIssue(args[1:], out, errOut)
	case "replay":
		return cmdReplay(args[1:], out, errOut)
	case "export":
		return cmdExport(args[1:], out, errOut)
	case "import":
		return cmdImport(args[1:], out, errOut)
	case "bench":
		return cmdBench(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "pqdag: post-quantum signed DAG transactions")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  pqdag algorithms")
	fmt.Fprintln(w, "  pqdag keygen --out <file> [--signature-algorithm <name>]")
	fmt.Fprintln(w, "  pqdag transfer --key <file> --to <public key> --amount <n> [--parent <hash> ...]")
	fmt.Fprintln(w, "  pqdag verify <tx.json>")
	fmt.Fprintln(w, "  pqdag hash <tx.json>")
	fmt.Fprintln(w, "  pqdag apply [--state <snapshot.json>] --tx <tx.json> [--tx ...] [--out <snapshot.json>]")
	fmt.Fprintln(w, "  pqdag submit <tx.json>... (or --tx <tx.json> [--tx ...])")
	fmt.Fprintln(w, "  pqdag issue --key <file> --to <public key> --amount <n>")
	fmt.Fprintln(w, "  pqdag replay [--out <snapshot.json>]")
	fmt.Fprintln(w, "  pqdag export --out <bundle.tar>")
	fmt.Fprintln(w, "  pqdag import <bundle.tar>")
	fmt.Fprintln(w, "  pqdag bench [--rounds <n>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common flags:")
	fmt.Fprintln(w, "  --config <file>   YAML, JSON or TOML settings (PQDAG_* environment variables override)")
	fmt.Fprintln(w, "  --log-level <l>   debug, info, warn, error")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - transactions are exchanged as JSON; hashes and signatures use the canonical CBOR encoding")
	fmt.Fprintln(w, "  - submit, issue, replay, export and import use the configured storage.backends")
	fmt.Fprintln(w, "  - the ledger is rebuilt from the store on every submit or issue")
	fmt.Fprintln(w, "  - verify, apply, submit and replay check signatures with the configured signature.algorithm,")
	fmt.Fprintln(w, "    not the algorithm a key file was generated with")
}

// newFlags returns a flag set carrying the common flags. The returned pointer
// holds --config after parsing.
func newFlags(name string, errOut io.Writer) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(errOut)
	path := fs.String("config", "", "Settings file")
	fs.String("log-level", "", "Log level")
	fs.String("log-format", "", "Log format (json, console)")
	fs.String("signature-algorithm", "", "Signature algorithm")
	return fs, path
}

// load reads settings for an already parsed flag set. Log output goes to
// errOut.
func load(fs *pflag.FlagSet, path string, errOut io.Writer) (*config.Config, zerolog.Logger, bool) {
	cfg, err := config.Load(path, fs)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return nil, zerolog.Nop(), false
	}
	log, err := cfg.Logger("pqdag", logging.Options{Writer: errOut})
	if err != nil {
		fmt.Fprintf(errOut, "log: %v\n", err)
		return nil, zerolog.Nop(), false
	}
	return cfg, log, true
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readJSONFile(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
