package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/pqdag/txn"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	code, out, errOut := runCLI(t, args...)
	require.Equal(t, 0, code, "pqdag %s\nstderr: %s", strings.Join(args, " "), errOut)
	return out
}

func writeConfig(t *testing.T, dir, storeDir, issuer string) string {
	t.Helper()
	p := filepath.Join(dir, "pqdag.yaml")
	body := fmt.Sprintf(`signature:
  algorithm: ML-DSA-44
log:
  level: error
ledger:
  issuers: [%q]
  allocations:
    - account: %q
      balance: 1000
storage:
  backends: [localfs]
  localfs:
    dir: %q
`, issuer, issuer, storeDir)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestRun_Usage(t *testing.T) {
	code, _, errOut := runCLI(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Usage:")

	code, _, errOut = runCLI(t, "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "unknown command: frobnicate")

	code, out, _ := runCLI(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "pqdag transfer")
}

func TestRun_Algorithms(t *testing.T) {
	var rows []struct {
		Name      string `json:"name"`
		NISTLevel int    `json:"nist_level"`
		Default   bool   `json:"default"`
	}
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "algorithms")), &rows))
	var names []string
	for _, r := range rows {
		names = append(names, r.Name)
		if r.Default {
			assert.Equal(t, "ML-DSA-65", r.Name)
			assert.Equal(t, 3, r.NISTLevel)
		}
	}
	assert.Contains(t, names, "ML-DSA-44")
	assert.NotContains(t, names, "Ed25519")
}

func TestRun_TransferApplyAndStore(t *testing.T) {
	dir := t.TempDir()
	path := func(name string) string { return filepath.Join(dir, name) }

	pkA := strings.TrimSpace(mustRun(t, "keygen", "--out", path("a.key"), "--signature-algorithm", "ML-DSA-44"))
	pkB := strings.TrimSpace(mustRun(t, "keygen", "--out", path("b.key"), "--signature-algorithm", "ML-DSA-44"))
	code, _, errOut := runCLI(t, "keygen", "--out", path("a.key"))
	assert.Equal(t, 1, code, "existing key file is kept")
	assert.Contains(t, errOut, "write key")

	cfg := writeConfig(t, dir, path("store"), pkA)

	tx1 := mustRun(t, "transfer", "--key", path("a.key"), "--to", pkB, "--amount", "100")
	require.NoError(t, os.WriteFile(path("tx1.json"), []byte(tx1), 0o600))
	stx, err := txn.ParseJSON([]byte(tx1))
	require.NoError(t, err)
	assert.Equal(t, pkA, stx.Sender())
	assert.Empty(t, stx.Parents())

	assert.Equal(t, stx.Hash()+"\n", mustRun(t, "hash", path("tx1.json")))

	var verdict struct {
		Hash   string `json:"hash"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "verify", "--config", cfg, path("tx1.json"))), &verdict))
	assert.Equal(t, "valid", verdict.Status)
	assert.Equal(t, stx.Hash(), verdict.Hash)

	tampered := strings.Replace(tx1, `"amount": 100`, `"amount": 900`, 1)
	require.NotEqual(t, tx1, tampered)
	require.NoError(t, os.WriteFile(path("bad.json"), []byte(tampered), 0o600))
	code, out, _ := runCLI(t, "verify", "--config", cfg, path("bad.json"))
	assert.Equal(t, 1, code)
	assert.Contains(t, out, `"invalid"`)

	// apply works on snapshot files, independent of the store.
	out = mustRun(t, "apply", "--config", cfg, "--tx", path("tx1.json"), "--out", path("snap.json"))
	assert.Contains(t, out, `"sender_balance":900`)
	code, _, errOut = runCLI(t, "apply", "--config", cfg, "--state", path("snap.json"), "--tx", path("tx1.json"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "DAG-LEDGER-201")

	mustRun(t, "submit", "--config", cfg, path("tx1.json"))
	tx2 := mustRun(t, "issue", "--config", cfg, "--key", path("b.key"), "--to", pkA, "--amount", "10")
	stx2, err := txn.ParseJSON([]byte(tx2))
	require.NoError(t, err)
	assert.Equal(t, []string{stx.Hash()}, stx2.Parents())

	var report struct {
		Applied     []string `json:"applied"`
		Tips        []string `json:"tips"`
		TotalSupply uint64   `json:"total_supply"`
	}
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "replay", "--config", cfg, "--out", path("replayed.json"))), &report))
	assert.ElementsMatch(t, []string{stx.Hash(), stx2.Hash()}, report.Applied)
	assert.Equal(t, []string{stx2.Hash()}, report.Tips)
	assert.Equal(t, uint64(1000), report.TotalSupply)

	assert.Equal(t, "2\n", mustRun(t, "export", "--config", cfg, "--out", path("dag.tar")))
	other := writeConfig(t, t.TempDir(), filepath.Join(t.TempDir(), "store"), pkA)
	imported := strings.Fields(mustRun(t, "import", "--config", other, path("dag.tar")))
	assert.ElementsMatch(t, []string{stx.Hash(), stx2.Hash()}, imported)
}

func TestRun_VerifyNamesAlgorithmFlag(t *testing.T) {
	dir := t.TempDir()
	path := func(name string) string { return filepath.Join(dir, name) }

	pk := strings.TrimSpace(mustRun(t, "keygen", "--out", path("k.key"), "--signature-algorithm", "ML-DSA-44"))
	tx := mustRun(t, "transfer", "--key", path("k.key"), "--to", pk, "--amount", "1")
	require.NoError(t, os.WriteFile(path("tx.json"), []byte(tx), 0o600))

	code, out, errOut := runCLI(t, "verify", path("tx.json"))
	assert.Equal(t, 1, code)
	assert.Contains(t, out, `"malformed"`)
	assert.Contains(t, errOut, "ML-DSA-65")
	assert.Contains(t, errOut, "--signature-algorithm")

	out = mustRun(t, "verify", "--signature-algorithm", "ML-DSA-44", path("tx.json"))
	assert.Contains(t, out, `"valid"`)

	code, _, errOut = runCLI(t, "apply", "--tx", path("tx.json"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "--signature-algorithm")
}

func TestRun_Bench(t *testing.T) {
	var res benchResult
	out := mustRun(t, "bench", "--rounds", "1", "--signature-algorithm", "ML-DSA-44")
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "ML-DSA-44", res.Algorithm)
	assert.Equal(t, 2420, res.SignatureBytes)
	assert.Greater(t, res.JSONBytes, res.CBORBytes)

	code, _, _ := runCLI(t, "bench", "--rounds", "0")
	assert.Equal(t, 2, code)
}

func TestRun_BadConfig(t *testing.T) {
	code, _, errOut := runCLI(t, "verify", "--signature-algorithm", "RSA", "x.json")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "config:")
}
