package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/pqdag/hashing"
	"xdao.co/pqdag/ledger"
	"xdao.co/pqdag/model"
	"xdao.co/pqdag/pqsig"
	"xdao.co/pqdag/storage"
	"xdao.co/pqdag/storage/registry"
)

func publicKey(t *testing.T) string {
	t.Helper()
	s, err := pqsig.Init().NewSigner("ML-DSA-44")
	require.NoError(t, err)
	pk, _, err := s.GenerateKeypair()
	require.NoError(t, err)
	return pk.String()
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, pqsig.DefaultAlgorithm, c.Signature.Algorithm)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, []string{"memory"}, c.Storage.Backends)
	assert.Equal(t, WriteFirst, c.Storage.WritePolicy)
	assert.Equal(t, 10*time.Second, c.Settings().GetDuration("storage.grpc.timeout"))
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	issuer := publicKey(t)
	root := hashing.String([]byte("root"))
	path := writeFile(t, "pqdag.yaml", fmt.Sprintf(`
signature:
  algorithm: ML-DSA-44
log:
  level: warn
ledger:
  issuers: [%q]
  roots: [%q]
  allocations:
    - account: %q
      balance: 1000
storage:
  backends: [memory, localfs]
  write_policy: all
  localfs:
    dir: /tmp/pqdag
`, issuer, root, issuer))

	t.Setenv("PQDAG_LOG_FORMAT", "console")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("log-level", "", "")
	require.NoError(t, fs.Parse([]string{"--log-level=debug"}))

	c, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, "ML-DSA-44", c.Signature.Algorithm)
	assert.Equal(t, "debug", c.Log.Level, "flag beats file")
	assert.Equal(t, "console", c.Log.Format, "env beats default")
	assert.Equal(t, []string{issuer}, c.Ledger.Issuers)
	assert.Equal(t, []string{root}, c.Ledger.Roots)
	require.Len(t, c.Ledger.Allocations, 1)
	assert.Equal(t, Allocation{Account: issuer, Balance: 1000}, c.Ledger.Allocations[0])
	assert.Equal(t, []string{"memory", "localfs"}, c.Storage.Backends)
	assert.Equal(t, "/tmp/pqdag", c.Settings().GetString("storage.localfs.dir"))

	ws := ledger.New(c.LedgerOptions()...)
	bal, ok := ws.Balance(issuer)
	assert.True(t, ok)
	assert.Equal(t, uint64(1000), bal)
	assert.True(t, ws.Known(root))

	s, err := c.Signer()
	require.NoError(t, err)
	assert.Equal(t, "ML-DSA-44", s.Algorithm())
}

func TestLoad_UnsetFlagKeepsDefault(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("log-level", "", "")
	require.NoError(t, fs.Parse(nil))

	c, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, "info", c.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	pk := publicKey(t)
	cases := []struct {
		name string
		body string
		rule string
	}{
		{"algorithm", "signature:\n  algorithm: RSA-2048\n", "DAG-CFG-001"},
		{"level", "log:\n  level: loud\n", "DAG-CFG-002"},
		{"issuer", "ledger:\n  issuers: [\"not base64!\"]\n", "DAG-CFG-101"},
		{"root", "ledger:\n  roots: [\"Qm-nope\"]\n", "DAG-CFG-102"},
		{"account", "ledger:\n  allocations:\n    - account: \"??\"\n      balance: 1\n", "DAG-CFG-103"},
		{"supply", fmt.Sprintf("ledger:\n  allocations:\n    - account: %q\n      balance: 18446744073709551615\n    - account: %q\n      balance: 1\n", pk, pk), "DAG-CFG-104"},
		{"backends", "storage:\n  backends: []\n", "DAG-CFG-201"},
		{"duplicate", "storage:\n  backends: [memory, memory]\n", "DAG-CFG-202"},
		{"policy", "storage:\n  write_policy: some\n", "DAG-CFG-203"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.yaml", tc.body), nil)
			require.Error(t, err)
			assert.True(t, model.IsKind(err, model.KindConfig))
			assert.Equal(t, tc.rule, model.RuleID(err))
		})
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("single", func(t *testing.T) {
		c, err := Load("", nil)
		require.NoError(t, err)
		s, closeFn, err := c.OpenStore(registry.UsageCLI, zerolog.Nop())
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &storage.Memory{}, s)
	})

	t.Run("replicating", func(t *testing.T) {
		path := writeFile(t, "c.yaml", fmt.Sprintf("storage:\n  backends: [localfs, badger]\n  write_policy: all\n  localfs:\n    dir: %q\n  badger:\n    dir: %q\n",
			filepath.Join(dir, "fs"), filepath.Join(dir, "badger")))
		c, err := Load(path, nil)
		require.NoError(t, err)
		s, closeFn, err := c.OpenStore(registry.UsageDaemon, zerolog.Nop())
		require.NoError(t, err)
		require.IsType(t, storage.ReplicatingStore{}, s)

		id, err := s.Put(ctx, []byte("tx"))
		require.NoError(t, err)
		for _, n := range s.(storage.ReplicatingStore).Backends {
			ok, err := n.Store.Has(ctx, id)
			require.NoError(t, err)
			assert.True(t, ok, n.Name)
		}
		assert.NoError(t, closeFn())
	})

	t.Run("fallback", func(t *testing.T) {
		path := writeFile(t, "c.yaml", fmt.Sprintf("storage:\n  backends: [memory, localfs]\n  localfs:\n    dir: %q\n", filepath.Join(dir, "fs2")))
		c, err := Load(path, nil)
		require.NoError(t, err)
		s, _, err := c.OpenStore(registry.UsageCLI, zerolog.Nop())
		require.NoError(t, err)
		assert.IsType(t, storage.MultiStore{}, s)
	})

	t.Run("errors", func(t *testing.T) {
		t.Setenv("PQDAG_STORAGE_BACKENDS", "nosuch")
		c, err := Load("", nil)
		require.NoError(t, err)
		_, _, err = c.OpenStore(registry.UsageCLI, zerolog.Nop())
		assert.ErrorContains(t, err, "unknown backend")

		t.Setenv("PQDAG_STORAGE_BACKENDS", "grpc")
		c, err = Load("", nil)
		require.NoError(t, err)
		_, _, err = c.OpenStore(registry.UsageDaemon, zerolog.Nop())
		assert.ErrorContains(t, err, "not supported")
	})
}
