// Package ipfs stores transactions as raw blocks in a local IPFS repository
// by shelling out to the Kubo "ipfs" CLI.
//
// It operates on the local repo and needs no daemon. Bytes are re-hashed on
// every read; reachability through IPFS is never taken as validity.
package ipfs

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ipfs/go-cid"

	"xdao.co/pqdag/hashing"
	"xdao.co/pqdag/storage"
)

// Store is a storage.Store backed by the ipfs binary.
type Store struct {
	bin string
	env []string
}

var _ storage.Store = (*Store)(nil)

type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// Env overrides the command environment (e.g. to set IPFS_PATH). If nil,
	// the process environment is used.
	Env []string
}

func New(opts Options) *Store {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &Store{bin: bin, env: opts.Env}
}

func (s *Store) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, err := storage.Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	// Explicit parameters keep the block CID equal to the transaction hash.
	out, err := s.run(ctx, data,
		"block", "put",
		"--quiet",
		"--cid-codec=raw",
		"--mhtype="+hashing.Default.String(),
		"--mhlen=32",
		"/dev/stdin",
	)
	if err != nil {
		return cid.Undef, err
	}
	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return cid.Undef, errors.Wrap(err, "ipfs: unexpected block put output")
	}
	if got != id {
		return cid.Undef, storage.Mismatch(id)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	out, err := s.run(ctx, nil, "block", "get", id.String())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.NotFound(id)
		}
		return nil, err
	}
	if err := storage.Check(id, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	_, err := s.run(ctx, nil, "block", "stat", "--offline", id.String())
	if err == nil {
		return true, nil
	}
	if isLikelyNotFound(err) {
		return false, nil
	}
	return false, err
}

// Keys lists local blocks that look like transactions: raw codec under the
// default digest. Other blocks in the repo are ignored.
func (s *Store) Keys(ctx context.Context) ([]cid.Cid, error) {
	out, err := s.run(ctx, nil, "refs", "local")
	if err != nil {
		return nil, err
	}
	return parseRefs(out), nil
}

func parseRefs(out []byte) []cid.Cid {
	var ids []cid.Cid
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		id, err := cid.Decode(strings.TrimSpace(sc.Text()))
		if err != nil || id.Type() != cid.Raw {
			continue
		}
		if alg, err := hashing.AlgorithmOf(id); err != nil || alg != hashing.Default {
			continue
		}
		ids = append(ids, cid.NewCidV1(cid.Raw, id.Hash()))
	}
	return storage.SortKeys(ids)
}

func (s *Store) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.bin, args...)
	if s.env != nil {
		cmd.Env = s.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if msg := strings.TrimSpace(string(ee.Stderr)); msg != "" {
			return nil, errors.Newf("ipfs: %s", msg)
		}
	}
	return nil, errors.Wrap(err, "ipfs")
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found")
}
