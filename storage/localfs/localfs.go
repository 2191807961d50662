// Package localfs stores transactions as one immutable file per CID.
package localfs

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/ipfs/go-cid"

	"xdao.co/pqdag/storage"
)

// Store is a local filesystem-backed storage.Store.
//
// Objects are written once, read-only, under root/<first two CID chars>/<CID>.
// It never uses the network and never depends on wall-clock time.
type Store struct {
	root string
}

var _ storage.Store = (*Store)(nil)

// New constructs a filesystem store rooted at root, creating it if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "localfs: create root")
	}
	return &Store{root: root}, nil
}

func (s *Store) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	id, err := storage.Sum(data)
	if err != nil {
		return cid.Undef, err
	}

	path := s.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, errors.Wrap(err, "localfs: create shard")
	}

	if err := s.write(path, data); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return cid.Undef, err
		}
		existing, rerr := s.Get(ctx, id)
		// An unreadable or corrupted existing file is never repaired.
		if rerr != nil || !bytes.Equal(existing, data) {
			return cid.Undef, storage.ErrImmutable
		}
	}
	return id, nil
}

// write puts data at path through a synced temp file in the same directory.
// The object appears complete or not at all; an existing path is never
// replaced and yields fs.ErrExist.
func (s *Store) write(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "localfs: create temp object")
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "localfs: write object")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "localfs: sync object")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "localfs: close object")
	}
	if err := os.Chmod(tmp, 0o444); err != nil {
		return errors.Wrap(err, "localfs: chmod object")
	}
	// Link fails if path exists, unlike Rename.
	if err := os.Link(tmp, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fs.ErrExist
		}
		return errors.Wrap(err, "localfs: link object")
	}
	return syncDir(filepath.Dir(path))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return errors.Wrap(err, "localfs: open shard")
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return errors.Wrap(err, "localfs: sync shard")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.NotFound(id)
		}
		return nil, errors.Wrap(err, "localfs: read object")
	}
	if err := storage.Check(id, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !id.Defined() {
		return false, nil
	}
	_, err := os.Stat(s.pathFor(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrap(err, "localfs: stat object")
}

// Keys walks the shard directories. Files whose names are not CIDs are
// ignored.
func (s *Store) Keys(ctx context.Context) ([]cid.Cid, error) {
	var out []cid.Cid
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		id, err := cid.Decode(d.Name())
		if err != nil {
			return nil
		}
		if s.pathFor(id) == path {
			out = append(out, id)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "localfs: list objects")
	}
	return storage.SortKeys(out), nil
}

func (s *Store) pathFor(id cid.Cid) string {
	str := id.String()
	if len(str) < 2 {
		return filepath.Join(s.root, str)
	}
	return filepath.Join(s.root, str[:2], str)
}
