// Package bundle moves stored transactions between stores as a deterministic
// TAR archive: one "blocks/<cid>" entry per transaction plus an optional
// non-authoritative index.json.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ipfs/go-cid"

	"xdao.co/pqdag/hashing"
	"xdao.co/pqdag/storage"
)

// FormatVersion is the current index schema version.
const FormatVersion = 1

var epoch0 = time.Unix(0, 0).UTC()

type ExportOptions struct {
	// Labels is optional metadata mapping names to CIDs, e.g. DAG tips.
	Labels map[string]cid.Cid
	// IncludeIndex controls whether index.json is written.
	IncludeIndex bool
}

// Export writes the objects named by ids, read from store, to w.
//
// Entry order is lexicographic and TAR headers are normalized, so equal
// inputs give equal bytes. Every exported object is re-checked against its
// CID.
func Export(ctx context.Context, w io.Writer, store storage.Store, ids []cid.Cid, opts ExportOptions) error {
	if store == nil {
		return errors.New("bundle: nil store")
	}
	uniq := make(map[cid.Cid]struct{}, len(ids))
	sorted := make([]cid.Cid, 0, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		if _, ok := uniq[id]; ok {
			continue
		}
		uniq[id] = struct{}{}
		sorted = append(sorted, id)
	}
	storage.SortKeys(sorted)

	tw := tar.NewWriter(w)
	fail := func(err error) error {
		_ = tw.Close()
		return err
	}

	blocks := make([]indexBlock, 0, len(sorted))
	for _, id := range sorted {
		b, err := store.Get(ctx, id)
		if err != nil {
			return fail(errors.Wrapf(err, "bundle: read %s", id))
		}
		if err := storage.Check(id, b); err != nil {
			return fail(err)
		}
		if err := writeFile(tw, "blocks/"+id.String(), b); err != nil {
			return fail(err)
		}
		blocks = append(blocks, indexBlock{CID: id.String(), Size: len(b)})
	}

	if opts.IncludeIndex {
		idx := indexJSON{
			Version:   FormatVersion,
			CIDCodec:  "raw",
			Multihash: hashing.Default.String(),
			Blocks:    blocks,
		}
		names := make([]string, 0, len(opts.Labels))
		for k := range opts.Labels {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			v := opts.Labels[k]
			if k == "" {
				return fail(errors.New("bundle: empty label key"))
			}
			if !v.Defined() {
				return fail(storage.ErrInvalidCID)
			}
			idx.Labels = append(idx.Labels, indexLabel{Name: k, CID: v.String()})
		}
		b, err := json.Marshal(idx)
		if err != nil {
			return fail(err)
		}
		if err := writeFile(tw, "index.json", append(b, '\n')); err != nil {
			return fail(err)
		}
	}
	return tw.Close()
}

type ImportOptions struct {
	// IgnoreUnknown skips unknown entries instead of failing.
	IgnoreUnknown bool
}

// Import reads a bundle from r into store and returns the imported CIDs,
// sorted. Each block must hash to the CID in its entry name.
func Import(ctx context.Context, r io.Reader, store storage.Store, opts ImportOptions) ([]cid.Cid, error) {
	if store == nil {
		return nil, errors.New("bundle: nil store")
	}

	tr := tar.NewReader(r)
	seen := map[cid.Cid]struct{}{}
	var out []cid.Cid

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return storage.SortKeys(out), nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "bundle: read entry")
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return nil, errors.Newf("bundle: invalid entry path %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return nil, errors.Newf("bundle: unexpected entry type %v (%s)", h.Typeflag, name)
		}
		if name == "index.json" {
			continue
		}
		if !strings.HasPrefix(name, "blocks/") {
			if opts.IgnoreUnknown {
				continue
			}
			return nil, errors.Newf("bundle: unknown entry %s", name)
		}

		id, err := cid.Decode(strings.TrimPrefix(name, "blocks/"))
		if err != nil || !id.Defined() {
			return nil, errors.Wrapf(storage.ErrInvalidCID, "entry %s", name)
		}
		if _, dup := seen[id]; dup {
			return nil, errors.Newf("bundle: duplicate block entry %s", id)
		}
		seen[id] = struct{}{}

		payload, err := io.ReadAll(tr)
		if err != nil {
			return nil, errors.Wrap(err, "bundle: read block")
		}
		if err := storage.Check(id, payload); err != nil {
			return nil, err
		}
		putID, err := store.Put(ctx, payload)
		if err != nil {
			return nil, err
		}
		if putID != id {
			return nil, storage.Mismatch(id)
		}
		out = append(out, id)
	}
}

type indexJSON struct {
	Version   int          `json:"version"`
	CIDCodec  string       `json:"cidCodec"`
	Multihash string       `json:"multihash"`
	Blocks    []indexBlock `json:"blocks"`
	Labels    []indexLabel `json:"labels,omitempty"`
}

type indexBlock struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

type indexLabel struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return errors.Wrapf(err, "bundle: header %s", name)
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

// cleanTarPath normalizes separators and rejects empty, "." and ".."
// segments.
func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
