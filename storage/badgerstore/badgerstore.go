// Package badgerstore persists transactions in a badger key-value database.
//
// Objects live under the key "tx:<cid>"; the value is the canonical encoding.
package badgerstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v4"
	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog"

	"xdao.co/pqdag/storage"
)

const keyPrefix = "tx:"

// Store is a badger-backed storage.Store.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

var _ storage.Store = (*Store)(nil)

type Option func(*options)

type options struct {
	inMemory bool
	log      zerolog.Logger
}

// InMemory keeps the database entirely in memory; dir is ignored.
func InMemory() Option {
	return func(o *options) { o.inMemory = true }
}

// WithLogger routes badger's internal logging and store events to l.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// Open opens (or creates) the database in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	bo := badger.DefaultOptions(dir).WithLogger(badgerLogger{o.log})
	if o.inMemory {
		bo = bo.WithDir("").WithValueDir("").WithInMemory(true)
	} else if dir == "" {
		return nil, errors.New("badgerstore: directory is required")
	}
	db, err := badger.Open(bo)
	if err != nil {
		return nil, errors.Wrap(err, "badgerstore: open")
	}
	return &Store{db: db, log: o.log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func key(id cid.Cid) []byte {
	return []byte(keyPrefix + id.String())
}

func (s *Store) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	id, err := storage.Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		switch {
		case err == nil:
			return item.Value(func(val []byte) error {
				if !bytes.Equal(val, data) {
					return storage.ErrImmutable
				}
				return nil
			})
		case errors.Is(err, badger.ErrKeyNotFound):
			return txn.Set(key(id), data)
		default:
			return err
		}
	})
	if err != nil {
		if errors.Is(err, storage.ErrImmutable) {
			return cid.Undef, err
		}
		s.log.Error().Err(err).Str("tx_id", id.String()).Msg("Failed to save transaction")
		return cid.Undef, errors.Wrap(err, "badgerstore: put")
	}
	s.log.Debug().Str("tx_id", id.String()).Msg("Transaction saved")
	return id, nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.NotFound(id)
		}
		return nil, errors.Wrap(err, "badgerstore: get")
	}
	if err := storage.Check(id, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !id.Defined() {
		return false, nil
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key(id))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, errors.Wrap(err, "badgerstore: has")
	}
}

func (s *Store) Keys(ctx context.Context) ([]cid.Cid, error) {
	var out []cid.Cid
	prefix := []byte(keyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			k := it.Item().Key()
			id, err := cid.Decode(string(k[len(prefix):]))
			if err != nil {
				return errors.Wrapf(storage.ErrInvalidCID, "key %q", k)
			}
			out = append(out, id)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "badgerstore: keys")
	}
	// Badger orders keys bytewise, which matches string order.
	return out, nil
}

// badgerLogger adapts zerolog to badger.Logger.
type badgerLogger struct{ l zerolog.Logger }

func (b badgerLogger) Errorf(f string, v ...interface{})   { b.l.Error().Msg(trim(f, v)) }
func (b badgerLogger) Warningf(f string, v ...interface{}) { b.l.Warn().Msg(trim(f, v)) }
func (b badgerLogger) Infof(f string, v ...interface{})    { b.l.Debug().Msg(trim(f, v)) }
func (b badgerLogger) Debugf(f string, v ...interface{})   { b.l.Trace().Msg(trim(f, v)) }

func trim(f string, v []interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(f, v...))
}
