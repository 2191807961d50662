package config

import (
	"github.com/rs/zerolog"

	"xdao.co/pqdag/storage"
	"xdao.co/pqdag/storage/registry"

	// Backends available to every pqdag binary.
	_ "xdao.co/pqdag/storage/badgerstore"
	_ "xdao.co/pqdag/storage/grpcstore"
	_ "xdao.co/pqdag/storage/ipfs"
	_ "xdao.co/pqdag/storage/localfs"
)

// OpenStore opens storage.backends in order. With one backend it is returned
// as is; with more, write_policy "first" yields a storage.MultiStore and
// "all" a storage.ReplicatingStore. The close function closes every backend
// in reverse order and reports the first error.
func (c *Config) OpenStore(usage registry.Usage, log zerolog.Logger) (storage.Store, func() error, error) {
	named := make([]storage.Named, 0, len(c.Storage.Backends))
	closers := make([]func() error, 0, len(c.Storage.Backends))
	closeAll := func() error {
		var first error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	for _, name := range c.Storage.Backends {
		s, closeFn, err := registry.Open(name, usage, c.v, log)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		named = append(named, storage.Named{Name: name, Store: s})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}
	log.Debug().Strs("backends", c.Storage.Backends).Str("write_policy", c.Storage.WritePolicy).Msg("Store opened")

	if len(named) == 1 {
		return named[0].Store, closeAll, nil
	}
	if c.Storage.WritePolicy == WriteAll {
		return storage.ReplicatingStore{Backends: named}, closeAll, nil
	}
	stores := make([]storage.Store, 0, len(named))
	for _, n := range named {
		stores = append(stores, n.Store)
	}
	return storage.MultiStore{Stores: stores}, closeAll, nil
}
