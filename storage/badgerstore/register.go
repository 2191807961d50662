package badgerstore

import (
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"xdao.co/pqdag/storage"
	"xdao.co/pqdag/storage/registry"
)

// DirKey is the setting naming the database directory.
const DirKey = "storage.badger.dir"

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "badger",
		Description: "Badger key-value database",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		Open: func(cfg registry.Settings, log zerolog.Logger) (storage.Store, func() error, error) {
			dir := cfg.GetString(DirKey)
			if dir == "" {
				return nil, nil, errors.Newf("badgerstore: missing %s", DirKey)
			}
			s, err := Open(dir, WithLogger(log))
			if err != nil {
				return nil, nil, err
			}
			return s, s.Close, nil
		},
	})
}
