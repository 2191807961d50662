package localfs

import (
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"xdao.co/pqdag/storage"
	"xdao.co/pqdag/storage/registry"
)

// DirKey is the setting naming the store directory.
const DirKey = "storage.localfs.dir"

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "localfs",
		Description: "Local filesystem store (one file per transaction)",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		Open: func(cfg registry.Settings, _ zerolog.Logger) (storage.Store, func() error, error) {
			dir := cfg.GetString(DirKey)
			if dir == "" {
				return nil, nil, errors.Newf("localfs: missing %s", DirKey)
			}
			s, err := New(dir)
			return s, nil, err
		},
	})
}
