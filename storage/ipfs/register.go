package ipfs

import (
	"os"

	"github.com/rs/zerolog"

	"xdao.co/pqdag/storage"
	"xdao.co/pqdag/storage/registry"
)

const (
	BinKey  = "storage.ipfs.bin"
	PathKey = "storage.ipfs.path"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "ipfs",
		Description: "Local IPFS repository via the ipfs CLI",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		Open: func(cfg registry.Settings, _ zerolog.Logger) (storage.Store, func() error, error) {
			opts := Options{Bin: cfg.GetString(BinKey)}
			if p := cfg.GetString(PathKey); p != "" {
				opts.Env = append(os.Environ(), "IPFS_PATH="+p)
			}
			return New(opts), nil, nil
		},
	})
}
