// Package registry lets store backends register themselves by name.
//
// Backends register in init(); a binary enables a backend by importing its
// package, usually as a blank import.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"xdao.co/pqdag/storage"
)

// Settings is the read side of the configuration a backend opens from.
// *viper.Viper satisfies it.
type Settings interface {
	GetString(key string) string
	GetInt(key string) int
	GetDuration(key string) time.Duration
}

// Backend is a build-time plugin that opens a storage.Store.
type Backend struct {
	Name        string
	Description string
	Usage       Usage

	// Open constructs the store from settings. It returns an optional close
	// function.
	Open func(cfg Settings, log zerolog.Logger) (storage.Store, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

func init() {
	MustRegister(Backend{
		Name:        "memory",
		Description: "In-process store; contents are lost on exit",
		Usage:       UsageCLI | UsageDaemon,
		Open: func(Settings, zerolog.Logger) (storage.Store, func() error, error) {
			return storage.NewMemory(), nil, nil
		},
	})
}

func Register(b Backend) error {
	if b.Name == "" {
		return errors.New("registry: backend name is required")
	}
	if b.Open == nil {
		return errors.Newf("registry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return errors.Newf("registry: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return errors.Newf("registry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// Open opens the named backend if it exists and matches usage.
func Open(name string, usage Usage, cfg Settings, log zerolog.Logger) (storage.Store, func() error, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, errors.Newf("registry: unknown backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return nil, nil, errors.Newf("registry: backend %q not supported in this binary", name)
	}
	return b.Open(cfg, log.With().Str("backend", name).Logger())
}
