// Package config loads pqdag settings from an optional file, PQDAG_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"xdao.co/pqdag/hashing"
	"xdao.co/pqdag/internal/logging"
	"xdao.co/pqdag/ledger"
	"xdao.co/pqdag/model"
	"xdao.co/pqdag/pqsig"
	"xdao.co/pqdag/storage/registry"
)

// EnvPrefix prefixes every environment override, e.g. PQDAG_LOG_LEVEL.
const EnvPrefix = "PQDAG"

// Setting keys. Backend-specific keys live with each backend.
const (
	KeySignatureAlgorithm = "signature.algorithm"
	KeyLogLevel           = "log.level"
	KeyLogFormat          = "log.format"
	KeyLedgerIssuers      = "ledger.issuers"
	KeyLedgerRoots        = "ledger.roots"
	KeyLedgerAllocations  = "ledger.allocations"
	KeyStorageBackends    = "storage.backends"
	KeyStorageWritePolicy = "storage.write_policy"
	KeyStorageListen      = "storage.listen"
	KeyMetricsListen      = "metrics.listen"
)

// Write policies for more than one backend.
const (
	WriteFirst = "first"
	WriteAll   = "all"
)

// Allocation is an initial balance. Account is the base64 public key.
type Allocation struct {
	Account string `mapstructure:"account"`
	Balance uint64 `mapstructure:"balance"`
}

type Config struct {
	Signature struct {
		Algorithm string `mapstructure:"algorithm"`
	} `mapstructure:"signature"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Ledger struct {
		Issuers     []string     `mapstructure:"issuers"`
		Roots       []string     `mapstructure:"roots"`
		Allocations []Allocation `mapstructure:"allocations"`
	} `mapstructure:"ledger"`

	Storage struct {
		Backends    []string `mapstructure:"backends"`
		WritePolicy string   `mapstructure:"write_policy"`
		Listen      string   `mapstructure:"listen"`
	} `mapstructure:"storage"`

	// Metrics.Listen is the Prometheus endpoint address of the daemon;
	// empty disables it.
	Metrics struct {
		Listen string `mapstructure:"listen"`
	} `mapstructure:"metrics"`

	v *viper.Viper
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeySignatureAlgorithm, pqsig.DefaultAlgorithm)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, logging.FormatJSON)
	v.SetDefault(KeyStorageBackends, []string{"memory"})
	v.SetDefault(KeyStorageWritePolicy, WriteFirst)
	v.SetDefault(KeyStorageListen, "127.0.0.1:7450")
	v.SetDefault(KeyMetricsListen, "")
	v.SetDefault("storage.grpc.timeout", 10*time.Second)
	v.SetDefault("storage.grpc.dial_timeout", 5*time.Second)
	v.SetDefault("storage.ipfs.bin", "ipfs")
}

// Load reads path (YAML, JSON or TOML by extension; empty means no file),
// then environment variables, then any changed flags in fs. Flags are bound
// by name with dashes mapped to dots, so --log-level sets log.level.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "config: read %s", path)
		}
	}
	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if bindErr == nil {
				bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "."), f)
			}
		})
		if bindErr != nil {
			return nil, errors.Wrap(bindErr, "config: bind flags")
		}
	}

	c := &Config{v: v}
	if err := v.Unmarshal(c); err != nil {
		return nil, errors.Wrap(err, "config: decode")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Settings exposes the raw settings, for backends reading their own keys.
func (c *Config) Settings() registry.Settings { return c.v }

// Validate checks every value a component would otherwise reject later.
func (c *Config) Validate() error {
	if _, err := pqsig.Init().Lookup(c.Signature.Algorithm); err != nil {
		return model.Wrap(model.KindConfig, "DAG-CFG-001", KeySignatureAlgorithm, err)
	}
	if _, err := logging.New("", logging.Options{Level: c.Log.Level, Format: c.Log.Format}); err != nil {
		return model.Wrap(model.KindConfig, "DAG-CFG-002", "log", err)
	}
	for _, pk := range c.Ledger.Issuers {
		if _, err := pqsig.ParsePublicKey(pk); err != nil {
			return model.Wrap(model.KindConfig, "DAG-CFG-101", KeyLedgerIssuers, err)
		}
	}
	for _, h := range c.Ledger.Roots {
		if _, err := hashing.Parse(h); err != nil {
			return model.Wrap(model.KindConfig, "DAG-CFG-102", KeyLedgerRoots, err)
		}
	}
	var supply uint64
	for _, a := range c.Ledger.Allocations {
		if _, err := pqsig.ParsePublicKey(a.Account); err != nil {
			return model.Wrap(model.KindConfig, "DAG-CFG-103", KeyLedgerAllocations, err)
		}
		if supply+a.Balance < supply {
			return model.New(model.KindConfig, "DAG-CFG-104", "ledger.allocations overflow the total supply")
		}
		supply += a.Balance
	}

	if len(c.Storage.Backends) == 0 {
		return model.New(model.KindConfig, "DAG-CFG-201", "storage.backends is empty")
	}
	seen := make(map[string]struct{}, len(c.Storage.Backends))
	for _, b := range c.Storage.Backends {
		if _, dup := seen[b]; dup {
			return model.Newf(model.KindConfig, "DAG-CFG-202", "storage.backends lists %q twice", b)
		}
		seen[b] = struct{}{}
	}
	switch c.Storage.WritePolicy {
	case WriteFirst, WriteAll:
	default:
		return model.Newf(model.KindConfig, "DAG-CFG-203", "invalid storage.write_policy %q", c.Storage.WritePolicy)
	}
	return nil
}

// Logger builds the configured logger for component.
func (c *Config) Logger(component string, opts logging.Options) (zerolog.Logger, error) {
	opts.Level = c.Log.Level
	opts.Format = c.Log.Format
	return logging.New(component, opts)
}

// Signer returns a signer for the configured algorithm.
func (c *Config) Signer(opts ...pqsig.Option) (*pqsig.Signer, error) {
	return pqsig.Init().NewSigner(c.Signature.Algorithm, opts...)
}

// LedgerOptions turns the ledger section into WorldState options.
// Validate has already rejected malformed keys and hashes.
func (c *Config) LedgerOptions() []ledger.Option {
	opts := make([]ledger.Option, 0, len(c.Ledger.Allocations)+2)
	for _, a := range c.Ledger.Allocations {
		opts = append(opts, ledger.WithAllocation(a.Account, a.Balance))
	}
	if len(c.Ledger.Issuers) > 0 {
		opts = append(opts, ledger.WithIssuers(c.Ledger.Issuers...))
	}
	if len(c.Ledger.Roots) > 0 {
		opts = append(opts, ledger.WithRoots(c.Ledger.Roots...))
	}
	return opts
}
