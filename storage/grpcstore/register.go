package grpcstore

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"xdao.co/pqdag/storage"
	"xdao.co/pqdag/storage/registry"
)

const (
	TargetKey      = "storage.grpc.target"
	TimeoutKey     = "storage.grpc.timeout"
	DialTimeoutKey = "storage.grpc.dial_timeout"
	MaxMsgBytesKey = "storage.grpc.max_msg_bytes"
)

func init() {
	// A daemon serving from another daemon is not supported.
	registry.MustRegister(registry.Backend{
		Name:        "grpc",
		Description: "gRPC client for a pqdag-stored daemon",
		Usage:       registry.UsageCLI,
		Open: func(cfg registry.Settings, _ zerolog.Logger) (storage.Store, func() error, error) {
			target := strings.TrimSpace(cfg.GetString(TargetKey))
			if target == "" {
				return nil, nil, errors.Newf("grpcstore: missing %s", TargetKey)
			}
			client, err := Dial(target, DialOptions{
				Timeout:     cfg.GetDuration(DialTimeoutKey),
				MaxMsgBytes: cfg.GetInt(MaxMsgBytesKey),
			})
			if err != nil {
				return nil, nil, err
			}
			client.Timeout = cfg.GetDuration(TimeoutKey)
			return client, client.Close, nil
		},
	})
}
