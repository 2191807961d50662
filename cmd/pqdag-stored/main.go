package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"xdao.co/pqdag/internal/config"
	"xdao.co/pqdag/internal/logging"
	"xdao.co/pqdag/storage"
	"xdao.co/pqdag/storage/grpcstore"
	"xdao.co/pqdag/storage/registry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("pqdag-stored", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	cfgPath := fs.String("config", "", "Settings file")
	fs.String("storage-listen", "", "Listen address (default from storage.listen)")
	fs.String("metrics-listen", "", "Prometheus endpoint address (disabled when empty)")
	fs.StringSlice("storage-backends", nil, "Backends to serve from, in read order")
	fs.String("log-level", "", "Log level")
	fs.String("log-format", "", "Log format (json, console)")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *listBackends {
		for _, b := range registry.List(registry.UsageDaemon) {
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	cfg, err := config.Load(*cfgPath, fs)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 2
	}
	log, err := cfg.Logger("pqdag-stored", logging.Options{Writer: errOut})
	if err != nil {
		fmt.Fprintf(errOut, "log: %v\n", err)
		return 2
	}

	store, closeFn, err := cfg.OpenStore(registry.UsageDaemon, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open store")
		return 2
	}
	defer func() {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := grpcstore.NewMetrics(reg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to register metrics")
		return 1
	}
	if addr := cfg.Metrics.Listen; addr != "" {
		_, stopMetrics, err := serveMetrics(addr, reg, log)
		if err != nil {
			log.Error().Err(err).Msg("Failed to start metrics endpoint")
			return 1
		}
		defer stopMetrics()
	}

	lis, err := net.Listen("tcp", cfg.Storage.Listen)
	if err != nil {
		log.Error().Err(err).Msg("Failed to listen")
		return 1
	}

	if err := serve(ctx, lis, store, log, grpc.UnaryInterceptor(metrics.UnaryServerInterceptor())); err != nil {
		log.Error().Err(err).Msg("Server failed")
		return 1
	}
	return 0
}

// serveMetrics exposes reg on addr under /metrics. It returns the bound
// address and a function that shuts the endpoint down.
func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) (string, func(), error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, errors.Wrap(err, "metrics listen")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", lis.Addr().String()).Msg("Serving metrics")
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics endpoint failed")
		}
	}()
	return lis.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to stop metrics endpoint")
		}
	}, nil
}

// serve runs the TxStore service on lis until ctx is done, then stops
// gracefully. It returns early if Serve fails.
func serve(ctx context.Context, lis net.Listener, store storage.Store, log zerolog.Logger, opts ...grpc.ServerOption) error {
	s := grpc.NewServer(opts...)
	grpcstore.RegisterTxStoreServer(s, &grpcstore.Server{Store: store, Log: log})

	log.Info().Str("addr", lis.Addr().String()).Msg("Serving transaction store")
	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Serve(lis) }()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		s.GracefulStop()
		<-serveErr
		return nil
	case err := <-serveErr:
		s.Stop()
		return errors.Wrap(err, "serve")
	}
}
