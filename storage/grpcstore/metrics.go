package grpcstore

import (
	"context"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Metrics records TxStore calls served by this process.
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics creates the TxStore collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pqdag",
				Subsystem: "txstore",
				Name:      "requests_total",
				Help:      "TxStore calls by method and gRPC status code.",
			},
			[]string{"method", "code"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pqdag",
				Subsystem: "txstore",
				Name:      "request_duration_seconds",
				Help:      "TxStore call latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
	for _, c := range []prometheus.Collector{m.requests, m.latency} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "grpcstore: register metrics")
		}
	}
	return m, nil
}

// UnaryServerInterceptor observes every unary call.
func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		method := path.Base(info.FullMethod)
		m.requests.WithLabelValues(method, status.Code(err).String()).Inc()
		m.latency.WithLabelValues(method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}
