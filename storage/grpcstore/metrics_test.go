package grpcstore

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"xdao.co/pqdag/storage"
)

// counts returns requests_total values keyed by "method/code".
func counts(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "pqdag_txstore_requests_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			var method, code string
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "method":
					method = l.GetValue()
				case "code":
					code = l.GetValue()
				}
			}
			out[method+"/"+code] = m.GetCounter().GetValue()
		}
	}
	return out
}

func TestMetrics_CountsCalls(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	client := serve(t, storage.NewMemory(), grpc.UnaryInterceptor(m.UnaryServerInterceptor()))
	id, err := client.Put(ctx, []byte("metered"))
	require.NoError(t, err)
	_, err = client.Get(ctx, id)
	require.NoError(t, err)
	missing, err := storage.Sum([]byte("absent"))
	require.NoError(t, err)
	_, err = client.Get(ctx, missing)
	require.Error(t, err)

	got := counts(t, reg)
	assert.Equal(t, 1.0, got["Put/OK"])
	assert.Equal(t, 1.0, got["Get/OK"])
	assert.Equal(t, 1.0, got["Get/NotFound"])
}

func TestMetrics_RegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}
