package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"

	"xdao.co/pqdag/storage"
	"xdao.co/pqdag/storage/grpcstore"
)

func TestRun_ListBackends(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"--list-backends"}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "localfs\t")
	assert.Contains(t, out.String(), "badger\t")
	assert.NotContains(t, out.String(), "grpc\t")
}

func TestRun_RejectsGRPCBackend(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"--storage-backends", "grpc"}, &out, &errOut)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "not supported")
}

func TestServe_RoundTripAndShutdown(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	backend := storage.NewMemory()
	errCh := make(chan error, 1)
	go func() { errCh <- serve(ctx, lis, backend, zerolog.Nop()) }()

	client, err := grpcstore.Dial(lis.Addr().String(), grpcstore.DialOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer client.Close()

	id, err := client.Put(context.Background(), []byte("signed tx"))
	require.NoError(t, err)
	ok, err := backend.Has(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServe_ReturnsWhenListenerFails(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, lis.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- serve(ctx, lis, storage.NewMemory(), zerolog.Nop()) }()

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return")
	}
}

func TestServeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := grpcstore.NewMetrics(reg)
	require.NoError(t, err)
	addr, stop, err := serveMetrics("127.0.0.1:0", reg, zerolog.Nop())
	require.NoError(t, err)
	defer stop()

	info := &grpc.UnaryServerInfo{FullMethod: "/pqdag.storage.v1.TxStore/Has"}
	_, err = m.UnaryServerInterceptor()(context.Background(), nil, info, func(context.Context, any) (any, error) { return nil, nil })
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `pqdag_txstore_requests_total{code="OK",method="Has"} 1`)
}

func TestRun_ServesUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	var out, errOut bytes.Buffer
	code := run(ctx, []string{"--storage-listen", "127.0.0.1:0", "--metrics-listen", "127.0.0.1:0", "--log-level", "error"}, &out, &errOut)
	assert.Equal(t, 0, code, errOut.String())
}
