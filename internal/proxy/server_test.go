// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package proxy

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/immich-gate/internal/platform/httpx"
)

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(ServerConfig{Handler: http.NotFoundHandler()})
	assert.Error(t, err)

	_, err = NewServer(ServerConfig{ListenAddr: ":0"})
	assert.Error(t, err)
}

func TestServer_StartShutdown_NoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rt := NewRouter(newTestStreamer(), &fixedSource{}, RouterOptions{})
	srv, err := NewServer(ServerConfig{
		ListenAddr: "127.0.0.1:0",
		Handler:    rt,
		Logger:     zerolog.New(io.Discard),
	})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-srv.Started():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not bind")
	}

	client := httpx.NewClient(2 * time.Second)
	resp, err := client.Get("http://" + srv.Addr() + ImageLink("abc"))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Start() didn't return after Shutdown()")
	}
}

func TestServer_StartAddressInUse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	srv, err := NewServer(ServerConfig{
		ListenAddr: l.Addr().String(),
		Handler:    http.NotFoundHandler(),
		Logger:     zerolog.New(io.Discard),
	})
	require.NoError(t, err)

	err = srv.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
}
