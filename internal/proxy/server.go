// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServerConfig holds the listener configuration.
type ServerConfig struct {
	// ListenAddr is the address to listen on (e.g. ":8089").
	ListenAddr string
	Handler    http.Handler
	Logger     zerolog.Logger

	// TLS is enabled when both are set.
	TLSCert string
	TLSKey  string
}

// Server owns the HTTP listener.
type Server struct {
	addr       string
	httpServer *http.Server
	logger     zerolog.Logger
	tlsCert    string
	tlsKey     string

	mu       sync.Mutex
	listener net.Listener
	started  chan struct{}
}

// NewServer creates a server; call Start to listen.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	return &Server{
		addr:    cfg.ListenAddr,
		logger:  cfg.Logger,
		tlsCert: cfg.TLSCert,
		tlsKey:  cfg.TLSKey,
		started: make(chan struct{}),
		httpServer: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           cfg.Handler,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      0, // video streams are unbounded
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}, nil
}

// Start listens and serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.started)

	tls := s.tlsCert != "" && s.tlsKey != ""
	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Bool("tls", tls).
		Msg("starting asset proxy server")

	if tls {
		err = s.httpServer.ServeTLS(ln, s.tlsCert, s.tlsKey)
	} else {
		err = s.httpServer.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("proxy server failed: %w", err)
	}
	return nil
}

// Started is closed once the listener is bound.
func (s *Server) Started() <-chan struct{} { return s.started }

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown gracefully stops the server; in-flight streams get until ctx
// expires, then their connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down asset proxy server")
	err := s.httpServer.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		_ = s.httpServer.Close()
	}
	return err
}
