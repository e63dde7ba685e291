package httpx

import (
	"net/http"
	"sync"
	"time"
)

// ClientSet hands out the client for a timeout, building it on first use.
// Only the client for the most recently requested timeout is kept; the
// previous one has its idle connections closed when it is replaced.
type ClientSet struct {
	build func(time.Duration) *http.Client

	mu      sync.Mutex
	timeout time.Duration
	client  *http.Client
}

// NewClientSet returns a set backed by build, e.g. NewClient or
// NewStreamingClient.
func NewClientSet(build func(time.Duration) *http.Client) *ClientSet {
	return &ClientSet{build: build}
}

// For returns the client configured for timeout.
func (s *ClientSet) For(timeout time.Duration) *http.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil && s.timeout == timeout {
		return s.client
	}
	if s.client != nil {
		s.client.CloseIdleConnections()
	}
	s.timeout = timeout
	s.client = s.build(timeout)
	return s.client
}

// CloseIdleConnections closes idle connections of the current client.
func (s *ClientSet) CloseIdleConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.CloseIdleConnections()
	}
}
