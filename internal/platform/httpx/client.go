package httpx

import (
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultClientTimeout         = 6 * time.Second
	defaultDialTimeout           = 3 * time.Second
	defaultIdleConnTimeout       = 90 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 32
	defaultMaxIdleConnsPerHost   = 8
	streamingMaxIdleConnsPerHost = 16
)

// NewClient returns a client for bounded request/response exchanges
// (version probes, JSON queries). timeout caps the whole exchange.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	t := newTransport(timeout, defaultMaxIdleConnsPerHost)
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(t),
	}
}

// NewStreamingClient returns a client for asset bodies of unbounded size.
// timeout covers connect and response headers only; the body is bounded by
// the request context. Compression is disabled so Content-Length and
// Content-Encoding pass through untouched.
func NewStreamingClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	t := newTransport(timeout, streamingMaxIdleConnsPerHost)
	t.DisableCompression = true
	return &http.Client{
		Transport: otelhttp.NewTransport(t),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func newTransport(timeout time.Duration, perHost int) *http.Transport {
	dialTimeout := timeout
	if dialTimeout > defaultDialTimeout {
		dialTimeout = defaultDialTimeout
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   perHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   dialTimeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
	}
}
