package httpx

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_DefaultTimeout(t *testing.T) {
	client := NewClient(0)
	assert.Equal(t, defaultClientTimeout, client.Timeout)
	require.NotNil(t, client.Transport)
}

func TestNewTransport_CapsDialTimeout(t *testing.T) {
	tr := newTransport(10*time.Second, defaultMaxIdleConnsPerHost)
	assert.Equal(t, defaultDialTimeout, tr.TLSHandshakeTimeout)
	assert.Equal(t, 10*time.Second, tr.ResponseHeaderTimeout)
	assert.Equal(t, defaultMaxIdleConns, tr.MaxIdleConns)
	assert.Equal(t, defaultMaxIdleConnsPerHost, tr.MaxIdleConnsPerHost)
}

func TestNewTransport_ShortTimeoutAsProvided(t *testing.T) {
	want := 1500 * time.Millisecond
	tr := newTransport(want, defaultMaxIdleConnsPerHost)
	assert.Equal(t, want, tr.TLSHandshakeTimeout)
	assert.Equal(t, want, tr.ResponseHeaderTimeout)
}

func TestNewStreamingClient_NoTotalTimeout(t *testing.T) {
	client := NewStreamingClient(2 * time.Second)
	assert.Zero(t, client.Timeout, "a total timeout would cut long video streams")
	require.NotNil(t, client.CheckRedirect)
}

func TestClientSet_RebuildsOnTimeoutChange(t *testing.T) {
	builds := 0
	set := NewClientSet(func(timeout time.Duration) *http.Client {
		builds++
		return NewClient(timeout)
	})

	first := set.For(time.Second)
	assert.Same(t, first, set.For(time.Second))
	assert.Equal(t, 1, builds)

	second := set.For(3 * time.Second)
	assert.NotSame(t, first, second)
	assert.Equal(t, 3*time.Second, second.Timeout)
	assert.Equal(t, 2, builds)

	set.CloseIdleConnections()
}
