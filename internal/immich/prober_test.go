// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package immich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/immich-gate/internal/dialect"
	"github.com/ManuGH/immich-gate/internal/platform/httpx"
	"github.com/ManuGH/immich-gate/internal/session"
)

func TestProbeVersion(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    dialect.Version
		wantErr error
	}{
		{"ok", http.StatusOK, `{"major":1,"minor":118,"patch":2}`, dialect.Version{Major: 1, Minor: 118, Patch: 2}, nil},
		{"zero patch", http.StatusOK, `{"major":1,"minor":133,"patch":0}`, dialect.Version{Major: 1, Minor: 133}, nil},
		{"missing patch", http.StatusOK, `{"major":1,"minor":133}`, dialect.Version{}, ErrBadResponse},
		{"not json", http.StatusOK, `<html>`, dialect.Version{}, ErrBadResponse},
		{"string fields", http.StatusOK, `{"major":"1","minor":"2","patch":"3"}`, dialect.Version{}, ErrBadResponse},
		{"not found", http.StatusNotFound, `{}`, dialect.Version{}, ErrNotFound},
		{"unauthorized", http.StatusUnauthorized, ``, dialect.Version{}, ErrUnauthorized},
		{"server error", http.StatusInternalServerError, ``, dialect.Version{}, ErrUpstreamError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath, gotKey string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath, gotKey = r.URL.Path, r.Header.Get(HeaderAPIKey)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewProber(srv.Client())
			conn := session.Connection{BaseURL: srv.URL, APIKey: "k", Timeout: time.Second}
			v, err := p.ProbeVersion(context.Background(), conn, "/server/version")

			assert.Equal(t, "/api/server/version", gotPath)
			assert.Equal(t, "k", gotKey)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestProbeVersion_TransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	p := NewProber(nil)
	_, err := p.ProbeVersion(context.Background(), session.Connection{BaseURL: base}, "/server/version")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer slow.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = p.ProbeVersion(ctx, session.Connection{BaseURL: slow.URL}, "/server/version")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestProbeVersion_FollowsConnectionTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(300 * time.Millisecond):
		}
		_, _ = w.Write([]byte(`{"major":1,"minor":133,"patch":0}`))
	}))
	defer srv.Close()

	p := NewProberWithClients(httpx.NewClientSet(httpx.NewClient))

	short := session.Connection{BaseURL: srv.URL, Timeout: 100 * time.Millisecond}
	_, err := p.ProbeVersion(context.Background(), short, "/server/version")
	assert.ErrorIs(t, err, ErrTimeout)

	raised := short
	raised.Timeout = 2 * time.Second
	v, err := p.ProbeVersion(context.Background(), raised, "/server/version")
	require.NoError(t, err)
	assert.Equal(t, dialect.Version{Major: 1, Minor: 133}, v)
}
