// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package immich

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/immich-gate/internal/dialect"
	"github.com/ManuGH/immich-gate/internal/session"
)

const testAPIKey = "test-key"

type staticSource struct {
	s *session.Session
}

func (f staticSource) Current() (*session.Session, bool) { return f.s, f.s != nil }

func pinnedSession(t *testing.T, dialectID, baseURL string) *session.Session {
	t.Helper()
	d, err := dialect.Default().Lookup(dialectID)
	require.NoError(t, err)
	return &session.Session{
		Dialect:    d,
		Connection: session.Connection{BaseURL: baseURL, APIKey: testAPIKey, Timeout: 2 * time.Second},
	}
}

// newImmich starts a fake upstream and a QueryClient pinned to it.
func newImmich(t *testing.T, dialectID string, h http.Handler) (*QueryClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderAPIKey) != testAPIKey {
			http.Error(w, "missing api key", http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	q := NewQueryClient(staticSource{pinnedSession(t, dialectID, srv.URL)}, Options{
		RPS:      -1,
		Location: time.UTC,
	})
	return q, srv
}
