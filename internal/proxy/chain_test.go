// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package proxy

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/immich-gate/internal/dialect"
	"github.com/ManuGH/immich-gate/internal/session"
)

func testSession(t *testing.T, dialectID, baseURL string, preferSmaller bool) *session.Session {
	t.Helper()
	d, err := dialect.Default().Lookup(dialectID)
	require.NoError(t, err)
	return &session.Session{
		Dialect:       d,
		Connection:    session.Connection{BaseURL: baseURL, APIKey: "test-key"},
		PreferSmaller: preferSmaller,
	}
}

func chainOps(chain []Candidate) []dialect.Operation {
	ops := make([]dialect.Operation, len(chain))
	for i, c := range chain {
		ops[i] = c.Operation
	}
	return ops
}

func TestBuildChain_Order(t *testing.T) {
	const (
		thumb   = dialect.OpThumbnail
		preview = dialect.OpPreview
		orig    = dialect.OpOriginal
		video   = dialect.OpVideoStream
	)
	tests := []struct {
		name          string
		dialect       string
		class         Class
		preferSmaller bool
		want          []dialect.Operation
	}{
		{"image smaller", dialect.V1_133, ClassImage, true, []dialect.Operation{thumb, preview, orig}},
		{"image larger", dialect.V1_133, ClassImage, false, []dialect.Operation{preview, thumb, orig}},
		{"image smaller without preview tier", dialect.V1_94, ClassImage, true, []dialect.Operation{thumb, orig}},
		{"image larger without preview tier", dialect.V1_94, ClassImage, false, []dialect.Operation{thumb, orig}},
		{"video", dialect.V1_118, ClassVideo, true, []dialect.Operation{video, orig}},
		{"video legacy", dialect.V1_94, ClassVideo, false, []dialect.Operation{video, orig}},
		{"preview skips thumbnail", dialect.V1_106, ClassPreview, true, []dialect.Operation{preview, orig}},
		{"preview legacy", dialect.V1_94, ClassPreview, true, []dialect.Operation{orig}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSession(t, tt.dialect, "http://immich", tt.preferSmaller)
			chain, err := BuildChain(s, tt.class, "abc")
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, chainOps(chain)); diff != "" {
				t.Fatalf("chain order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildChain_URLs(t *testing.T) {
	s := testSession(t, dialect.V1_118, "http://immich:2283/", true)
	chain, err := BuildChain(s, ClassVideo, "a/b c")
	require.NoError(t, err)

	want := []Candidate{
		{Operation: dialect.OpVideoStream, URL: "http://immich:2283/api/assets/a%2Fb%20c/video/playback"},
		{Operation: dialect.OpOriginal, URL: "http://immich:2283/api/assets/a%2Fb%20c/original"},
	}
	if diff := cmp.Diff(want, chain); diff != "" {
		t.Fatalf("chain mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildChain_UnknownClass(t *testing.T) {
	s := testSession(t, dialect.V1_133, "http://immich", true)
	_, err := BuildChain(s, Class("audio"), "abc")
	require.ErrorIs(t, err, ErrEmptyChain)
}
