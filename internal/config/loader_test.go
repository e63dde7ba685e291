// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLoader returns a loader reading env from the given map only.
func testLoader(path string, env map[string]string) *Loader {
	l := NewLoader(path, "v-test")
	l.lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	l.environ = func() []string {
		out := make([]string, 0, len(env))
		for k, v := range env {
			out = append(out, k+"="+v)
		}
		return out
	}
	return l
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

var minimalEnv = map[string]string{
	EnvURL:    "http://immich.local:2283/",
	EnvAPIKey: "secret",
}

func TestLoad_EnvOnlyDefaults(t *testing.T) {
	cfg, err := testLoader("", minimalEnv).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://immich.local:2283", cfg.Immich.URL, "trailing slash trimmed")
	assert.Equal(t, "secret", cfg.Immich.APIKey)
	assert.Equal(t, 6*time.Second, cfg.Immich.Timeout)
	assert.True(t, cfg.Proxy.PreferSmaller)
	assert.Equal(t, 10*time.Minute, cfg.Proxy.CacheMaxAge)
	assert.Nil(t, cfg.Proxy.DisallowedVideoTypes)
	assert.Equal(t, ":8089", cfg.Server.ListenAddr)
	assert.Equal(t, "v-test", cfg.Version)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, "config.yaml", `
immich:
  url: http://from-file:2283
  apiKey: file-key
  timeout: 3s
proxy:
  preferSmaller: false
  disallowedVideoTypes: [video/x-matroska]
query:
  rps: 2.5
`)
	env := map[string]string{
		EnvAPIKey:  "env-key",
		EnvTimeout: "9s",
	}
	cfg, err := testLoader(path, env).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://from-file:2283", cfg.Immich.URL, "file beats default")
	assert.Equal(t, "env-key", cfg.Immich.APIKey, "env beats file")
	assert.Equal(t, 9*time.Second, cfg.Immich.Timeout)
	assert.False(t, cfg.Proxy.PreferSmaller)
	assert.Equal(t, []string{"video/x-matroska"}, cfg.Proxy.DisallowedVideoTypes)
	assert.Equal(t, 2.5, cfg.Query.RPS)
	assert.Equal(t, 20, cfg.Query.Burst, "untouched keys keep defaults")
}

func TestLoad_EmptyDisallowListAllowsEverything(t *testing.T) {
	path := writeFile(t, "config.yaml", "proxy:\n  disallowedVideoTypes: []\n")
	cfg, err := testLoader(path, minimalEnv).Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Proxy.DisallowedVideoTypes)
	assert.Empty(t, cfg.Proxy.DisallowedVideoTypes)
}

func TestLoad_StrictFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		unknown bool
	}{
		{"unknown key", "c.yaml", "immich:\n  baseUrl: http://x\n", true},
		{"multiple documents", "c.yaml", "log:\n  level: info\n---\nlog:\n  level: debug\n", false},
		{"wrong extension", "c.json", "{}", false},
		{"bad duration", "c.yaml", "immich:\n  timeout: soon\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testLoader(writeFile(t, tt.file, tt.content), minimalEnv).Load()
			require.Error(t, err)
			assert.Equal(t, tt.unknown, errors.Is(err, ErrUnknownConfigField))
		})
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := testLoader(writeFile(t, "c.yml", ""), minimalEnv).Load()
	require.NoError(t, err)
	assert.Equal(t, ":8089", cfg.Server.ListenAddr)
}

func TestLoad_MalformedEnvIsAnError(t *testing.T) {
	env := map[string]string{
		EnvURL:           "http://immich",
		EnvAPIKey:        "k",
		EnvPreferSmaller: "sometimes",
		EnvQueryBurst:    "many",
	}
	_, err := testLoader("", env).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvPreferSmaller)
	assert.Contains(t, err.Error(), EnvQueryBurst)
}

func TestLoad_EnvLists(t *testing.T) {
	env := map[string]string{
		EnvURL:                  "http://immich",
		EnvAPIKey:               "k",
		EnvAllowedOrigins:       " https://a.example , ,https://b.example",
		EnvDisallowedVideoTypes: "Video/WebM",
	}
	cfg, err := testLoader("", env).Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, []string{"video/webm"}, cfg.Proxy.DisallowedVideoTypes)
}

func TestEnvReader_Unknown(t *testing.T) {
	r := newEnvReader(func(string) (string, bool) { return "", false })
	r.apply(&AppConfig{})
	got := r.unknown([]string{EnvURL + "=x", EnvPrefix + "TYPO=1", "PATH=/bin"})
	assert.Equal(t, []string{EnvPrefix + "TYPO"}, got)
}

func TestSessionParams(t *testing.T) {
	cfg, err := testLoader("", minimalEnv).Load()
	require.NoError(t, err)
	p := cfg.SessionParams()
	assert.Equal(t, "http://immich.local:2283", p.BaseURL)
	assert.Equal(t, "secret", p.APIKey)
	assert.Equal(t, 6*time.Second, p.Timeout)
	assert.True(t, p.PreferSmaller)
}
