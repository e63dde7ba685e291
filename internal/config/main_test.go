// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"strings"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// Tests build their own environment through Loader.lookupEnv.
	for _, e := range os.Environ() {
		if key, _, _ := strings.Cut(e, "="); strings.HasPrefix(key, EnvPrefix) {
			_ = os.Unsetenv(key)
		}
	}
	goleak.VerifyTestMain(m)
}
