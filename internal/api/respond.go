// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"net/http"

	gatelog "github.com/ManuGH/immich-gate/internal/log"
)

// writeJSON writes v with the given status code. Session state is never cached.
func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := gatelog.WithComponentFromContext(r.Context(), "api")
		logger.Debug().Err(err).
			Str(gatelog.FieldEvent, "api.encode_error").
			Msg("failed to write response body")
	}
}
