// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"net/http"

	"github.com/ManuGH/immich-gate/internal/config"
)

// Deps contains dependencies required by the daemon Manager.
type Deps struct {
	// Server is the listener section of the config.
	Server config.ServerConfig

	// Handler serves every inbound route.
	Handler http.Handler

	// AfterListen runs once the listener is bound. An error aborts Start
	// and shuts the server down again.
	AfterListen func(ctx context.Context) error
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Handler == nil {
		return ErrMissingHandler
	}
	if d.Server.ListenAddr == "" {
		return ErrMissingListenAddr
	}
	return nil
}
