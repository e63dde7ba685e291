// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	gatelog "github.com/ManuGH/immich-gate/internal/log"
	gatenet "github.com/ManuGH/immich-gate/internal/platform/net"
	"github.com/ManuGH/immich-gate/internal/session"
)

// SessionResponse describes the pinned upstream session.
type SessionResponse struct {
	State         string     `json:"state"`
	Dialect       string     `json:"dialect,omitempty"`
	ServerVersion string     `json:"serverVersion,omitempty"`
	BaseURL       string     `json:"baseUrl,omitempty"`
	NegotiatedAt  *time.Time `json:"negotiatedAt,omitempty"`
	Probes        int        `json:"probes,omitempty"`
}

// ProbeFailure is one failed version probe in a refresh error.
type ProbeFailure struct {
	Dialect string `json:"dialect"`
	URL     string `json:"url"`
	Error   string `json:"error"`
}

type errorResponse struct {
	Error     string         `json:"error"`
	Message   string         `json:"message,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Attempts  []ProbeFailure `json:"attempts,omitempty"`
}

type sessionHandlers struct {
	negotiator Negotiator
	params     func() session.Params
}

func newSessionResponse(state session.State, s *session.Session) SessionResponse {
	resp := SessionResponse{State: state.String()}
	if s == nil {
		return resp
	}
	at := s.NegotiatedAt.UTC()
	resp.Dialect = s.Dialect.ID
	resp.ServerVersion = s.ServerVersion.String()
	resp.BaseURL = gatenet.SanitizeURL(s.Connection.BaseURL)
	resp.NegotiatedAt = &at
	resp.Probes = s.Probes
	return resp
}

// handleGet answers GET /api/session; 503 until a dialect is pinned.
func (h *sessionHandlers) handleGet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.negotiator.Current()
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, newSessionResponse(h.negotiator.State(), s))
}

// handleRefresh answers POST /api/session/refresh with a forced re-init.
// A failed refresh keeps the previous session pinned.
func (h *sessionHandlers) handleRefresh(w http.ResponseWriter, r *http.Request) {
	logger := gatelog.WithComponentFromContext(r.Context(), "api")

	s, err := h.negotiator.Negotiate(r.Context(), h.params(), true)
	if err != nil {
		logger.Warn().Err(err).
			Str(gatelog.FieldEvent, "session.refresh_failed").
			Msg("forced re-negotiation failed")
		writeNegotiationError(w, r, err)
		return
	}

	logger.Info().
		Str(gatelog.FieldEvent, "session.refreshed").
		Str(gatelog.FieldDialect, s.Dialect.ID).
		Msg("session re-negotiated on request")
	writeJSON(w, r, http.StatusOK, newSessionResponse(h.negotiator.State(), s))
}

func writeNegotiationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the body.
		w.WriteHeader(499)
		return
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, r, http.StatusGatewayTimeout, errorResponse{
			Error:     "negotiation_timeout",
			Message:   err.Error(),
			RequestID: gatelog.RequestIDFromContext(r.Context()),
		})
		return
	}

	resp := errorResponse{
		Error:     "negotiation_failed",
		Message:   session.ErrNegotiationFailed.Error(),
		RequestID: gatelog.RequestIDFromContext(r.Context()),
	}
	var nerr *session.NegotiationError
	if errors.As(err, &nerr) {
		for _, a := range nerr.Attempts {
			resp.Attempts = append(resp.Attempts, ProbeFailure{
				Dialect: a.Dialect,
				URL:     gatenet.SanitizeURL(a.URL),
				Error:   a.Err.Error(),
			})
		}
	}
	writeJSON(w, r, http.StatusBadGateway, resp)
}
