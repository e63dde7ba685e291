// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package proxy

import (
	"net/http"
	"strings"
)

// hopByHopHeaders apply to a single connection and are never copied.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// copyResponseHeaders copies end-to-end headers from src into dst.
func copyResponseHeaders(dst, src http.Header) {
	skip := make(map[string]struct{}, len(hopByHopHeaders))
	for _, h := range hopByHopHeaders {
		skip[h] = struct{}{}
	}
	for _, v := range src.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				skip[http.CanonicalHeaderKey(name)] = struct{}{}
			}
		}
	}

	for k, vv := range src {
		if _, hop := skip[k]; hop {
			continue
		}
		dst[k] = append([]string(nil), vv...)
	}
}

// forwardHeaders selects the inbound headers sent upstream for class.
func forwardHeaders(r *http.Request, class Class) http.Header {
	h := make(http.Header, 4)

	accept := r.Header.Get("Accept")
	if accept == "" {
		if class == ClassVideo {
			accept = "*/*"
		} else {
			accept = "application/octet-stream"
		}
	}
	h.Set("Accept", accept)

	for _, name := range []string{"If-None-Match", "If-Modified-Since"} {
		if v := r.Header.Get(name); v != "" {
			h.Set(name, v)
		}
	}
	if class == ClassVideo {
		if v := r.Header.Get("Range"); v != "" {
			h.Set("Range", v)
		}
		if v := r.Header.Get("If-Range"); v != "" {
			h.Set("If-Range", v)
		}
	}
	return h
}
