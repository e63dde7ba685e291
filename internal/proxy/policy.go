// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package proxy

import (
	"mime"
	"strings"
)

// Class is a proxied resource family with its own candidate ordering.
type Class string

const (
	ClassImage   Class = "image"
	ClassVideo   Class = "video"
	ClassPreview Class = "preview"
)

// DefaultDisallowedVideoTypes are containers the display hardware cannot
// play without transcoding.
var DefaultDisallowedVideoTypes = []string{
	"video/x-matroska",
	"video/x-msvideo",
	"video/avi",
	"video/x-ms-wmv",
	"video/x-flv",
}

// MediaPolicy rejects disallowed video content types.
type MediaPolicy struct {
	disallowed map[string]struct{}
}

// NewMediaPolicy builds a policy from media types (parameters ignored).
// A nil slice selects DefaultDisallowedVideoTypes.
func NewMediaPolicy(types []string) MediaPolicy {
	if types == nil {
		types = DefaultDisallowedVideoTypes
	}
	p := MediaPolicy{disallowed: make(map[string]struct{}, len(types))}
	for _, t := range types {
		if mt := mediaType(t); mt != "" {
			p.disallowed[mt] = struct{}{}
		}
	}
	return p
}

// Allows reports whether a response with this Content-Type may be streamed.
// A missing Content-Type is allowed.
func (p MediaPolicy) Allows(contentType string) bool {
	mt := mediaType(contentType)
	if mt == "" {
		return true
	}
	_, blocked := p.disallowed[mt]
	return !blocked
}

func mediaType(v string) string {
	if mt, _, err := mime.ParseMediaType(v); err == nil {
		return mt
	}
	// tolerate malformed parameters
	base, _, _ := strings.Cut(v, ";")
	return strings.ToLower(strings.TrimSpace(base))
}
