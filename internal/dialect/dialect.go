// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package dialect models the URL shapes of the Immich REST API across
// releases. A Dialect maps logical operations to path templates; the
// Registry orders dialects newest first and answers "next older" lookups
// by index.
package dialect

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	// ErrUnknownDialect is returned by Registry.Lookup for an unregistered ID.
	ErrUnknownDialect = errors.New("dialect: unknown dialect")
	// ErrUnsupported marks an operation the dialect explicitly does not offer.
	ErrUnsupported = errors.New("dialect: operation not supported")
	// ErrNotModeled marks an operation the dialect does not describe at all.
	ErrNotModeled = errors.New("dialect: operation not modeled")
	// ErrInvalidRegistry is returned when a dialect table violates its invariants.
	ErrInvalidRegistry = errors.New("dialect: invalid registry")
)

// Operation is a logical upstream operation name.
type Operation string

const (
	OpVersion      Operation = "version"
	OpAlbums       Operation = "albums"
	OpAlbumInfo    Operation = "album_info"
	OpMemoryLane   Operation = "memory_lane"
	OpAssetInfo    Operation = "asset_info"
	OpThumbnail    Operation = "thumbnail"
	OpPreview      Operation = "preview"
	OpOriginal     Operation = "original"
	OpVideoStream  Operation = "video_stream"
	OpSearch       Operation = "search"
	OpRandomSearch Operation = "random_search"
)

// IDPlaceholder is substituted with the (path-escaped) asset or album ID.
const IDPlaceholder = "{id}"

// Template is an upstream path template, or the Unsupported marker.
// The zero value is not a valid template.
type Template struct {
	path        string
	unsupported bool
}

// Unsupported marks an operation a dialect deliberately does not offer.
var Unsupported = Template{unsupported: true}

// Path builds a template from a path relative to the API root.
func Path(p string) Template {
	return Template{path: p}
}

// IsUnsupported reports whether t is the Unsupported marker.
func (t Template) IsUnsupported() bool { return t.unsupported }

// Raw returns the unexpanded path.
func (t Template) Raw() string { return t.path }

// Expand substitutes id into the template.
func (t Template) Expand(id string) string {
	return strings.Replace(t.path, IDPlaceholder, url.PathEscape(id), 1)
}

func (t Template) String() string {
	if t.unsupported {
		return "unsupported"
	}
	return t.path
}

// MemoryQuery selects how a dialect expects memory-lane parameters.
type MemoryQuery int

const (
	// MemoryQueryDayMonth sends ?day=D&month=M (pre-1.133 memory lane).
	MemoryQueryDayMonth MemoryQuery = iota
	// MemoryQueryOnThisDay sends ?for=<date>&type=on_this_day (/memories).
	MemoryQueryOnThisDay
)

// Dialect is one named version of the upstream URL shape and capability set.
type Dialect struct {
	ID          string
	MinVersion  Version
	MemoryQuery MemoryQuery
	templates   map[Operation]Template
}

// New builds a dialect. The template map is copied.
func New(id string, minVersion Version, memory MemoryQuery, templates map[Operation]Template) Dialect {
	cp := make(map[Operation]Template, len(templates))
	for op, t := range templates {
		cp[op] = t
	}
	return Dialect{ID: id, MinVersion: minVersion, MemoryQuery: memory, templates: cp}
}

// Template returns the template for op, ErrUnsupported for the explicit
// marker and ErrNotModeled when op is absent.
func (d Dialect) Template(op Operation) (Template, error) {
	t, ok := d.templates[op]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s has no %q", ErrNotModeled, d.ID, op)
	}
	if t.unsupported {
		return Template{}, fmt.Errorf("%w: %s does not offer %q", ErrUnsupported, d.ID, op)
	}
	return t, nil
}

// Supports reports whether op maps to a usable template.
func (d Dialect) Supports(op Operation) bool {
	t, ok := d.templates[op]
	return ok && !t.unsupported
}

// Operations lists every modeled operation (supported or not), sorted.
func (d Dialect) Operations() []Operation {
	ops := make([]Operation, 0, len(d.templates))
	for op := range d.templates {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

func (d Dialect) String() string { return d.ID }
