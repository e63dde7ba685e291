// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package dialect

import (
	"errors"
	"fmt"
	"strings"
)

// Registry is an immutable, ordered table of dialects, newest first.
// The predecessor of the dialect at index i is the dialect at index i+1;
// the last entry has none, so downgrade walks always terminate.
type Registry struct {
	dialects []Dialect
	index    map[string]int
}

// requiredOps must be present (and supported) in every dialect.
var requiredOps = []Operation{OpVersion, OpThumbnail, OpOriginal}

// NewRegistry validates and freezes a dialect table ordered newest first.
func NewRegistry(dialects ...Dialect) (*Registry, error) {
	if len(dialects) == 0 {
		return nil, fmt.Errorf("%w: no dialects", ErrInvalidRegistry)
	}

	var errs []error
	r := &Registry{
		dialects: make([]Dialect, 0, len(dialects)),
		index:    make(map[string]int, len(dialects)),
	}
	for i, d := range dialects {
		if d.ID == "" {
			errs = append(errs, fmt.Errorf("dialect #%d has no id", i))
		}
		if _, dup := r.index[d.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate dialect id %q", d.ID))
		}
		if i > 0 && d.MinVersion.AtLeast(dialects[i-1].MinVersion) {
			errs = append(errs, fmt.Errorf("dialect %q must be older than %q", d.ID, dialects[i-1].ID))
		}
		for _, op := range requiredOps {
			if !d.Supports(op) {
				errs = append(errs, fmt.Errorf("dialect %q lacks required operation %q", d.ID, op))
			}
		}
		for op, t := range d.templates {
			if t.unsupported {
				continue
			}
			if t.path == "" || !strings.HasPrefix(t.path, "/") {
				errs = append(errs, fmt.Errorf("dialect %q: %q template must be an absolute path", d.ID, op))
			}
			if strings.Count(t.path, IDPlaceholder) > 1 {
				errs = append(errs, fmt.Errorf("dialect %q: %q template has more than one %s", d.ID, op, IDPlaceholder))
			}
		}
		r.index[d.ID] = i
		r.dialects = append(r.dialects, New(d.ID, d.MinVersion, d.MemoryQuery, d.templates))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRegistry, errors.Join(errs...))
	}
	return r, nil
}

// MustRegistry is NewRegistry for static tables.
func MustRegistry(dialects ...Dialect) *Registry {
	r, err := NewRegistry(dialects...)
	if err != nil {
		panic(err)
	}
	return r
}

// Len returns the number of dialects.
func (r *Registry) Len() int { return len(r.dialects) }

// At returns the dialect at index i (0 = newest).
func (r *Registry) At(i int) Dialect { return r.dialects[i] }

// Newest returns the first dialect in the downgrade chain.
func (r *Registry) Newest() Dialect { return r.dialects[0] }

// Oldest returns the terminal dialect of the downgrade chain.
func (r *Registry) Oldest() Dialect { return r.dialects[len(r.dialects)-1] }

// Older returns the index of the predecessor of the dialect at i.
func (r *Registry) Older(i int) (int, bool) {
	if i < 0 || i+1 >= len(r.dialects) {
		return 0, false
	}
	return i + 1, true
}

// Index returns the position of a dialect ID.
func (r *Registry) Index(id string) (int, bool) {
	i, ok := r.index[id]
	return i, ok
}

// Lookup returns the dialect with the given ID.
func (r *Registry) Lookup(id string) (Dialect, error) {
	i, ok := r.index[id]
	if !ok {
		return Dialect{}, fmt.Errorf("%w: %q", ErrUnknownDialect, id)
	}
	return r.dialects[i], nil
}

// Classify maps a server version to the index of the newest dialect whose
// MinVersion it satisfies. Versions below every MinVersion map to the oldest.
func (r *Registry) Classify(v Version) int {
	for i, d := range r.dialects {
		if v.AtLeast(d.MinVersion) {
			return i
		}
	}
	return len(r.dialects) - 1
}

// IDs lists dialect IDs newest first.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.dialects))
	for i, d := range r.dialects {
		ids[i] = d.ID
	}
	return ids
}
