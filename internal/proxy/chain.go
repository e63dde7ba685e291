// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package proxy

import (
	"errors"
	"fmt"

	"github.com/ManuGH/immich-gate/internal/dialect"
	"github.com/ManuGH/immich-gate/internal/session"
)

// ErrEmptyChain is returned when a dialect offers no template for a class.
var ErrEmptyChain = errors.New("proxy: empty candidate chain")

// Candidate is one upstream URL to try.
type Candidate struct {
	Operation dialect.Operation
	URL       string
}

// chainOperations returns the operation order for a class.
func chainOperations(class Class, preferSmaller bool) []dialect.Operation {
	switch class {
	case ClassImage:
		if preferSmaller {
			return []dialect.Operation{dialect.OpThumbnail, dialect.OpPreview, dialect.OpOriginal}
		}
		return []dialect.Operation{dialect.OpPreview, dialect.OpThumbnail, dialect.OpOriginal}
	case ClassVideo:
		return []dialect.Operation{dialect.OpVideoStream, dialect.OpOriginal}
	case ClassPreview:
		return []dialect.Operation{dialect.OpPreview, dialect.OpOriginal}
	default:
		return nil
	}
}

// BuildChain expands the ordered candidates for one request. Operations
// the pinned dialect does not offer are skipped.
func BuildChain(s *session.Session, class Class, assetID string) ([]Candidate, error) {
	ops := chainOperations(class, s.PreferSmaller)
	chain := make([]Candidate, 0, len(ops))
	for _, op := range ops {
		u, err := s.URL(op, assetID)
		if err != nil {
			if errors.Is(err, dialect.ErrUnsupported) || errors.Is(err, dialect.ErrNotModeled) {
				continue
			}
			return nil, err
		}
		chain = append(chain, Candidate{Operation: op, URL: u})
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: %s on %s", ErrEmptyChain, class, s.Dialect.ID)
	}
	return chain, nil
}
