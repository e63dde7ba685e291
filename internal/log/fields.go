// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldAssetID       = "asset_id"
	FieldAlbumID       = "album_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Negotiation fields
	FieldDialect       = "dialect"
	FieldProbedDialect = "probed_dialect"
	FieldServerVersion = "server_version"

	// Proxy fields
	FieldResourceClass = "class"
	FieldCandidateURL  = "candidate_url"
	FieldOperation     = "operation"
	FieldAttempt       = "attempt"
	FieldOutcome       = "outcome"
	FieldStatus        = "status"
	FieldBytes         = "bytes"
	FieldContentType   = "content_type"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
)
