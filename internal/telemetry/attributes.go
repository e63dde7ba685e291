// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by spans across packages.
const (
	ProxyClassKey     = "proxy.class"
	ProxyOperationKey = "proxy.operation"
	ProxyOutcomeKey   = "proxy.outcome"

	DialectKey       = "immich.dialect"
	ServerVersionKey = "immich.server_version"
	QueryKey         = "immich.operation"

	HTTPStatusCodeKey = "http.response.status_code"
)

// ProxyAttemptAttributes describes one candidate attempt.
func ProxyAttemptAttributes(class, operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ProxyClassKey, class),
		attribute.String(ProxyOperationKey, operation),
	}
}

// ProbeAttributes describes a version probe; serverVersion may be empty.
func ProbeAttributes(dialect, serverVersion string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(DialectKey, dialect)}
	if serverVersion != "" {
		attrs = append(attrs, attribute.String(ServerVersionKey, serverVersion))
	}
	return attrs
}
