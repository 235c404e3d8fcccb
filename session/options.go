/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Option customizes a Session at construction.
type Option func(*Session)

// WithAgentID labels the session with a caller-supplied agent identifier.
func WithAgentID(id string) Option {
	return func(s *Session) { s.AgentID = id }
}

// WithAgentName labels the session with a caller-supplied agent name.
func WithAgentName(name string) Option {
	return func(s *Session) { s.AgentName = name }
}

// WithTracer injects the tracer capability used to open spans around
// activities. The caller owns the provider's lifecycle; the session never
// installs or consults process-global tracer state. Without this option
// the session emits events only.
func WithTracer(tracer oteltrace.Tracer) Option {
	return func(s *Session) { s.tracer = tracer }
}
