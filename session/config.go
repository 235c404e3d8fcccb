/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"errors"
)

// ErrNoSink is returned when a configuration names neither the stream-log
// service nor an OTLP endpoint: such a session would sequence events only
// to drop them all.
var ErrNoSink = errors.New("at least one of LogEndpoint or OTLPEndpoint must be configured")

// Config carries the sink endpoints and sizing for a session. Fields are
// tagged for envconfig so example binaries can populate it from the
// environment.
type Config struct {
	// Stream-log sink.
	LogEndpoint  string `env:"AGENTWATCH_LOG_ENDPOINT"`
	LogAPIKey    string `env:"AGENTWATCH_LOG_API_KEY"`
	StreamPrefix string `env:"AGENTWATCH_STREAM_PREFIX,default=agent-session-"`

	// Tracing sink.
	OTLPEndpoint string `env:"AGENTWATCH_OTLP_ENDPOINT"`
	OTLPInsecure bool   `env:"AGENTWATCH_OTLP_INSECURE,default=false"`

	ServiceName    string `env:"AGENTWATCH_SERVICE_NAME,default=agent"`
	ServiceVersion string `env:"AGENTWATCH_SERVICE_VERSION,default=1.0.0"`

	// Sizing for the async append worker pool. The queue bounds how many
	// events can be in flight; when it is full new events are dropped
	// rather than blocking the emitter.
	DispatchWorkers   int `env:"AGENTWATCH_DISPATCH_WORKERS,default=4"`
	DispatchQueueSize int `env:"AGENTWATCH_DISPATCH_QUEUE_SIZE,default=256"`
}

// Validate checks that at least one sink is configured and fills in
// defaults for zero-valued fields, for callers that construct a Config
// directly rather than through envconfig.
func (c *Config) Validate() error {
	if c.LogEndpoint == "" && c.OTLPEndpoint == "" {
		return ErrNoSink
	}
	if c.StreamPrefix == "" {
		c.StreamPrefix = "agent-session-"
	}
	if c.ServiceName == "" {
		c.ServiceName = "agent"
	}
	if c.DispatchWorkers <= 0 {
		c.DispatchWorkers = 4
	}
	if c.DispatchQueueSize <= 0 {
		c.DispatchQueueSize = 256
	}
	return nil
}
