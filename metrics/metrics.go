/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics provides OpenTelemetry counters for the SDK's own event
// pipeline: events handed to the async dispatcher, events dropped at a full
// queue, and appends the log sink rejected. Append failures are swallowed
// on the emit path, so these counters are the only place they surface.
package metrics

import (
	"context"
	"log/slog"

	"chainguard.dev/agentwatch/events"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Pipeline holds the dispatch-pipeline counters. Uses graceful degradation:
// if a counter fails to initialize, a no-op counter stands in instead of
// failing session construction.
type Pipeline struct {
	meter      metric.Meter
	dispatched metric.Int64Counter
	dropped    metric.Int64Counter
	failures   metric.Int64Counter
}

// NewPipeline creates the pipeline counters on the named meter.
func NewPipeline(meterName string) *Pipeline {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	dispatched, err := meter.Int64Counter("agentwatch.events.dispatched",
		metric.WithDescription("Events successfully appended to the stream log"),
		metric.WithUnit("{events}"))
	if err != nil {
		slog.Warn("Failed to create dispatched counter, metrics will be disabled", "error", err, "meter", meterName)
		dispatched = noop.Int64Counter{}
	}

	dropped, err := meter.Int64Counter("agentwatch.events.dropped",
		metric.WithDescription("Events dropped because the dispatch queue was full"),
		metric.WithUnit("{events}"))
	if err != nil {
		slog.Warn("Failed to create dropped counter, metrics will be disabled", "error", err, "meter", meterName)
		dropped = noop.Int64Counter{}
	}

	failures, err := meter.Int64Counter("agentwatch.append.failures",
		metric.WithDescription("Append attempts rejected by the stream-log service"),
		metric.WithUnit("{appends}"))
	if err != nil {
		slog.Warn("Failed to create append failure counter, metrics will be disabled", "error", err, "meter", meterName)
		failures = noop.Int64Counter{}
	}

	return &Pipeline{
		meter:      meter,
		dispatched: dispatched,
		dropped:    dropped,
		failures:   failures,
	}
}

// RecordDispatched counts one event appended to the stream log. The event
// kind is the only label: kinds are a small fixed enumeration, so the
// cardinality stays bounded (stream names would not).
func (p *Pipeline) RecordDispatched(ctx context.Context, kind events.Kind) {
	p.dispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}

// RecordDropped counts one event dropped at a full dispatch queue.
func (p *Pipeline) RecordDropped(ctx context.Context, kind events.Kind) {
	p.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}

// RecordAppendFailure counts one append the log sink rejected.
func (p *Pipeline) RecordAppendFailure(ctx context.Context, kind events.Kind) {
	p.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}
