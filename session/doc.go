/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package session instruments one agent run and dual-writes its activity to
two sinks: an append-only stream log for real-time tailing, and an
OpenTelemetry tracer for offline analysis.

# Overview

A Session owns event sequencing for the run. Every event it emits receives
a sequence number from a single mutex-guarded counter, so the set of
sequence numbers across all concurrent emitters is always {1..N} with no
duplicates and no gaps. Dispatch to the stream log is asynchronous and
best-effort: emits hand the event to a bounded worker pool and return
immediately, so observability never adds latency to (or fails) the agent's
primary path. Appends may therefore land out of sequence order; consumers
re-sort by Event.Sequence.

Activities nest strictly: a Session contains Invocations, and an Invocation
contains ToolCalls and ModelCalls. Each activity emits a paired start/end
event through the session and, when a tracer is configured, opens a span at
start and closes it at End. Child events always carry their parent's ID so
the activity tree can be rebuilt from the flat event stream.

# Usage

	tp, err := tracing.Setup(ctx, cfg)
	...
	sess, err := session.New(ctx, cfg,
		session.WithAgentName("WeatherBot"),
		session.WithTracer(tp.Tracer("weather-agent")),
	)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	inv, ctx := sess.StartInvocation(ctx, userInput)
	tc, tcCtx := inv.StartToolCall(ctx, "get_weather", map[string]any{"location": "SF"})
	tc.End(tcCtx, result, nil)
	inv.End(ctx, response)

Sessions must not be used after Close, and no activity may be ended twice;
both are caller-contract violations with undefined behavior.
*/
package session
