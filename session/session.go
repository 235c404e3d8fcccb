/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chainguard.dev/agentwatch/events"
	"chainguard.dev/agentwatch/metrics"
	"chainguard.dev/agentwatch/streamlog"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// meterName is the instrumentation scope for the SDK's own pipeline
// metrics.
const meterName = "chainguard.ai.agentwatch"

// Session is one instrumented agent run: the unit of event sequencing and
// sink provisioning. Create it with New and release it with Close; a
// session must not be used after Close.
type Session struct {
	ID        string
	AgentID   string
	AgentName string
	StartTime time.Time

	streamName string
	tracer     oteltrace.Tracer
	log        *streamlog.Client
	dispatch   *dispatcher

	// mu guards the sequence counter. This is the only serialization point
	// between concurrent emitters.
	mu  sync.Mutex
	seq uint64
}

// New creates a session, provisions its stream on the log sink when one is
// configured (idempotently), and emits the session.start event. Activities
// open spans only when a tracer was injected with WithTracer.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Session{
		ID:        uuid.New().String(),
		StartTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.streamName = streamlog.StreamName(cfg.StreamPrefix, s.ID)

	if cfg.LogEndpoint != "" && cfg.LogAPIKey != "" {
		s.log = streamlog.NewClient(cfg.LogEndpoint, cfg.LogAPIKey)
		if err := s.log.CreateStream(ctx, s.streamName); err != nil {
			s.log.Close()
			return nil, fmt.Errorf("provisioning stream: %w", err)
		}
		s.dispatch = newDispatcher(ctx, s.log, s.streamName,
			cfg.DispatchWorkers, cfg.DispatchQueueSize,
			metrics.NewPipeline(meterName))
	}

	s.emit(ctx, &events.Event{
		Kind:      events.KindSessionStart,
		Timestamp: s.StartTime,
		Data: map[string]any{
			"agent_id":   s.AgentID,
			"agent_name": s.AgentName,
		},
	})

	clog.FromContext(ctx).Info("Session started", "session_id", s.ID, "stream", s.streamName)
	return s, nil
}

// StreamName returns the name of the session's stream on the log sink. The
// derivation (prefix + session ID) is deterministic so a reader that only
// knows the session ID can locate the stream.
func (s *Session) StreamName() string {
	return s.streamName
}

// emit assigns the event its sequence number and session identity, then
// hands it to the async dispatcher. Sequence allocation and identity
// assignment happen in one critical section so no two emits can interleave;
// everything after that is non-blocking and best-effort.
func (s *Session) emit(ctx context.Context, ev *events.Event) {
	s.mu.Lock()
	s.seq++
	ev.Sequence = s.seq
	ev.SessionID = s.ID
	s.mu.Unlock()

	if s.dispatch != nil {
		s.dispatch.enqueue(ctx, ev)
	}
}

// EmitCustom emits a custom event carrying the given name and data. The
// name is stored under the "name" key of the event data.
func (s *Session) EmitCustom(ctx context.Context, name string, data map[string]any) {
	d := make(map[string]any, len(data)+1)
	for k, v := range data {
		d[k] = v
	}
	d["name"] = name
	s.emit(ctx, &events.Event{
		Kind:      events.KindCustom,
		Timestamp: time.Now(),
		Data:      d,
	})
}

// Close emits the session.end event with the elapsed duration, waits for
// queued appends to flush, and releases the log client. Close is not
// idempotent: a second call double-emits session.end, which is a
// caller-contract violation rather than a protected condition.
func (s *Session) Close(ctx context.Context) error {
	s.emit(ctx, &events.Event{
		Kind:      events.KindSessionEnd,
		Timestamp: time.Now(),
		Data: map[string]any{
			"duration_ms": time.Since(s.StartTime).Milliseconds(),
		},
	})

	if s.dispatch != nil {
		s.dispatch.drain()
	}
	if s.log != nil {
		s.log.Close()
	}

	clog.FromContext(ctx).Info("Session closed", "session_id", s.ID,
		"duration_ms", time.Since(s.StartTime).Milliseconds())
	return nil
}
