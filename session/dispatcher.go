/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"context"
	"sync"

	"chainguard.dev/agentwatch/events"
	"chainguard.dev/agentwatch/metrics"
	"chainguard.dev/agentwatch/streamlog"
	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// dispatcher is the bounded worker pool behind emit. Each queued event is
// appended to the stream as its own batch; append failures are logged and
// counted, never surfaced to the emitter. The queue bound caps how many
// events can be in flight, trading durability under sustained overload for
// bounded memory.
type dispatcher struct {
	client  *streamlog.Client
	stream  string
	queue   chan *events.Event
	eg      *errgroup.Group
	once    sync.Once
	metrics *metrics.Pipeline
}

func newDispatcher(ctx context.Context, client *streamlog.Client, stream string, workers, queueSize int, m *metrics.Pipeline) *dispatcher {
	d := &dispatcher{
		client:  client,
		stream:  stream,
		queue:   make(chan *events.Event, queueSize),
		metrics: m,
	}

	// Appends must outlive the emitting caller's context: cancellation of
	// the agent's request must not abort observability writes in flight.
	workCtx := context.WithoutCancel(ctx)
	d.eg = &errgroup.Group{}
	for i := 0; i < workers; i++ {
		d.eg.Go(func() error {
			d.run(workCtx)
			return nil
		})
	}
	return d
}

// enqueue hands the event to the pool without blocking. When the queue is
// full the event is dropped and counted.
func (d *dispatcher) enqueue(ctx context.Context, ev *events.Event) {
	select {
	case d.queue <- ev:
	default:
		d.metrics.RecordDropped(ctx, ev.Kind)
		clog.FromContext(ctx).Warn("Dispatch queue full, dropping event",
			"stream", d.stream, "kind", ev.Kind, "sequence", ev.Sequence)
	}
}

func (d *dispatcher) run(ctx context.Context) {
	log := clog.FromContext(ctx)
	for ev := range d.queue {
		if err := d.client.Append(ctx, d.stream, []*events.Event{ev}); err != nil {
			d.metrics.RecordAppendFailure(ctx, ev.Kind)
			log.Warn("Dropping event after failed append",
				"stream", d.stream, "kind", ev.Kind, "sequence", ev.Sequence, "error", err)
			continue
		}
		d.metrics.RecordDispatched(ctx, ev.Kind)
	}
}

// drain closes the queue and waits until the workers have flushed it. No
// enqueue may follow drain.
func (d *dispatcher) drain() {
	d.once.Do(func() { close(d.queue) })
	_ = d.eg.Wait()
}
