/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package streamlog

import (
	"context"

	"chainguard.dev/agentwatch/events"
	"github.com/chainguard-dev/clog"
)

// Reader tails a stream from the last acknowledged position. It is a
// cursor-based poller: each Next call fetches the records after the cursor,
// decodes what it can, and advances the cursor. Readers are not safe for
// concurrent use.
type Reader struct {
	client       *Client
	stream       string
	lastPosition uint64
}

// NewReader creates a Reader positioned before the first record of the
// stream.
func NewReader(client *Client, stream string) *Reader {
	return &Reader{
		client: client,
		stream: stream,
	}
}

// Position returns the position of the last record the Reader has decoded.
func (r *Reader) Position() uint64 {
	return r.lastPosition
}

// Next fetches and decodes the records after the current cursor. Records
// that fail to decode are skipped rather than aborting the batch, so a
// corrupt or forward-incompatible entry cannot wedge the tail. The cursor
// only ever advances, even if the transport hands records back out of
// position order.
//
// Events are returned in transport order, which under concurrent emitters
// is not necessarily sequence order; callers that need strict ordering must
// sort by Event.Sequence. An empty batch means nothing new is available and
// the caller should back off briefly before polling again.
func (r *Reader) Next(ctx context.Context) ([]*events.Event, error) {
	records, err := r.client.Fetch(ctx, r.stream, r.lastPosition)
	if err != nil {
		return nil, err
	}

	log := clog.FromContext(ctx)
	evs := make([]*events.Event, 0, len(records))
	for _, rec := range records {
		ev, err := events.Decode(rec.Body)
		if err != nil {
			log.Debug("Skipping undecodable record", "stream", r.stream, "position", rec.Position, "error", err)
			continue
		}
		evs = append(evs, ev)
		if rec.Position > r.lastPosition {
			r.lastPosition = rec.Position
		}
	}
	return evs, nil
}
