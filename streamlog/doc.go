/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package streamlog talks to the append-only stream-log service that serves as
the real-time observability sink for agent sessions.

# Overview

The Client exposes the minimal capability surface the SDK needs: create a
named stream (idempotent), append a batch of events, and fetch records after
a position cursor. The Reader builds a resumable tail on top of Fetch: it
tracks the last acknowledged position, skips records it cannot decode, and
never moves its cursor backwards.

Stream names are derived deterministically from the session identifier via
StreamName, so a reader that only knows a session ID can locate its stream.

# Usage

	client := streamlog.NewClient(endpoint, apiKey)
	defer client.Close()

	reader := streamlog.NewReader(client, streamlog.StreamName(prefix, sessionID))
	for {
		evs, err := reader.Next(ctx)
		if err != nil {
			return err
		}
		for _, ev := range evs {
			handle(ev)
		}
		if len(evs) == 0 {
			time.Sleep(500 * time.Millisecond)
		}
	}

Transport order and logical order are not the same thing: the session
dispatches appends asynchronously, so records may land out of sequence.
Consumers that need strict ordering must sort by Event.Sequence.
*/
package streamlog
