/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package events defines the wire-level record emitted for every observable
step of an agent run.

# Overview

An Event is an immutable record with a fixed Kind enumeration, a timestamp,
the owning session's identifier, a per-session monotonic sequence number,
and an open string-keyed data payload. Events are encoded as JSON for
transport; the shape is shared with the other agentwatch SDKs, so the field
names here are a cross-implementation contract:

	{
	  "kind": "tool.start",
	  "timestamp": "2026-08-23T17:04:05.123456789Z",
	  "session_id": "5f3a...",
	  "sequence": 3,
	  "data": {"tool_name": "get_weather"}
	}

Decode tolerates unknown extra fields so that newer producers remain
readable by older consumers. Unknown kinds, unparseable timestamps, and
structurally broken records fail with a *DecodeError.
*/
package events
