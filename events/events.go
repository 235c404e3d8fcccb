/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the type of activity an Event records.
type Kind string

const (
	KindSessionStart Kind = "session.start"
	KindSessionEnd   Kind = "session.end"
	KindAgentStart   Kind = "agent.start"
	KindAgentEnd     Kind = "agent.end"
	KindToolStart    Kind = "tool.start"
	KindToolEnd      Kind = "tool.end"
	KindModelStart   Kind = "model.start"
	KindModelEnd     Kind = "model.end"
	KindThinking     Kind = "agent.thinking"
	KindCustom       Kind = "custom"
)

// Valid reports whether k is one of the known event kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSessionStart, KindSessionEnd,
		KindAgentStart, KindAgentEnd,
		KindToolStart, KindToolEnd,
		KindModelStart, KindModelEnd,
		KindThinking, KindCustom:
		return true
	}
	return false
}

// Event is a single observability record. SessionID and Sequence are zero
// until the owning session assigns them; after that the event is treated as
// immutable.
type Event struct {
	Kind      Kind           `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Sequence  uint64         `json:"sequence"`
	Data      map[string]any `json:"data,omitempty"`
}

// EncodeError indicates an event could not be serialized, typically because
// a Data value is not JSON-representable.
type EncodeError struct {
	Kind Kind
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encoding %q event: %v", e.Kind, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError indicates a record could not be decoded into an Event.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decoding event: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decoding event: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// wireEvent is the transport shape. The timestamp travels as a string so
// that decode can distinguish "missing" from "unparseable".
type wireEvent struct {
	Kind      Kind           `json:"kind"`
	Timestamp string         `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Sequence  uint64         `json:"sequence"`
	Data      map[string]any `json:"data,omitempty"`
}

// Encode serializes the event as JSON.
func (e *Event) Encode() ([]byte, error) {
	w := wireEvent{
		Kind:      e.Kind,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		SessionID: e.SessionID,
		Sequence:  e.Sequence,
		Data:      e.Data,
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, &EncodeError{Kind: e.Kind, Err: err}
	}
	return b, nil
}

// Decode parses a JSON record into an Event. Unknown extra fields are
// ignored; an unknown kind, a missing or unparseable timestamp, or a
// structurally broken record yields a *DecodeError.
func Decode(b []byte) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, &DecodeError{Reason: "malformed record", Err: err}
	}
	if w.Kind == "" {
		return nil, &DecodeError{Reason: "missing kind"}
	}
	if !w.Kind.Valid() {
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown kind %q", w.Kind)}
	}
	if w.Timestamp == "" {
		return nil, &DecodeError{Reason: "missing timestamp"}
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return nil, &DecodeError{Reason: "unparseable timestamp", Err: err}
	}
	return &Event{
		Kind:      w.Kind,
		Timestamp: ts,
		SessionID: w.SessionID,
		Sequence:  w.Sequence,
		Data:      w.Data,
	}, nil
}
