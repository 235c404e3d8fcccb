/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"chainguard.dev/agentwatch/events"
	"chainguard.dev/agentwatch/streamlog"
)

// fakeSink is an in-memory stream-log service for session tests. It serves
// create (conflict on repeat), append, and fetch, and keeps every record
// body it accepted.
type fakeSink struct {
	mu      sync.Mutex
	streams map[string][]string
	creates map[string]int
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		streams: map[string][]string{},
		creates: map[string]int{},
	}
}

func (f *fakeSink) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/streams":
			var req struct {
				Stream string `json:"stream"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			f.creates[req.Stream]++
			if _, ok := f.streams[req.Stream]; ok {
				http.Error(w, "stream exists", http.StatusConflict)
				return
			}
			f.streams[req.Stream] = nil
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/records"):
			name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/streams/"), "/records")
			var req struct {
				Records []struct {
					Body string `json:"body"`
				} `json:"records"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			for _, rec := range req.Records {
				f.streams[name] = append(f.streams[name], rec.Body)
			}
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/records"):
			name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/streams/"), "/records")
			after, _ := strconv.ParseUint(r.URL.Query().Get("after"), 10, 64)
			type rec struct {
				Sequence uint64 `json:"sequence"`
				Body     string `json:"body"`
			}
			out := struct {
				Records []rec `json:"records"`
			}{Records: []rec{}}
			for i, body := range f.streams[name] {
				if pos := uint64(i + 1); pos > after {
					out.Records = append(out.Records, rec{Sequence: pos, Body: body})
				}
			}
			_ = json.NewEncoder(w).Encode(out)

		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	})
}

// received decodes every record body the sink accepted for the stream,
// sorted by the event's own sequence number.
func (f *fakeSink) received(t *testing.T, stream string) []*events.Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	evs := make([]*events.Event, 0, len(f.streams[stream]))
	for i, body := range f.streams[stream] {
		ev, err := events.Decode([]byte(body))
		if err != nil {
			t.Fatalf("Decode(record %d) = %v, wanted no error", i, err)
		}
		evs = append(evs, ev)
	}
	sort.Slice(evs, func(i, j int) bool { return evs[i].Sequence < evs[j].Sequence })
	return evs
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *fakeSink) {
	t.Helper()
	f := newFakeSink()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	cfg := &Config{
		LogEndpoint: srv.URL,
		LogAPIKey:   "test-key",
	}
	s, err := New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New() = %v, wanted no error", err)
	}
	return s, f
}

func TestNewRequiresSink(t *testing.T) {
	_, err := New(context.Background(), &Config{})
	if err == nil {
		t.Fatal("New() = nil error, wanted ErrNoSink")
	}
	if !errors.Is(err, ErrNoSink) {
		t.Errorf("New() error = %v, wanted ErrNoSink", err)
	}
}

func TestStreamNameDerivation(t *testing.T) {
	s, _ := newTestSession(t)
	defer s.Close(context.Background())

	if want := streamlog.StreamName("agent-session-", s.ID); s.StreamName() != want {
		t.Errorf("StreamName() = %q, wanted %q", s.StreamName(), want)
	}
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	s, f := newTestSession(t, WithAgentID("agent-001"), WithAgentName("EchoBot"))

	inv, ctx := s.StartInvocation(ctx, "ping")
	tc, tcCtx := inv.StartToolCall(ctx, "echo", map[string]any{"x": 1})
	tc.End(tcCtx, map[string]any{"x": 1}, nil)
	inv.End(ctx, "pong")
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() = %v, wanted no error", err)
	}

	got := f.received(t, s.StreamName())
	wantKinds := []events.Kind{
		events.KindSessionStart,
		events.KindAgentStart,
		events.KindToolStart,
		events.KindToolEnd,
		events.KindAgentEnd,
		events.KindSessionEnd,
	}
	if len(got) != len(wantKinds) {
		t.Fatalf("received %d events, wanted %d", len(got), len(wantKinds))
	}
	for i, ev := range got {
		if ev.Kind != wantKinds[i] {
			t.Errorf("event %d kind = %q, wanted %q", i, ev.Kind, wantKinds[i])
		}
		if ev.Sequence != uint64(i+1) {
			t.Errorf("event %d sequence = %d, wanted %d", i, ev.Sequence, i+1)
		}
		if ev.SessionID != s.ID {
			t.Errorf("event %d session_id = %q, wanted %q", i, ev.SessionID, s.ID)
		}
	}

	if status := got[3].Data["status"]; status != "success" {
		t.Errorf("tool.end status = %v, wanted %q", status, "success")
	}
	if _, ok := got[5].Data["duration_ms"]; !ok {
		t.Error("session.end missing duration_ms")
	}
}

func TestEndToEndTail(t *testing.T) {
	ctx := context.Background()
	f := newFakeSink()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	cfg := &Config{LogEndpoint: srv.URL, LogAPIKey: "test-key"}
	s, err := New(ctx, cfg, WithAgentName("TailBot"))
	if err != nil {
		t.Fatalf("New() = %v, wanted no error", err)
	}

	inv, ctx := s.StartInvocation(ctx, "hello")
	mc, mcCtx := inv.StartModelCall(ctx, "anthropic", "claude-sonnet-4-5")
	mc.End(mcCtx, "hi there", 150, 50)
	inv.End(ctx, "hi there")
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() = %v, wanted no error", err)
	}

	// Tail the same stream through a fresh client, the way a separate
	// observer process would.
	client := streamlog.NewClient(srv.URL, "test-key")
	defer client.Close()
	reader := streamlog.NewReader(client, s.StreamName())

	var got []*events.Event
	for {
		batch, err := reader.Next(ctx)
		if err != nil {
			t.Fatalf("Next() = %v, wanted no error", err)
		}
		if len(batch) == 0 {
			break
		}
		got = append(got, batch...)
	}

	if len(got) != 6 {
		t.Fatalf("tailed %d events, wanted 6", len(got))
	}
	sort.Slice(got, func(i, j int) bool { return got[i].Sequence < got[j].Sequence })
	for i, ev := range got {
		if ev.Sequence != uint64(i+1) {
			t.Errorf("event %d sequence = %d, wanted %d", i, ev.Sequence, i+1)
		}
	}
}

func TestConcurrentEmitSequences(t *testing.T) {
	ctx := context.Background()
	s, f := newTestSession(t)

	inv, ctx := s.StartInvocation(ctx, "fan out")

	const callers = 25
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tc, tcCtx := inv.StartToolCall(ctx, fmt.Sprintf("tool-%d", i), map[string]any{"i": i})
			tc.End(tcCtx, "ok", nil)
		}(i)
	}
	wg.Wait()

	inv.End(ctx, "done")
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() = %v, wanted no error", err)
	}

	got := f.received(t, s.StreamName())
	// session.start + agent.start + 2*callers + agent.end + session.end
	want := 2*callers + 4
	if len(got) != want {
		t.Fatalf("received %d events, wanted %d", len(got), want)
	}

	seen := map[uint64]bool{}
	for _, ev := range got {
		if seen[ev.Sequence] {
			t.Errorf("duplicate sequence %d", ev.Sequence)
		}
		seen[ev.Sequence] = true
		if ev.SessionID != s.ID {
			t.Errorf("session_id = %q, wanted %q", ev.SessionID, s.ID)
		}
	}
	for seq := uint64(1); seq <= uint64(want); seq++ {
		if !seen[seq] {
			t.Errorf("missing sequence %d", seq)
		}
	}
}

func TestStreamCreateIdempotent(t *testing.T) {
	// Two sessions against the same sink each create their own stream; a
	// repeated create for the same name must not fail session construction.
	f := newFakeSink()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	cfg := &Config{LogEndpoint: srv.URL, LogAPIKey: "test-key"}
	s, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() = %v, wanted no error", err)
	}
	defer s.Close(context.Background())

	client := streamlog.NewClient(srv.URL, "test-key")
	defer client.Close()
	if err := client.CreateStream(context.Background(), s.StreamName()); err != nil {
		t.Errorf("CreateStream() repeat = %v, wanted no error", err)
	}
	f.mu.Lock()
	got := f.creates[s.StreamName()]
	f.mu.Unlock()
	if got != 2 {
		t.Errorf("sink saw %d creates, wanted 2", got)
	}
}

func TestEmitCustom(t *testing.T) {
	ctx := context.Background()
	s, f := newTestSession(t)

	s.EmitCustom(ctx, "checkpoint", map[string]any{"step": "retrieval"})
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() = %v, wanted no error", err)
	}

	got := f.received(t, s.StreamName())
	if len(got) != 3 {
		t.Fatalf("received %d events, wanted 3", len(got))
	}
	custom := got[1]
	if custom.Kind != events.KindCustom {
		t.Fatalf("event kind = %q, wanted %q", custom.Kind, events.KindCustom)
	}
	if custom.Data["name"] != "checkpoint" {
		t.Errorf("custom event name = %v, wanted %q", custom.Data["name"], "checkpoint")
	}
	if custom.Data["step"] != "retrieval" {
		t.Errorf("custom event step = %v, wanted %q", custom.Data["step"], "retrieval")
	}
}

func TestSessionStartCarriesAgentLabels(t *testing.T) {
	ctx := context.Background()
	s, f := newTestSession(t, WithAgentID("agent-7"), WithAgentName("Labeler"))
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() = %v, wanted no error", err)
	}

	got := f.received(t, s.StreamName())
	start := got[0]
	if start.Data["agent_id"] != "agent-7" {
		t.Errorf("agent_id = %v, wanted %q", start.Data["agent_id"], "agent-7")
	}
	if start.Data["agent_name"] != "Labeler" {
		t.Errorf("agent_name = %v, wanted %q", start.Data["agent_name"], "Labeler")
	}
}
