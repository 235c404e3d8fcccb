/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package streamlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"chainguard.dev/agentwatch/events"
	"github.com/chainguard-dev/clog"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultAttempts = 3
	initialBackoff  = 100 * time.Millisecond
)

// StreamName derives the stream name for a session. The derivation is part
// of the cross-implementation contract: a reader given only a session ID
// must be able to locate its stream.
func StreamName(prefix, sessionID string) string {
	return prefix + sessionID
}

// CreateError indicates stream provisioning failed for a reason other than
// the stream already existing.
type CreateError struct {
	Stream     string
	StatusCode int
	Err        error
}

func (e *CreateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("creating stream %q: %v", e.Stream, e.Err)
	}
	return fmt.Sprintf("creating stream %q: status %d", e.Stream, e.StatusCode)
}

func (e *CreateError) Unwrap() error { return e.Err }

// AppendError indicates a batch append failed. The batch is treated as
// all-or-nothing at this boundary; partial acceptance by the backing
// service is not reconciled here.
type AppendError struct {
	Stream     string
	StatusCode int
	Err        error
}

func (e *AppendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("appending to stream %q: %v", e.Stream, e.Err)
	}
	return fmt.Sprintf("appending to stream %q: status %d", e.Stream, e.StatusCode)
}

func (e *AppendError) Unwrap() error { return e.Err }

// FetchError indicates a record fetch failed.
type FetchError struct {
	Stream     string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetching from stream %q: %v", e.Stream, e.Err)
	}
	return fmt.Sprintf("fetching from stream %q: status %d", e.Stream, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Record is one stored entry with the position the service assigned to it.
type Record struct {
	Position uint64
	Body     []byte
}

// Client is a bearer-authenticated HTTP client for the stream-log service.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	attempts   int
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithAttempts sets how many times transient failures (transport errors and
// 5xx responses) are attempted before giving up.
func WithAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// NewClient creates a client for the stream-log service at endpoint,
// authenticating with apiKey.
func NewClient(endpoint, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		attempts: defaultAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateStream provisions the named stream. Creation is idempotent: a
// conflict response from the service means the stream already exists and is
// treated as success.
func (c *Client) CreateStream(ctx context.Context, name string) error {
	body, err := json.Marshal(map[string]any{"stream": name})
	if err != nil {
		return &CreateError{Stream: name, Err: err}
	}

	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/streams", c.endpoint), body)
	if err != nil {
		return &CreateError{Stream: name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		clog.FromContext(ctx).Debug("Stream already exists", "stream", name)
		return nil
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return &CreateError{
			Stream:     name,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", respBody),
		}
	}

	clog.FromContext(ctx).Info("Created stream", "stream", name)
	return nil
}

// Append encodes the events and submits them as one batch write. Any
// non-success outcome fails the whole batch.
func (c *Client) Append(ctx context.Context, name string, evs []*events.Event) error {
	if len(evs) == 0 {
		return nil
	}

	records := make([]map[string]any, 0, len(evs))
	for _, ev := range evs {
		b, err := ev.Encode()
		if err != nil {
			return &AppendError{Stream: name, Err: err}
		}
		records = append(records, map[string]any{"body": string(b)})
	}

	body, err := json.Marshal(map[string]any{"records": records})
	if err != nil {
		return &AppendError{Stream: name, Err: err}
	}

	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/streams/%s/records", c.endpoint, url.PathEscape(name)), body)
	if err != nil {
		return &AppendError{Stream: name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return &AppendError{
			Stream:     name,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", respBody),
		}
	}
	return nil
}

// Fetch returns the records strictly after the given position, with the
// positions the service assigned to them. It does not block: when nothing
// new is available it returns an empty slice.
func (c *Client) Fetch(ctx context.Context, name string, after uint64) ([]Record, error) {
	u := fmt.Sprintf("%s/streams/%s/records?after=%d", c.endpoint, url.PathEscape(name), after)
	resp, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &FetchError{Stream: name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &FetchError{
			Stream:     name,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", respBody),
		}
	}

	var result struct {
		Records []struct {
			Sequence uint64 `json:"sequence"`
			Body     string `json:"body"`
		} `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &FetchError{Stream: name, Err: err}
	}

	records := make([]Record, 0, len(result.Records))
	for _, r := range result.Records {
		records = append(records, Record{
			Position: r.Sequence,
			Body:     []byte(r.Body),
		})
	}
	return records, nil
}

// Close releases transport resources. The client must not be used after
// Close.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// do performs one HTTP call, retrying transport errors and 5xx responses
// with exponential backoff. The request body is rebuilt per attempt.
func (c *Client) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	log := clog.FromContext(ctx)

	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			log.Warn("Stream-log request failed, retrying", "attempt", attempt+1, "error", err)
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			log.Warn("Stream-log server error, retrying", "attempt", attempt+1, "status", resp.StatusCode)
			continue
		}
		return resp, nil
	}

	return nil, fmt.Errorf("max attempts exceeded: %w", lastErr)
}
