// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package iochannel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ckoons/argo/pkg/httpclient"
)

// HTTPChannel POSTs buffered output to the daemon's
// POST /api/workflow/output?workflow_name={id} endpoint and polls input
// from GET /api/workflow/input?workflow_name={id}. One HTTPChannel exists
// per running executor; clients are not shared across channels.
type HTTPChannel struct {
	daemonURL  string
	workflowID string
	client     *http.Client
	poll       time.Duration

	mu     sync.Mutex
	buf    strings.Builder
	input  strings.Builder
	closed bool
}

// NewHTTPChannel builds a channel that talks to daemonURL on behalf of
// workflowID, with the default (non-chat) poll budget.
func NewHTTPChannel(daemonURL, workflowID string) (*HTTPChannel, error) {
	client, err := httpclient.New(httpclient.DefaultConfig())
	if err != nil {
		return nil, err
	}
	return &HTTPChannel{
		daemonURL:  daemonURL,
		workflowID: workflowID,
		client:     client,
		poll:       DefaultPollBudget,
	}, nil
}

// WithPollBudget overrides the default poll budget — the executor sets
// ChatPollBudget, since ci_chat is the only step that calls ReadLine.
func (c *HTTPChannel) WithPollBudget(d time.Duration) *HTTPChannel {
	c.poll = d
	return c
}

// Write buffers s for the next Flush.
func (c *HTTPChannel) Write(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.buf.WriteString(s)
	return nil
}

type outputPayload struct {
	Output string `json:"output"`
}

// Flush POSTs any buffered output and clears the buffer on success. A
// failed flush leaves the buffer intact so the next Flush retries the
// same bytes — output is never silently dropped.
func (c *HTTPChannel) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.buf.Len() == 0 {
		c.mu.Unlock()
		return nil
	}
	payload := outputPayload{Output: c.buf.String()}
	c.mu.Unlock()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("iochannel: marshal output: %w", err)
	}

	url := fmt.Sprintf("%s/api/workflow/output?workflow_name=%s", c.daemonURL, c.workflowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("iochannel: build flush request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("iochannel: flush output: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("iochannel: flush output: daemon returned %d", resp.StatusCode)
	}

	c.mu.Lock()
	c.buf.Reset()
	c.mu.Unlock()
	return nil
}

type inputPayload struct {
	Input string `json:"input"`
	EOF   bool   `json:"eof"`
}

// pollOnce issues one GET for input and appends the line the daemon
// returns, newline-terminated, to the local input buffer.
func (c *HTTPChannel) pollOnce(ctx context.Context) (bool, error) {
	url := fmt.Sprintf("%s/api/workflow/input?workflow_name=%s", c.daemonURL, c.workflowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("iochannel: build poll request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("iochannel: poll input: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return false, nil
	}
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("iochannel: poll input: daemon returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("iochannel: read poll body: %w", err)
	}
	var payload inputPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return false, fmt.Errorf("iochannel: decode poll body: %w", err)
	}

	// Each 200 response carries exactly one line (possibly empty), so the
	// line terminator is restored here for takeLine to split on.
	c.mu.Lock()
	c.input.WriteString(payload.Input)
	c.input.WriteByte('\n')
	c.mu.Unlock()
	return true, nil
}

// ReadLine blocks, polling at a fixed interval, until a newline-terminated
// line is available or the poll budget elapses.
func (c *HTTPChannel) ReadLine(ctx context.Context) (string, error) {
	deadline := time.Now().Add(c.poll)
	const interval = 500 * time.Millisecond

	for {
		if line, ok := c.takeLine(); ok {
			return line, nil
		}

		if time.Now().After(deadline) {
			return "", &pollTimeoutError{workflowID: c.workflowID, budget: c.poll}
		}

		if _, err := c.pollOnce(ctx); err != nil {
			return "", err
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (c *HTTPChannel) takeLine() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buffered := c.input.String()
	idx := strings.IndexByte(buffered, '\n')
	if idx < 0 {
		return "", false
	}
	line := buffered[:idx]
	c.input.Reset()
	c.input.WriteString(buffered[idx+1:])
	return line, true
}

// Read returns everything buffered since the last Read/ReadLine, without
// blocking on the network.
func (c *HTTPChannel) Read() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}
	s := c.input.String()
	c.input.Reset()
	return s, nil
}

// HasData reports whether unread input is buffered locally.
func (c *HTTPChannel) HasData() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input.Len() > 0
}

// Close flushes any remaining output and marks the channel unusable.
func (c *HTTPChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Flush(ctx)

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return err
}

type pollTimeoutError struct {
	workflowID string
	budget     time.Duration
}

func (e *pollTimeoutError) Error() string {
	return fmt.Sprintf("iochannel: no input for workflow %s within %s", e.workflowID, e.budget)
}
