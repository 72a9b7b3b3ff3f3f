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
	"context"
	"strings"
	"sync"
)

// MemoryChannel is an in-process Channel with no network hop, for
// exercising the step driver in tests without an HTTP server.
type MemoryChannel struct {
	mu       sync.Mutex
	out      strings.Builder
	in       strings.Builder
	closed   bool
}

// NewMemoryChannel returns a channel preloaded with the given input.
func NewMemoryChannel(input string) *MemoryChannel {
	c := &MemoryChannel{}
	c.in.WriteString(input)
	return c
}

func (c *MemoryChannel) Write(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.out.WriteString(s)
	return nil
}

// Flush is a no-op: MemoryChannel has nothing to send over the network.
func (c *MemoryChannel) Flush(context.Context) error { return nil }

func (c *MemoryChannel) ReadLine(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buffered := c.in.String()
	idx := strings.IndexByte(buffered, '\n')
	if idx < 0 {
		if buffered == "" {
			return "", ErrClosed
		}
		c.in.Reset()
		return buffered, nil
	}
	line := buffered[:idx]
	c.in.Reset()
	c.in.WriteString(buffered[idx+1:])
	return line, nil
}

func (c *MemoryChannel) Read() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.in.String()
	c.in.Reset()
	return s, nil
}

func (c *MemoryChannel) HasData() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.in.Len() > 0
}

func (c *MemoryChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Output returns everything written to the channel so far, for test
// assertions.
func (c *MemoryChannel) Output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}

// Feed appends more input, simulating a later arrival.
func (c *MemoryChannel) Feed(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.in.WriteString(s)
}
