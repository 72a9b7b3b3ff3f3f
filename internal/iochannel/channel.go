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

// Package iochannel mediates an executor's input/output through the
// daemon's HTTP API rather than a terminal: a detached child has no
// controlling tty, so a step that needs an interactive back-and-forth
// (ci_chat) writes output via POST and polls for input via GET instead of
// touching stdin/stdout directly.
package iochannel

import (
	"context"
	"time"
)

// Channel is the interface the step driver uses for all I/O; swapping the
// implementation (HTTP, null, in-memory for tests) never changes step
// semantics.
type Channel interface {
	// Write buffers s for the next Flush. Never blocks on the network.
	Write(s string) error

	// Flush sends any buffered output to its destination. Returns an error
	// if the send fails; the HTTP implementation keeps the buffered output
	// for the next Flush.
	Flush(ctx context.Context) error

	// ReadLine blocks until a line of input is available, ctx is canceled,
	// or the channel's poll budget elapses, whichever comes first.
	ReadLine(ctx context.Context) (string, error)

	// Read returns all input received since the last Read/ReadLine call,
	// without blocking.
	Read() (string, error)

	// HasData reports whether unread input is currently buffered.
	HasData() bool

	// Close releases resources held by the channel. Idempotent.
	Close() error
}

// DefaultPollBudget and ChatPollBudget bound how long ReadLine waits for a
// line of input before giving up. The executor sets the longer
// ChatPollBudget on its channel, because ci_chat waits on a person typing.
const (
	DefaultPollBudget = 30 * time.Second
	ChatPollBudget    = 10 * time.Minute
)

// ErrClosed is returned by any operation on a closed channel.
var ErrClosed = channelError("channel closed")

type channelError string

func (e channelError) Error() string { return string(e) }
