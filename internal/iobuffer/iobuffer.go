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

// Package iobuffer holds the daemon's per-workflow output buffer and input
// queue: the mediation point between a detached executor (producer of
// output, consumer of input) and Arc (consumer of output, producer of
// input). One Store per daemon process; one entry per running workflow,
// created lazily on first touch and kept until Drop removes it.
package iobuffer

import (
	"sync"

	"github.com/ckoons/argo/pkg/argoerrors"
)

// maxQueuedInputs bounds the per-workflow input queue, per spec.md §6's
// "bounded 10 entries".
const maxQueuedInputs = 10

// workflow holds one workflow's accumulated output and pending input.
// Output only ever grows (attach cursors read a suffix of it); input is a
// plain FIFO slice, since 10 entries never justifies a ring buffer.
type workflow struct {
	mu     sync.Mutex
	output []byte
	input  [][]byte
}

// Store is the daemon-wide table of per-workflow buffers. The zero value
// is ready to use.
type Store struct {
	mu        sync.Mutex
	workflows map[string]*workflow
}

// New returns an empty Store.
func New() *Store {
	return &Store{workflows: make(map[string]*workflow)}
}

func (s *Store) entry(id string) *workflow {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		w = &workflow{}
		s.workflows[id] = w
	}
	return w
}

// AppendOutput appends text to workflow id's output buffer, in the order
// it is called — the executor's program-order output-ordering invariant
// (spec.md §8 property 4) depends on the caller serializing its own
// writes, which the HTTP handler does per request.
func (s *Store) AppendOutput(id, text string) {
	w := s.entry(id)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.output = append(w.output, text...)
}

// ReadOutput returns the bytes appended at or after offset since, plus the
// buffer's new length (the next since value an attach poll should pass).
// An offset beyond the current length returns an empty slice, not an
// error — an executor that truncates nothing and a slow attach poll that
// asks for data not yet written behave identically.
func (s *Store) ReadOutput(id string, since int) (string, int) {
	w := s.entry(id)
	w.mu.Lock()
	defer w.mu.Unlock()
	if since < 0 || since >= len(w.output) {
		return "", len(w.output)
	}
	return string(w.output[since:]), len(w.output)
}

// PushInput enqueues one line of Arc-provided input. Returns a
// DuplicateError when the queue is already at maxQueuedInputs — spec.md
// names no explicit backpressure signal, and 409 ("already full") is the
// nearest taxonomy member that fits a bounded queue rejecting a write.
func (s *Store) PushInput(id, line string) error {
	w := s.entry(id)
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.input) >= maxQueuedInputs {
		return &argoerrors.DuplicateError{Resource: "input queue", ID: id}
	}
	w.input = append(w.input, []byte(line))
	return nil
}

// PopInput removes and returns the oldest queued input line for id, FIFO
// (spec.md §8 property 5). ok is false when the queue is empty.
func (s *Store) PopInput(id string) (line string, ok bool) {
	w := s.entry(id)
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.input) == 0 {
		return "", false
	}
	line = string(w.input[0])
	w.input = w.input[1:]
	return line, true
}

// Drop discards id's buffer and queue. Removing a workflow from the
// registry does not call it.
func (s *Store) Drop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workflows, id)
}
