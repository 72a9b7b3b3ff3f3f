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

// Package argoerrors defines the error taxonomy shared by the daemon and
// the executor: every layer returns one of these kinds, and only the HTTP
// edge translates a kind into a status code.
package argoerrors

import (
	"fmt"
	"time"
)

// ValidationError represents malformed, missing, or oversized input.
// Surfaced as HTTP 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid input: %s", e.Message)
}

// NotFoundError represents a missing workflow, step, or resource.
// Surfaced as HTTP 404.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// DuplicateError represents a collision on a unique key (workflow id).
// Surfaced as HTTP 409.
type DuplicateError struct {
	Resource string
	ID       string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Resource, e.ID)
}

// ResourceError represents memory, file, IO, network, fork, or socket
// failures. Retried at the transport layer where idempotent, else
// surfaced as HTTP 5xx.
type ResourceError struct {
	Kind    string // "memory", "file", "io", "network", "fork", "socket"
	Message string
	Cause   error
}

func (e *ResourceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s resource error: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s resource error: %s", e.Kind, e.Message)
}

func (e *ResourceError) Unwrap() error { return e.Cause }

// ProtocolError represents malformed JSON or a missing required field.
// Surfaced as HTTP 400 at the API edge, or dropped-with-log on registry load.
type ProtocolError struct {
	Location string
	Message  string
	Cause    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error at %s: %s", e.Location, e.Message)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// ProviderError represents a CI (AI provider) failure: unavailable,
// timed out, or returned a malformed response. Surfaced to the user with
// the provider identity attached.
type ProviderError struct {
	Provider string
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// WorkflowError represents a step failure, a timeout (exit code 124), a
// resource limit (runaway log growth), or an invalid state transition.
type WorkflowError struct {
	WorkflowID string
	StepID     string
	Code       string // e.g. "provider", "io", "branch"
	Message    string
	Cause      error
}

func (e *WorkflowError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("workflow %s step %s: %s: %s", e.WorkflowID, e.StepID, e.Code, e.Message)
	}
	return fmt.Sprintf("workflow %s: %s: %s", e.WorkflowID, e.Code, e.Message)
}

func (e *WorkflowError) Unwrap() error { return e.Cause }

// ProcessError represents a critical system-process failure: mutex
// corruption or a waitpid failure. No code in the daemon constructs or
// checks for this kind.
type ProcessError struct {
	Operation string
	Cause     error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("process error during %s: %v", e.Operation, e.Cause)
}

func (e *ProcessError) Unwrap() error { return e.Cause }

// TimeoutError represents an operation that exceeded its deadline.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.Duration)
}
