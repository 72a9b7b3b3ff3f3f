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

// Package ciquery defines the opaque AI-provider callback the step driver
// calls for prompt and ci_chat steps. A concrete provider (an LLM SDK, a
// remote CI service, a fixture for tests) is a collaborator outside this
// module's scope; this package only defines the seam and a couple of
// trivial stand-ins.
package ciquery

import "context"

// Provider answers one query: a persona (empty for "default") and a
// prompt, returning the response text.
type Provider interface {
	Query(ctx context.Context, persona, prompt string) (string, error)
}

// EchoProvider returns the prompt verbatim, prefixed with the persona if
// set. Useful for exercising the step driver without a real provider.
type EchoProvider struct{}

func (EchoProvider) Query(_ context.Context, persona, prompt string) (string, error) {
	if persona == "" {
		return prompt, nil
	}
	return "[" + persona + "] " + prompt, nil
}

// FixedScriptProvider replays a fixed sequence of responses in order,
// regardless of the prompt, then repeats its last response. Used by
// tests that need deterministic ci_chat turns.
type FixedScriptProvider struct {
	Responses []string
	next      int
}

func (p *FixedScriptProvider) Query(_ context.Context, _, _ string) (string, error) {
	if len(p.Responses) == 0 {
		return "", nil
	}
	idx := p.next
	if idx >= len(p.Responses) {
		idx = len(p.Responses) - 1
	} else {
		p.next++
	}
	return p.Responses[idx], nil
}
