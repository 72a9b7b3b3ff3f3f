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

// Package stepdriver interprets a workflow template's step graph inside
// the executor: JSON parsing, variable substitution, AI-provider dispatch,
// and interactive chat round-trips through an I/O channel.
package stepdriver

import (
	"encoding/json"
	"os"

	"github.com/ckoons/argo/pkg/argoerrors"
)

// Step types recognized by the driver.
const (
	StepPrompt  = "prompt"
	StepCIChat  = "ci_chat"
	StepBranch  = "branch"
	StepSet     = "set"
	StepExit    = "exit"
)

// Safety bounds for a loaded template, per spec.md §4.3.
const (
	MaxTemplateBytes = 1 << 20 // 1 MiB
	MaxSteps         = 1000
	MaxNestingDepth   = 10
)

// Step is one node in the template's state graph. Only the fields
// relevant to its Type are populated by the template author; the driver
// ignores the rest.
type Step struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	NextStepID string `json:"next_step_id,omitempty"`

	// prompt / ci_chat
	Prompt  string `json:"prompt,omitempty"`
	Persona string `json:"persona,omitempty"`
	SaveTo  string `json:"save_to,omitempty"`
	Greeting string `json:"greeting,omitempty"`

	// branch
	Condition  string `json:"condition,omitempty"`
	IfTrueID   string `json:"if_true_id,omitempty"`
	IfFalseID  string `json:"if_false_id,omitempty"`

	// set
	Var   string `json:"var,omitempty"`
	Value string `json:"value,omitempty"`

	// exit
	ExitCode int `json:"exit_code,omitempty"`
}

// Template is the in-memory form of a workflow's JSON step graph.
type Template struct {
	Name       string           `json:"name"`
	EntryStep  string           `json:"entry_step"`
	Steps      map[string]*Step `json:"steps"`
}

// LoadTemplate reads and validates path, enforcing spec.md §4.3's bounds:
// at most 1 MiB on disk, at most 1000 steps, at most 10 levels of
// branch-chain nesting.
func LoadTemplate(path string) (*Template, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &argoerrors.ResourceError{Kind: "file", Message: "stat template", Cause: err}
	}
	if info.Size() > MaxTemplateBytes {
		return nil, &argoerrors.ValidationError{Field: "template", Message: "exceeds 1 MiB size bound"}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &argoerrors.ResourceError{Kind: "file", Message: "read template", Cause: err}
	}

	var tpl Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, &argoerrors.ProtocolError{Location: "template", Message: "malformed JSON", Cause: err}
	}

	if err := validateTemplate(&tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

func validateTemplate(tpl *Template) error {
	if tpl.EntryStep == "" {
		return &argoerrors.ValidationError{Field: "entry_step", Message: "must not be empty"}
	}
	if len(tpl.Steps) > MaxSteps {
		return &argoerrors.ValidationError{Field: "steps", Message: "exceeds 1000-step bound"}
	}
	if _, ok := tpl.Steps[tpl.EntryStep]; !ok {
		return &argoerrors.ValidationError{Field: "entry_step", Message: "references an undefined step"}
	}

	for id, s := range tpl.Steps {
		if s.ID == "" {
			s.ID = id
		}
		switch s.Type {
		case StepPrompt, StepCIChat, StepBranch, StepSet, StepExit:
		default:
			return &argoerrors.ValidationError{Field: "steps." + id + ".type", Message: "unrecognized step type: " + s.Type}
		}
	}

	return checkNesting(tpl)
}

// checkNesting walks branch chains (branch -> branch -> ...) from the
// entry step and rejects a chain deeper than MaxNestingDepth, guarding
// against a pathological or cyclic branch graph.
func checkNesting(tpl *Template) error {
	visited := make(map[string]int)
	var walk func(id string, depth int) error
	walk = func(id string, depth int) error {
		if depth > MaxNestingDepth {
			return &argoerrors.ValidationError{Field: "steps", Message: "branch nesting exceeds 10 levels"}
		}
		if prev, ok := visited[id]; ok && prev <= depth {
			return nil
		}
		visited[id] = depth

		s, ok := tpl.Steps[id]
		if !ok {
			return nil
		}
		if s.Type != StepBranch {
			return nil
		}
		if s.IfTrueID != "" {
			if err := walk(s.IfTrueID, depth+1); err != nil {
				return err
			}
		}
		if s.IfFalseID != "" {
			if err := walk(s.IfFalseID, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(tpl.EntryStep, 0)
}
