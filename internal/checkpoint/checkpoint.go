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

// Package checkpoint persists the fields of a paused workflow needed to
// resume it, per spec.md §6's `~/.argo/workflows/checkpoints/{id}.json`.
// Restore is scoped to a workflow that was cleanly paused: a workflow
// whose executor died mid-step is finalized FAILED on reap instead (see
// SPEC_FULL.md's Open Question (b) resolution) — the step driver gives no
// guarantee that a step's side effects (an already-sent CI query, output
// already flushed) are idempotent, so silently replaying it is unsafe.
package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/ckoons/argo/pkg/argoerrors"
)

// Checkpoint is the on-disk shape spec.md §6 names.
type Checkpoint struct {
	WorkflowID   string `json:"workflow_id"`
	TemplatePath string `json:"template_path"`
	Branch       string `json:"branch"`
	CurrentStep  int    `json:"current_step"`
	TotalSteps   int    `json:"total_steps"`
	IsPaused     bool   `json:"is_paused"`
}

// Manager reads and writes checkpoint files under one directory.
type Manager struct {
	mu  sync.Mutex
	dir string
}

// NewManager creates a manager rooted at dir, creating it if absent.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, &argoerrors.ResourceError{Kind: "file", Message: "create checkpoint directory", Cause: err}
	}
	return &Manager{dir: dir}, nil
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.dir, id+".json")
}

// Save writes cp to disk, overwriting any existing checkpoint for the
// same workflow id. Only meaningful for a paused workflow; callers should
// not save one for a workflow that is not currently paused.
func (m *Manager) Save(cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return &argoerrors.ProtocolError{Location: "checkpoint", Message: "marshal", Cause: err}
	}
	if err := os.WriteFile(m.path(cp.WorkflowID), data, 0o600); err != nil {
		return &argoerrors.ResourceError{Kind: "file", Message: "write checkpoint", Cause: err}
	}
	return nil
}

// Load reads the checkpoint for id. Returns nil, nil if none exists.
// Load refuses to return a checkpoint whose IsPaused is false — restoring
// a workflow that was not cleanly paused is out of scope (see package
// doc).
func (m *Manager) Load(id string) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &argoerrors.ResourceError{Kind: "file", Message: "read checkpoint", Cause: err}
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, &argoerrors.ProtocolError{Location: "checkpoint", Message: "unmarshal", Cause: err}
	}
	if !cp.IsPaused {
		return nil, &argoerrors.WorkflowError{
			WorkflowID: id,
			Code:       "invalid_state",
			Message:    "checkpoint does not represent a paused workflow; resume is not supported for mid-step termination",
		}
	}
	return &cp, nil
}

// Delete removes id's checkpoint, if any — called once a paused workflow
// successfully resumes, so a stale checkpoint is never restored twice.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.path(id)); err != nil && !os.IsNotExist(err) {
		return &argoerrors.ResourceError{Kind: "file", Message: "delete checkpoint", Cause: err}
	}
	return nil
}
