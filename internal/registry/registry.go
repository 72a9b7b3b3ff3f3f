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

// Package registry is the daemon's authoritative in-memory catalog of
// workflow runs, with JSON persistence. A single mutex guards the whole
// structure; writes arrive only from the API handler, the executor
// monitor, and the SIGCHLD reaper (internal/execlifecycle), all serialized
// here.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ckoons/argo/pkg/argoerrors"
)

// State is a WorkflowEntry's lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateAbandoned State = "abandoned"
)

// IsTerminal reports whether s is one of the three terminal states.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateAbandoned
}

// Exit codes with reserved meaning, per spec.md §6.
const (
	ExitSuccess        = 0
	ExitGenericFailure = 1
	ExitSignalStopped  = 2
	ExitTimeout        = 124
	ExitNotFound       = 127
)

// WorkflowEntry is one registry record.
type WorkflowEntry struct {
	ID             string `json:"id"`
	TemplateName   string `json:"template"`
	InstanceName   string `json:"instance,omitempty"`
	ActiveBranch   string `json:"branch,omitempty"`
	Environment    string `json:"environment,omitempty"`
	State          State  `json:"state"`
	ExecutorPID    int    `json:"pid"`
	StartTime      int64  `json:"start_time"`
	EndTime        int64  `json:"end_time"`
	ExitCode       int    `json:"exit_code"`
	CurrentStep    int    `json:"current_step"`
	TotalSteps     int    `json:"total_steps"`
	LastStepName   string `json:"last_step_name,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds"`

	RetryCount     int   `json:"retry_count"`
	MaxRetries     int   `json:"max_retries"`
	LastRetryTime  int64 `json:"last_retry_time"`

	AbandonRequested bool `json:"abandon_requested"`
	TimeoutRequested bool `json:"timeout_requested"`

	CreatedAt    int64 `json:"created_at"`
	LastActive   int64 `json:"last_active"`
}

// Clone returns a deep copy safe for the caller to hold without the
// registry mutex, matching spec.md §4.2's "read-only view" / "snapshot
// copy" contract.
func (e *WorkflowEntry) Clone() *WorkflowEntry {
	clone := *e
	return &clone
}

const (
	maxIDLen          = 63
	maxTemplateLen    = 31
	defaultMaxRetries = 3
)

// Result codes returned by registry operations, matching spec.md §4.2.
type Result int

const (
	ResultSuccess Result = iota
	ResultDuplicate
	ResultNotFound
)

// persistedFile is the on-disk JSON shape, matching spec.md §6.
type persistedFile struct {
	Workflows   []*WorkflowEntry `json:"workflows"`
	LastUpdated int64            `json:"last_updated"`
}

// Registry is the in-memory workflow catalog.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*WorkflowEntry
	order   []string // insertion order, for List()

	path  string
	dirty bool
	// lastModified records when schedule_save last marked the registry
	// dirty, matching spec.md's "schedule_save sets dirty=true,
	// last_modified=now".
	lastModified time.Time

	now func() time.Time
}

// New creates an empty registry that persists to path. Pass an empty path
// to disable persistence (useful in tests).
func New(path string) *Registry {
	return &Registry{
		entries: make(map[string]*WorkflowEntry),
		path:    path,
		now:     time.Now,
	}
}

// NewID generates a workflow id of the form wf_<sec>_<usec>, falling back
// to a uuid-suffixed id on collision (see AddWithFallbackID).
func NewID(now time.Time) string {
	return fmt.Sprintf("wf_%d_%d", now.Unix(), now.UnixMicro()%1_000_000)
}

// Add registers a new PENDING entry. Returns ResultDuplicate without
// mutating anything if entry.ID already exists.
func (r *Registry) Add(entry *WorkflowEntry) (Result, error) {
	if len(entry.ID) == 0 || len(entry.ID) > maxIDLen {
		return ResultNotFound, &argoerrors.ValidationError{Field: "id", Message: "must be 1-63 characters"}
	}
	if len(entry.TemplateName) > maxTemplateLen {
		return ResultNotFound, &argoerrors.ValidationError{Field: "template", Message: "must be at most 31 characters"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.ID]; exists {
		return ResultDuplicate, &argoerrors.DuplicateError{Resource: "workflow", ID: entry.ID}
	}

	if entry.MaxRetries == 0 {
		entry.MaxRetries = defaultMaxRetries
	}
	now := r.now().Unix()
	entry.CreatedAt = now
	entry.LastActive = now

	r.entries[entry.ID] = entry
	r.order = append(r.order, entry.ID)
	r.scheduleSaveLocked()

	return ResultSuccess, nil
}

// AddWithFallbackID is Add, but on a colliding id it appends a short uuid
// suffix and retries once rather than rejecting the start outright
// (see SPEC_FULL.md's uuid wiring note).
func (r *Registry) AddWithFallbackID(entry *WorkflowEntry) (Result, error) {
	res, err := r.Add(entry)
	if res != ResultDuplicate {
		return res, err
	}

	entry.ID = fmt.Sprintf("%s_%s", entry.ID, uuid.NewString()[:8])
	return r.Add(entry)
}

// Find returns a read-only snapshot of the entry, or nil if absent.
func (r *Registry) Find(id string) *WorkflowEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil
	}
	return e.Clone()
}

// UpdateState transitions id to newState. If newState is terminal and
// end_time is unset, end_time is stamped now. A terminal entry is never
// moved to a different state: calling UpdateState on one is a no-op that
// still returns ResultSuccess.
func (r *Registry) UpdateState(id string, newState State) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return ResultNotFound, &argoerrors.NotFoundError{Resource: "workflow", ID: id}
	}

	if e.State.IsTerminal() {
		// Terminal monotonicity (spec.md §8 property 2): no further
		// state changes once terminal, except via Remove.
		return ResultSuccess, nil
	}

	e.State = newState
	e.LastActive = r.now().Unix()
	if newState.IsTerminal() && e.EndTime == 0 {
		e.EndTime = r.now().Unix()
	}
	r.scheduleSaveLocked()
	return ResultSuccess, nil
}

// UpdateProgress records current_step/total_steps/step_name. Idempotent
// and monotonic per spec.md §5 ("Progress reports ... monotonically
// non-decreasing"); a report with a lower current_step than already
// recorded is ignored.
func (r *Registry) UpdateProgress(id string, currentStep, totalSteps int, stepName string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return ResultNotFound, &argoerrors.NotFoundError{Resource: "workflow", ID: id}
	}

	if currentStep < e.CurrentStep {
		return ResultSuccess, nil
	}

	e.CurrentStep = currentStep
	if totalSteps > 0 {
		e.TotalSteps = totalSteps
	}
	if stepName != "" {
		e.LastStepName = stepName
	}
	e.LastActive = r.now().Unix()
	r.scheduleSaveLocked()
	return ResultSuccess, nil
}

// SetExecutor records the pid and start time of a freshly spawned
// executor, transitioning the entry to RUNNING.
func (r *Registry) SetExecutor(id string, pid int) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return ResultNotFound, &argoerrors.NotFoundError{Resource: "workflow", ID: id}
	}

	e.ExecutorPID = pid
	e.StartTime = r.now().Unix()
	e.State = StateRunning
	e.LastActive = e.StartTime
	r.scheduleSaveLocked()
	return ResultSuccess, nil
}

// Finalize sets exit code and terminal state together (the reaper's single
// write point for a reaped child).
func (r *Registry) Finalize(id string, state State, exitCode int) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return ResultNotFound, &argoerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	if e.State.IsTerminal() {
		return ResultSuccess, nil
	}

	e.State = state
	e.ExitCode = exitCode
	now := r.now().Unix()
	e.LastActive = now
	if e.EndTime == 0 {
		e.EndTime = now
	}
	r.scheduleSaveLocked()
	return ResultSuccess, nil
}

// RequestRetry moves a failed-but-retryable entry back to PENDING,
// recording the attempt. Called only from the monitor tick (see
// SPEC_FULL.md's Open Question (a) resolution: this is the sole place
// retry/backoff is invoked).
func (r *Registry) RequestRetry(id string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return ResultNotFound, &argoerrors.NotFoundError{Resource: "workflow", ID: id}
	}

	e.State = StatePending
	e.RetryCount++
	e.LastRetryTime = r.now().Unix()
	e.ExecutorPID = 0
	e.LastActive = e.LastRetryTime
	r.scheduleSaveLocked()
	return ResultSuccess, nil
}

// RequestAbandon sets the abandon_requested flag, consulted by the monitor
// to decide the terminal state once the executor is reaped.
func (r *Registry) RequestAbandon(id string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return ResultNotFound, &argoerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	e.AbandonRequested = true
	r.scheduleSaveLocked()
	return ResultSuccess, nil
}

// RequestTimeout sets the timeout_requested flag, consulted by the monitor
// so a timeout-killed executor's exit is finalized FAILED rather than
// retried once the reaper observes it exit.
func (r *Registry) RequestTimeout(id string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return ResultNotFound, &argoerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	e.TimeoutRequested = true
	r.scheduleSaveLocked()
	return ResultSuccess, nil
}

// Remove deletes an entry outright.
func (r *Registry) Remove(id string) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return ResultNotFound
	}
	delete(r.entries, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.scheduleSaveLocked()
	return ResultSuccess
}

// List returns a caller-owned snapshot of every entry, ordered by
// insertion.
func (r *Registry) List() []*WorkflowEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*WorkflowEntry, 0, len(r.order))
	for _, id := range r.order {
		if e, ok := r.entries[id]; ok {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Count returns the number of entries in the given state. Pass "" to
// count all entries.
func (r *Registry) Count(state State) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state == "" {
		return len(r.entries)
	}
	n := 0
	for _, e := range r.entries {
		if e.State == state {
			n++
		}
	}
	return n
}

// Prune removes terminal entries whose end_time predates olderThan.
func (r *Registry) Prune(olderThan time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := olderThan.Unix()
	removed := 0
	remaining := r.order[:0]
	for _, id := range r.order {
		e := r.entries[id]
		if e.State.IsTerminal() && e.EndTime > 0 && e.EndTime < cutoff {
			delete(r.entries, id)
			removed++
			continue
		}
		remaining = append(remaining, id)
	}
	r.order = remaining
	if removed > 0 {
		r.scheduleSaveLocked()
	}
	return removed
}

// scheduleSaveLocked marks the registry dirty. Caller must hold r.mu.
func (r *Registry) scheduleSaveLocked() {
	r.dirty = true
	r.lastModified = r.now()
}

// FlushIfDirty persists the registry to disk if it has been modified since
// the last save, coalescing any number of mutations into a single write.
func (r *Registry) FlushIfDirty() error {
	r.mu.Lock()
	if !r.dirty || r.path == "" {
		r.mu.Unlock()
		return nil
	}

	file := persistedFile{LastUpdated: r.now().Unix()}
	for _, id := range r.order {
		file.Workflows = append(file.Workflows, r.entries[id])
	}
	r.dirty = false
	path := r.path
	r.mu.Unlock()

	return save(path, &file)
}

func save(path string, file *persistedFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return &argoerrors.ResourceError{Kind: "file", Message: "create registry directory", Cause: err}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return &argoerrors.ProtocolError{Location: "registry", Message: "marshal", Cause: err}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return &argoerrors.ResourceError{Kind: "file", Message: "write registry temp file", Cause: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &argoerrors.ResourceError{Kind: "file", Message: "rename registry file", Cause: err}
	}
	return nil
}

// Load populates the registry from path. A missing file is not an error
// (fresh daemon start). A file that does not parse as a whole (for
// example, one truncated mid-write) is discarded with a warning and the
// registry starts empty; entries before the damaged point are not
// recovered. Individual entries missing required fields (id, template)
// are dropped with a warning returned via the warn callback.
func (r *Registry) Load(warn func(msg string)) error {
	if r.path == "" {
		return nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &argoerrors.ResourceError{Kind: "file", Message: "read registry", Cause: err}
	}

	var file persistedFile
	if err := json.Unmarshal(data, &file); err != nil {
		if warn != nil {
			warn(fmt.Sprintf("registry file truncated or malformed, discarding: %v", err))
		}
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]*WorkflowEntry, len(file.Workflows))
	r.order = r.order[:0]
	for _, e := range file.Workflows {
		if e == nil || e.ID == "" || e.TemplateName == "" {
			if warn != nil {
				warn("dropping registry entry missing required field (id/template)")
			}
			continue
		}
		r.entries[e.ID] = e
		r.order = append(r.order, e.ID)
	}

	sort.SliceStable(r.order, func(i, j int) bool {
		return r.entries[r.order[i]].CreatedAt < r.entries[r.order[j]].CreatedAt
	})

	return nil
}
