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

package execlifecycle

import (
	"log/slog"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckoons/argo/internal/config"
	"github.com/ckoons/argo/internal/exitqueue"
	"github.com/ckoons/argo/internal/registry"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.Default()
	cfg.LogDir = t.TempDir()
	cfg.CheckpointDir = t.TempDir()
	reg := registry.New("")
	return NewManager(cfg, reg, slog.Default())
}

func TestBackoffDelayDoubles(t *testing.T) {
	base := 2 * time.Second
	assert.Equal(t, 2*time.Second, backoffDelay(base, 0))
	assert.Equal(t, 4*time.Second, backoffDelay(base, 1))
	assert.Equal(t, 8*time.Second, backoffDelay(base, 2))
}

func TestHandleExitSuccessFinalizesCompleted(t *testing.T) {
	m := newTestManager(t)
	_, err := m.reg.Add(&registry.WorkflowEntry{ID: "wf_1", TemplateName: "fix_bug", State: registry.StatePending})
	require.NoError(t, err)
	_, err = m.reg.SetExecutor("wf_1", 4242)
	require.NoError(t, err)
	require.True(t, m.sem.TryAcquire(1))

	m.handleExit(exitqueue.Entry{PID: 4242, ExitCode: registry.ExitSuccess}, time.Now())

	got := m.reg.Find("wf_1")
	require.NotNil(t, got)
	assert.Equal(t, registry.StateCompleted, got.State)
}

func TestHandleExitAbandonRequestedWinsOverExitCode(t *testing.T) {
	m := newTestManager(t)
	_, err := m.reg.Add(&registry.WorkflowEntry{ID: "wf_1", TemplateName: "fix_bug", State: registry.StatePending})
	require.NoError(t, err)
	_, err = m.reg.SetExecutor("wf_1", 4242)
	require.NoError(t, err)
	_, err = m.reg.RequestAbandon("wf_1")
	require.NoError(t, err)
	require.True(t, m.sem.TryAcquire(1))

	m.handleExit(exitqueue.Entry{PID: 4242, ExitCode: registry.ExitSuccess}, time.Now())

	got := m.reg.Find("wf_1")
	require.NotNil(t, got)
	assert.Equal(t, registry.StateAbandoned, got.State)
}

func TestHandleExitFailureExhaustedRetriesFinalizesFailed(t *testing.T) {
	m := newTestManager(t)
	_, err := m.reg.Add(&registry.WorkflowEntry{
		ID: "wf_1", TemplateName: "fix_bug", State: registry.StatePending,
		RetryCount: 3, MaxRetries: 3,
	})
	require.NoError(t, err)
	_, err = m.reg.SetExecutor("wf_1", 4242)
	require.NoError(t, err)
	require.True(t, m.sem.TryAcquire(1))

	m.handleExit(exitqueue.Entry{PID: 4242, ExitCode: 1}, time.Now())

	got := m.reg.Find("wf_1")
	require.NotNil(t, got)
	assert.Equal(t, registry.StateFailed, got.State)
}

func TestHandleExitTimeoutRequestedFinalizesFailedWithoutRetry(t *testing.T) {
	m := newTestManager(t)
	_, err := m.reg.Add(&registry.WorkflowEntry{
		ID: "wf_1", TemplateName: "fix_bug", State: registry.StateRunning,
		RetryCount: 0, MaxRetries: 3,
	})
	require.NoError(t, err)
	_, err = m.reg.SetExecutor("wf_1", 4242)
	require.NoError(t, err)
	_, err = m.reg.RequestTimeout("wf_1")
	require.NoError(t, err)
	require.True(t, m.sem.TryAcquire(1))

	// SIGTERM-killed exit codes (128+signal) are neither ExitSuccess nor
	// ExitNotFound, so without the timeout_requested check this would fall
	// into the retry branch instead of finalizing FAILED.
	m.handleExit(exitqueue.Entry{PID: 4242, ExitCode: 143}, time.Now())

	got := m.reg.Find("wf_1")
	require.NotNil(t, got)
	assert.Equal(t, registry.StateFailed, got.State)
	assert.Equal(t, registry.ExitTimeout, got.ExitCode)
	assert.Equal(t, 0, got.RetryCount)
}

func TestPauseSavesCheckpointForRunningExecutor(t *testing.T) {
	m := newTestManager(t)
	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	defer cmd.Process.Kill()

	_, err := m.reg.Add(&registry.WorkflowEntry{ID: "wf_1", TemplateName: "fix_bug", State: registry.StateRunning, CurrentStep: 3, TotalSteps: 10})
	require.NoError(t, err)
	_, err = m.reg.SetExecutor("wf_1", cmd.Process.Pid)
	require.NoError(t, err)
	m.branches["wf_1"] = "/templates/fix_bug.json"

	require.NoError(t, m.Pause("wf_1"))

	cp, err := m.ckpt.Load("wf_1")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "wf_1", cp.WorkflowID)
	assert.Equal(t, 3, cp.CurrentStep)
	assert.True(t, cp.IsPaused)

	require.NoError(t, m.Resume("wf_1"))
	cp, err = m.ckpt.Load("wf_1")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestIdForPIDFindsRunningExecutor(t *testing.T) {
	m := newTestManager(t)
	_, err := m.reg.Add(&registry.WorkflowEntry{ID: "wf_1", TemplateName: "fix_bug", State: registry.StatePending})
	require.NoError(t, err)
	_, err = m.reg.SetExecutor("wf_1", 777)
	require.NoError(t, err)

	assert.Equal(t, "wf_1", m.idForPID(777))
	assert.Equal(t, "", m.idForPID(999))
}

func TestLaunchDefaultsTimeoutAndRetriesFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.LogDir = t.TempDir()
	cfg.CheckpointDir = t.TempDir()
	cfg.ExecutorBinary = "/bin/true"
	cfg.DefaultTimeout = 5 * time.Minute
	cfg.MaxRetries = 7
	m := NewManager(cfg, registry.New(""), slog.Default())

	entry, err := m.Launch(StartWorkflowRequest{ID: "wf_1", TemplatePath: "/templates/fix_bug.json"})
	require.NoError(t, err)
	assert.Equal(t, 300, entry.TimeoutSeconds)
	assert.Equal(t, 7, entry.MaxRetries)
}

func TestEscalateTimeoutSetsTimeoutRequestedFlag(t *testing.T) {
	m := newTestManager(t)
	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	defer cmd.Process.Kill()

	_, err := m.reg.Add(&registry.WorkflowEntry{
		ID: "wf_1", TemplateName: "fix_bug", State: registry.StateRunning,
		TimeoutSeconds: 1, StartTime: time.Now().Add(-1 * time.Hour).Unix(),
	})
	require.NoError(t, err)
	_, err = m.reg.SetExecutor("wf_1", cmd.Process.Pid)
	require.NoError(t, err)

	m.escalateTimeout(m.reg.Find("wf_1"))

	got := m.reg.Find("wf_1")
	require.NotNil(t, got)
	assert.True(t, got.TimeoutRequested)
}

func TestLaunchRejectsOverMaxConcurrentWorkflows(t *testing.T) {
	cfg := config.Default()
	cfg.LogDir = t.TempDir()
	cfg.CheckpointDir = t.TempDir()
	cfg.ExecutorBinary = "/bin/true"
	cfg.MaxConcurrentWorkflows = 1
	m := NewManager(cfg, registry.New(""), slog.Default())

	_, err := m.Launch(StartWorkflowRequest{ID: "wf_1", TemplatePath: "/templates/fix_bug.json"})
	require.NoError(t, err)

	_, err = m.Launch(StartWorkflowRequest{ID: "wf_2", TemplatePath: "/templates/fix_bug.json"})
	require.Error(t, err)
}

func TestSpawnPendingRespawnsOnceCapacityFrees(t *testing.T) {
	cfg := config.Default()
	cfg.LogDir = t.TempDir()
	cfg.CheckpointDir = t.TempDir()
	cfg.ExecutorBinary = "/bin/true"
	cfg.MaxConcurrentWorkflows = 1
	m := NewManager(cfg, registry.New(""), slog.Default())
	m.branches["wf_1"] = "/templates/fix_bug.json"

	require.True(t, m.sem.TryAcquire(1)) // simulate another workflow holding the only slot

	_, err := m.reg.Add(&registry.WorkflowEntry{
		ID: "wf_1", TemplateName: "fix_bug", State: registry.StatePending, RetryCount: 1,
	})
	require.NoError(t, err)

	m.Tick(time.Now())
	got := m.reg.Find("wf_1")
	require.NotNil(t, got)
	assert.Equal(t, 0, got.ExecutorPID) // still waiting: no free slot

	m.sem.Release(1) // the other workflow's executor exits
	m.Tick(time.Now())
	got = m.reg.Find("wf_1")
	require.NotNil(t, got)
	assert.NotEqual(t, 0, got.ExecutorPID)
}
