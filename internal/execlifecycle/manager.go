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
	"context"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ckoons/argo/internal/checkpoint"
	"github.com/ckoons/argo/internal/config"
	"github.com/ckoons/argo/internal/execlog"
	"github.com/ckoons/argo/internal/exitqueue"
	"github.com/ckoons/argo/internal/metrics"
	"github.com/ckoons/argo/internal/registry"
	"github.com/ckoons/argo/pkg/argoerrors"
)

// Manager ties the registry, the spawner, and the SIGCHLD reaper together
// into the daemon's monitor loop — spec.md §4.4's "reconcile pending work
// against running executors on every tick" component. It owns the sole
// call sites for retry/backoff (RequestRetry) and timeout escalation.
type Manager struct {
	cfg      config.Config
	reg      *registry.Registry
	spawner  *Spawner
	queue    *exitqueue.Queue
	reaper   *Reaper
	log      *slog.Logger
	branches map[string]string // workflow id -> template path, held for respawn-on-retry
	ckpt     *checkpoint.Manager
	sem      *semaphore.Weighted // bounds executors running concurrently to cfg.MaxConcurrentWorkflows
}

// NewManager wires a manager from its dependencies. cfg.DaemonURL() is the
// base URL handed to each executor so it can call back into the API. A
// checkpoint directory that fails to create (e.g. unwritable ARGO_ROOT)
// disables checkpointing rather than failing daemon startup — pause/resume
// still work via signals alone.
func NewManager(cfg config.Config, reg *registry.Registry, log *slog.Logger) *Manager {
	q := exitqueue.New(0)
	logPolicy := execlog.Policy{
		MaxBytes: cfg.LogRotateMaxBytes,
		Keep:     cfg.LogRotateKeep,
		MaxAge:   cfg.LogRotateMaxAge,
	}
	ckpt, err := checkpoint.NewManager(cfg.CheckpointDir)
	if err != nil {
		log.Warn("checkpoint manager disabled", "error", err)
		ckpt = nil
	}
	maxConcurrent := cfg.MaxConcurrentWorkflows
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Manager{
		cfg:      cfg,
		reg:      reg,
		spawner:  NewSpawner(cfg.ExecutorBinary, logPolicy),
		queue:    q,
		reaper:   NewReaper(q),
		log:      log,
		branches: make(map[string]string),
		ckpt:     ckpt,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Start installs the SIGCHLD reaper. Call Run in a goroutine for the
// periodic tick.
func (m *Manager) Start() {
	m.reaper.Start()
}

// Stop uninstalls the reaper.
func (m *Manager) Stop() {
	m.reaper.Stop()
}

// StartWorkflowRequest is what the daemon API hands the manager to launch
// a new executor.
type StartWorkflowRequest struct {
	ID           string
	TemplatePath string
	TemplateName string
	InstanceName string
	Branch       string
	Environment  string
	ExtraEnv     map[string]string
	TimeoutSec   int
	MaxRetries   int
}

// Launch registers a PENDING entry (if not already present) and spawns its
// executor, transitioning it to RUNNING. A request that leaves TimeoutSec
// or MaxRetries unset (<= 0) falls back to cfg.DefaultTimeout/cfg.MaxRetries
// — callers such as handleStart never set these, so without a default
// every normally-started workflow would carry TimeoutSeconds == 0 and
// never be eligible for Tick's timeout escalation.
func (m *Manager) Launch(req StartWorkflowRequest) (*registry.WorkflowEntry, error) {
	if m.reg.Find(req.ID) == nil {
		timeoutSec := req.TimeoutSec
		if timeoutSec <= 0 {
			timeoutSec = int(m.cfg.DefaultTimeout.Seconds())
		}
		maxRetries := req.MaxRetries
		if maxRetries <= 0 {
			maxRetries = m.cfg.MaxRetries
		}
		entry := &registry.WorkflowEntry{
			ID:             req.ID,
			TemplateName:   req.TemplateName,
			InstanceName:   req.InstanceName,
			ActiveBranch:   req.Branch,
			Environment:    req.Environment,
			State:          registry.StatePending,
			TimeoutSeconds: timeoutSec,
			MaxRetries:     maxRetries,
		}
		if _, err := m.reg.AddWithFallbackID(entry); err != nil {
			return nil, err
		}
	}

	if !m.sem.TryAcquire(1) {
		return nil, &argoerrors.ResourceError{Kind: "capacity", Message: "max concurrent workflows reached"}
	}

	m.branches[req.ID] = req.TemplatePath

	pid, err := m.spawner.Spawn(SpawnRequest{
		WorkflowID:   req.ID,
		TemplatePath: req.TemplatePath,
		Branch:       req.Branch,
		ExtraEnv:     req.ExtraEnv,
		LogPath:      filepath.Join(m.cfg.LogDir, req.ID+".log"),
		DaemonURL:    m.cfg.DaemonURL(),
	})
	if err != nil {
		m.sem.Release(1)
		_, _ = m.reg.Finalize(req.ID, registry.StateFailed, registry.ExitGenericFailure)
		metrics.RecordTerminal(string(registry.StateFailed))
		return nil, err
	}
	metrics.ExecutorSpawns.Inc()

	if _, err := m.reg.SetExecutor(req.ID, pid); err != nil {
		return nil, err
	}
	return m.reg.Find(req.ID), nil
}

// Pause signals SIGUSR1 to the workflow's executor and, when a checkpoint
// manager is configured, persists enough of the registry entry to resume
// across a daemon restart.
func (m *Manager) Pause(id string) error {
	e := m.reg.Find(id)
	if e == nil {
		return notFound(id)
	}
	if e.ExecutorPID == 0 {
		return nil
	}
	if err := Pause(e.ExecutorPID); err != nil {
		return err
	}
	if m.ckpt != nil {
		cp := checkpoint.Checkpoint{
			WorkflowID:   id,
			TemplatePath: m.branches[id],
			Branch:       e.ActiveBranch,
			CurrentStep:  e.CurrentStep,
			TotalSteps:   e.TotalSteps,
			IsPaused:     true,
		}
		if err := m.ckpt.Save(cp); err != nil {
			m.log.Warn("checkpoint save failed", "workflow_id", id, "error", err)
		}
	}
	return nil
}

// Resume signals SIGUSR2 to the workflow's executor and discards its
// checkpoint, if any — the workflow is live again, so a stale checkpoint
// must never be replayed against it.
func (m *Manager) Resume(id string) error {
	e := m.reg.Find(id)
	if e == nil {
		return notFound(id)
	}
	if e.ExecutorPID == 0 {
		return nil
	}
	if err := Resume(e.ExecutorPID); err != nil {
		return err
	}
	if m.ckpt != nil {
		if err := m.ckpt.Delete(id); err != nil {
			m.log.Warn("checkpoint delete failed", "workflow_id", id, "error", err)
		}
	}
	return nil
}

// Abandon marks abandon_requested; the monitor finalizes the entry as
// ABANDONED once its executor is reaped (or immediately if it is not
// currently running).
func (m *Manager) Abandon(id string) error {
	e := m.reg.Find(id)
	if e == nil {
		return notFound(id)
	}
	if _, err := m.reg.RequestAbandon(id); err != nil {
		return err
	}
	if e.ExecutorPID != 0 {
		return GracefulShutdown(e.ExecutorPID, m.cfg.ShutdownGrace)
	}
	_, err := m.reg.Finalize(id, registry.StateAbandoned, registry.ExitGenericFailure)
	if err == nil {
		metrics.RecordTerminal(string(registry.StateAbandoned))
	}
	return err
}

// Tick performs one monitor pass: drain reaped exits, finalize or retry
// each, and escalate timeouts. It is the sole call site for both
// RequestRetry and timeout-driven termination, per SPEC_FULL.md's
// resolution of the retry/backoff uniformity open question.
func (m *Manager) Tick(now time.Time) {
	if dropped := m.queue.Dropped(); dropped > 0 {
		metrics.ExitQueueDropped.Add(float64(dropped))
		ReconcileMissing(m.queue)
		m.queue.ResetDropped()
	}

	for _, exit := range m.queue.DrainAll() {
		m.handleExit(exit, now)
	}

	for _, e := range m.reg.List() {
		if e.State != registry.StateRunning {
			continue
		}
		if e.TimeoutSeconds <= 0 || e.StartTime == 0 {
			continue
		}
		deadline := time.Unix(e.StartTime, 0).Add(time.Duration(e.TimeoutSeconds) * time.Second)
		if now.After(deadline) {
			m.escalateTimeout(e)
		}
	}

	for _, e := range m.reg.List() {
		// RetryCount > 0 distinguishes an entry RequestRetry already
		// advanced (lost the semaphore race on an earlier tick) from a
		// freshly Launch-created entry still mid-spawn on another
		// goroutine — only the former is safe to respawn here.
		if e.State == registry.StatePending && e.ExecutorPID == 0 && e.RetryCount > 0 {
			m.spawnPending(e.ID, e)
		}
	}

	metrics.RegistrySize.Set(float64(m.reg.Count("")))
}

// spawnPending retries a PENDING entry left without a free capacity slot on
// an earlier tick (retryAfterBackoff already advanced retry_count/
// last_retry_time, so this only needs the semaphore and the spawn itself).
func (m *Manager) spawnPending(id string, e *registry.WorkflowEntry) {
	path, ok := m.branches[id]
	if !ok {
		return
	}
	if !m.sem.TryAcquire(1) {
		return
	}

	pid, err := m.spawner.Spawn(SpawnRequest{
		WorkflowID:   id,
		TemplatePath: path,
		Branch:       e.ActiveBranch,
		LogPath:      filepath.Join(m.cfg.LogDir, id+".log"),
		DaemonURL:    m.cfg.DaemonURL(),
	})
	if err != nil {
		m.sem.Release(1)
		m.log.Error("deferred respawn failed", "workflow_id", id, "error", err)
		_, _ = m.reg.Finalize(id, registry.StateFailed, registry.ExitGenericFailure)
		metrics.RecordTerminal(string(registry.StateFailed))
		return
	}
	metrics.ExecutorSpawns.Inc()
	_, _ = m.reg.SetExecutor(id, pid)
}

func (m *Manager) handleExit(exit exitqueue.Entry, now time.Time) {
	id := m.idForPID(exit.PID)
	if id == "" {
		return
	}

	e := m.reg.Find(id)
	if e == nil {
		return
	}

	if e.AbandonRequested {
		m.sem.Release(1)
		_, _ = m.reg.Finalize(id, registry.StateAbandoned, exit.ExitCode)
		metrics.RecordTerminal(string(registry.StateAbandoned))
		delete(m.branches, id)
		return
	}

	if e.TimeoutRequested {
		// escalateTimeout already killed this executor; finalize FAILED
		// with ExitTimeout unconditionally — spec.md §4.2 names no retry
		// edge out of a timeout, regardless of retry_count/max_retries.
		m.sem.Release(1)
		_, _ = m.reg.Finalize(id, registry.StateFailed, registry.ExitTimeout)
		metrics.RecordTerminal(string(registry.StateFailed))
		delete(m.branches, id)
		return
	}

	if exit.ExitCode == registry.ExitSuccess {
		m.sem.Release(1)
		_, _ = m.reg.Finalize(id, registry.StateCompleted, exit.ExitCode)
		metrics.RecordTerminal(string(registry.StateCompleted))
		delete(m.branches, id)
		return
	}

	if e.RetryCount < e.MaxRetries && exit.ExitCode != registry.ExitNotFound {
		m.sem.Release(1)
		m.retryAfterBackoff(id, e, now)
		return
	}

	m.sem.Release(1)
	_, _ = m.reg.Finalize(id, registry.StateFailed, exit.ExitCode)
	metrics.RecordTerminal(string(registry.StateFailed))
	delete(m.branches, id)
}

// retryAfterBackoff respawns id once RETRY_DELAY_BASE*2^retry_count has
// elapsed since last_retry_time; otherwise it leaves the entry PENDING for
// a later tick to pick up. retry_count and last_retry_time are updated in
// RequestRetry, never anywhere else.
func (m *Manager) retryAfterBackoff(id string, e *registry.WorkflowEntry, now time.Time) {
	delay := backoffDelay(m.cfg.RetryDelayBase, e.RetryCount)
	if e.LastRetryTime > 0 && now.Before(time.Unix(e.LastRetryTime, 0).Add(delay)) {
		return
	}

	if _, err := m.reg.RequestRetry(id); err != nil {
		m.log.Error("retry transition failed", "workflow_id", id, "error", err)
		return
	}

	path, ok := m.branches[id]
	if !ok {
		_, _ = m.reg.Finalize(id, registry.StateFailed, registry.ExitGenericFailure)
		metrics.RecordTerminal(string(registry.StateFailed))
		return
	}

	if !m.sem.TryAcquire(1) {
		// No free slot this tick; retry_count/last_retry_time are already
		// updated, so the entry simply waits PENDING for a later tick once
		// another workflow's executor exits and frees capacity.
		return
	}

	pid, err := m.spawner.Spawn(SpawnRequest{
		WorkflowID:   id,
		TemplatePath: path,
		Branch:       e.ActiveBranch,
		LogPath:      filepath.Join(m.cfg.LogDir, id+".log"),
		DaemonURL:    m.cfg.DaemonURL(),
	})
	if err != nil {
		m.sem.Release(1)
		m.log.Error("retry respawn failed", "workflow_id", id, "error", err)
		_, _ = m.reg.Finalize(id, registry.StateFailed, registry.ExitGenericFailure)
		metrics.RecordTerminal(string(registry.StateFailed))
		return
	}
	metrics.ExecutorSpawns.Inc()
	_, _ = m.reg.SetExecutor(id, pid)
}

// escalateTimeout kills a runaway executor: SIGTERM, grace, SIGKILL. The
// registry is finalized TIMEOUT-failed only after the reaper observes the
// process actually exit, so state stays consistent with the exit queue.
// timeout_requested is set first so handleExit finalizes the resulting
// exit as FAILED with ExitTimeout unconditionally, the same way
// abandon_requested steers handleExit's ABANDONED branch.
func (m *Manager) escalateTimeout(e *registry.WorkflowEntry) {
	if e.ExecutorPID == 0 {
		return
	}
	if _, err := m.reg.RequestTimeout(e.ID); err != nil {
		m.log.Error("timeout flag set failed", "workflow_id", e.ID, "error", err)
		return
	}
	m.log.Warn("workflow exceeded timeout, terminating", "workflow_id", e.ID, "pid", e.ExecutorPID)
	if err := GracefulShutdown(e.ExecutorPID, m.cfg.ShutdownGrace); err != nil {
		m.log.Error("timeout shutdown failed", "workflow_id", e.ID, "error", err)
	}
}

func (m *Manager) idForPID(pid int) string {
	for _, e := range m.reg.List() {
		if e.ExecutorPID == pid {
			return e.ID
		}
	}
	return ""
}

func backoffDelay(base time.Duration, retryCount int) time.Duration {
	factor := math.Pow(2, float64(retryCount))
	return time.Duration(float64(base) * factor)
}

func notFound(id string) error {
	return &argoerrors.NotFoundError{Resource: "workflow", ID: id}
}

// Run blocks, ticking every interval until ctx is canceled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Tick(time.Now())
		case <-ctx.Done():
			return
		}
	}
}
