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

// Package execlifecycle spawns and supervises executor child processes:
// fork+exec with a sanitized environment, SIGUSR1/SIGUSR2/SIGTERM signal
// plumbing, timeout escalation, and retry-with-backoff — the "Executor
// Lifecycle" component of spec.md §4.4.
package execlifecycle

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/ckoons/argo/internal/config"
	"github.com/ckoons/argo/internal/execlog"
	"github.com/ckoons/argo/pkg/argoerrors"
)

// Spawner launches detached executor processes in their own process
// group, stdout/stderr redirected to a per-workflow log file, stdin
// closed (the executor never touches a terminal).
type Spawner struct {
	ExecutorBinary string
	BaseEnv        []string
	LogPolicy      execlog.Policy
}

// NewSpawner creates a spawner using the daemon's own environment as the
// base, filtered through the denylist, rotating logs per policy before
// each spawn.
func NewSpawner(executorBinary string, logPolicy execlog.Policy) *Spawner {
	return &Spawner{
		ExecutorBinary: executorBinary,
		BaseEnv:        sanitizedEnviron(),
		LogPolicy:      logPolicy,
	}
}

func sanitizedEnviron() []string {
	var out []string
	for _, kv := range os.Environ() {
		key := kv
		if idx := indexByte(kv, '='); idx >= 0 {
			key = kv[:idx]
		}
		if config.IsDenied(key) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// SpawnRequest carries everything needed to spawn one executor.
type SpawnRequest struct {
	WorkflowID   string
	TemplatePath string
	Branch       string
	ExtraEnv     map[string]string
	LogPath      string
	DaemonURL    string
}

// Spawn launches the executor binary for one workflow and returns its
// PID. The child's stdout+stderr are appended to req.LogPath; stdin is
// closed. The child gets its own process group (Setpgid) so the daemon can
// signal the whole group, and is fully detached from any controlling
// terminal.
func (s *Spawner) Spawn(req SpawnRequest) (int, error) {
	if err := ValidateScriptPath(req.TemplatePath); err != nil {
		return 0, err
	}
	if err := ValidateEnvOverrides(req.ExtraEnv, func(k string) bool {
		return argoDenied(k)
	}); err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(req.LogPath), 0o700); err != nil {
		return 0, &argoerrors.ResourceError{Kind: "file", Message: "create log directory", Cause: err}
	}
	if err := execlog.RotateIfNeeded(req.LogPath, s.LogPolicy); err != nil {
		return 0, err
	}
	logFile, err := os.OpenFile(req.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return 0, &argoerrors.ResourceError{Kind: "file", Message: "open executor log", Cause: err}
	}
	defer logFile.Close()

	envp := append([]string{}, s.BaseEnv...)
	envp = append(envp,
		fmt.Sprintf("ARGO_WORKFLOW_ID=%s", req.WorkflowID),
		fmt.Sprintf("ARGO_TEMPLATE_PATH=%s", req.TemplatePath),
		fmt.Sprintf("ARGO_BRANCH=%s", req.Branch),
		fmt.Sprintf("ARGO_DAEMON_URL=%s", req.DaemonURL),
		fmt.Sprintf("ARGO_LOG_PATH=%s", req.LogPath),
	)
	for k, v := range req.ExtraEnv {
		envp = append(envp, fmt.Sprintf("%s=%s", k, v))
	}

	cmd := exec.Command(s.ExecutorBinary, req.WorkflowID)
	cmd.Env = envp
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	if err := cmd.Start(); err != nil {
		return 0, &argoerrors.ResourceError{Kind: "fork", Message: "start executor", Cause: err}
	}

	pid := cmd.Process.Pid

	// The daemon does not Wait() on the child directly: exit status is
	// delivered via SIGCHLD and the exit queue (see reaper.go). Release
	// keeps the OS process table entry reapable without this goroutine
	// blocking on it.
	if err := cmd.Process.Release(); err != nil {
		return pid, &argoerrors.ResourceError{Kind: "fork", Message: "release executor handle", Cause: err}
	}

	return pid, nil
}

func argoDenied(k string) bool {
	return config.IsDenied(k)
}
