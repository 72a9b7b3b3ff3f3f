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
	"os"
	"syscall"
	"time"

	"github.com/ckoons/argo/pkg/argoerrors"
)

// IsProcessRunning checks whether pid exists by sending the null signal.
func IsProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// SendSignal sends sig to pid.
func SendSignal(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return &argoerrors.ResourceError{Kind: "socket", Message: "find process", Cause: err}
	}
	if err := proc.Signal(sig); err != nil {
		return &argoerrors.ResourceError{Kind: "socket", Message: "send signal", Cause: err}
	}
	return nil
}

// WaitForExit polls until pid no longer exists or timeout elapses.
func WaitForExit(pid int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !IsProcessRunning(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return &argoerrors.TimeoutError{Operation: "process exit", Duration: timeout}
}

// Pause sends SIGUSR1 (spec.md §4.4: step driver sets its paused flag and
// checkpoints). Sending SIGUSR1 to an already-paused executor is a no-op
// on the receiving side (spec.md §8 property 6); this function only
// delivers the signal.
func Pause(pid int) error {
	return SendSignal(pid, syscall.SIGUSR1)
}

// Resume sends SIGUSR2, clearing the executor's paused flag.
func Resume(pid int) error {
	return SendSignal(pid, syscall.SIGUSR2)
}

// GracefulShutdown sends SIGTERM and waits up to grace for the process to
// exit; if still alive, escalates to SIGKILL per spec.md §4.4's 2s grace
// window.
func GracefulShutdown(pid int, grace time.Duration) error {
	if !IsProcessRunning(pid) {
		return nil
	}
	if err := SendSignal(pid, syscall.SIGTERM); err != nil {
		return err
	}
	if err := WaitForExit(pid, grace); err == nil {
		return nil
	}
	if err := SendSignal(pid, syscall.SIGKILL); err != nil {
		return err
	}
	return WaitForExit(pid, 5*time.Second)
}
