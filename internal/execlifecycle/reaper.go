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
	"os/signal"
	"syscall"
	"time"

	"github.com/ckoons/argo/internal/exitqueue"
)

// Reaper installs the daemon's SIGCHLD producer: on every SIGCHLD
// notification it drains every reapable child via a non-blocking
// waitpid(-1, WNOHANG) loop and pushes each exit onto the exit queue. This
// is the Go-idiomatic instance of spec.md §4.1's async-signal-safe
// producer — Go delivers signals to a dedicated runtime goroutine via a
// channel rather than running user code inside the actual signal handler,
// so the hand-off itself is already safe; Queue.Push stays allocation-free
// and lock-free regardless, so the same code would remain correct if ever
// called from a true OS-level handler.
type Reaper struct {
	queue  *exitqueue.Queue
	osSig  chan os.Signal
	notify chan struct{}
	stop   chan struct{}
}

// NewReaper creates a reaper that feeds q.
func NewReaper(q *exitqueue.Queue) *Reaper {
	return &Reaper{
		queue:  q,
		osSig:  make(chan os.Signal, 8),
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// Start installs the SIGCHLD handler and begins draining in the
// background. Call Stop to uninstall.
func (r *Reaper) Start() {
	signal.Notify(r.osSig, syscall.SIGCHLD)
	go r.relay()
	go r.drainLoop()
}

// relay coalesces bursts of SIGCHLD into a single pending drain request:
// the drain loop always does a full WNOHANG sweep, so multiple signals
// that arrive before the sweep runs need not each be serviced separately.
func (r *Reaper) relay() {
	for {
		select {
		case <-r.osSig:
			select {
			case r.notify <- struct{}{}:
			default:
			}
		case <-r.stop:
			return
		}
	}
}

func (r *Reaper) drainLoop() {
	for {
		select {
		case <-r.notify:
			r.reapAvailable()
		case <-r.stop:
			return
		}
	}
}

// reapAvailable repeatedly calls waitpid(-1, WNOHANG) until no more
// zombie children are immediately reapable, pushing each exit onto the
// queue.
func (r *Reaper) reapAvailable() {
	for {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		r.queue.Push(pid, decodeExitCode(ws), time.Now().Unix())
	}
}

// Stop uninstalls the SIGCHLD handler.
func (r *Reaper) Stop() {
	signal.Stop(r.osSig)
	close(r.stop)
}

// ReconcileMissing is called by the monitor when the queue's dropped
// counter is nonzero: it scans waitpid(-1, WNOHANG) defensively for
// children the ring buffer had no room to record.
func ReconcileMissing(q *exitqueue.Queue) {
	for {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		q.Push(pid, decodeExitCode(ws), time.Now().Unix())
	}
}

func decodeExitCode(ws syscall.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return 128 + int(ws.Signal())
	default:
		return 1
	}
}
