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

// Package execlog rotates the per-workflow log file a spawned executor's
// stdout/stderr are redirected into, per spec.md §6's
// "~/.argo/logs/{id}.log, rotated at 50 MiB, <= 5 kept, <= 7 days".
// Rotation runs at spawn time, immediately before a fresh executor is
// launched against the same workflow id (a retry respawn, or a brand new
// run reusing a pruned id) — the one point the log file has no open
// writer.
package execlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ckoons/argo/pkg/argoerrors"
)

// Policy bounds how a log file is rotated.
type Policy struct {
	MaxBytes int64
	Keep     int
	MaxAge   time.Duration
}

// RotateIfNeeded renames path to path.1, path.2, ... (the existing
// numbered backups each shift up by one) when path is at or over
// policy.MaxBytes, then prunes backups beyond policy.Keep or older than
// policy.MaxAge. A path that does not yet exist, or is under the size
// threshold, is left untouched.
func RotateIfNeeded(path string, policy Policy) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &argoerrors.ResourceError{Kind: "file", Message: "stat log for rotation", Cause: err}
	}
	if info.Size() < policy.MaxBytes {
		return nil
	}

	if err := shiftBackups(path, policy.Keep); err != nil {
		return err
	}
	return pruneOld(path, policy)
}

// shiftBackups renames path.N-1 -> path.N down to path -> path.1, dropping
// anything that would land beyond keep.
func shiftBackups(path string, keep int) error {
	if keep <= 0 {
		return os.Remove(path)
	}
	oldest := fmt.Sprintf("%s.%d", path, keep)
	if _, err := os.Stat(oldest); err == nil {
		if err := os.Remove(oldest); err != nil {
			return &argoerrors.ResourceError{Kind: "file", Message: "remove oldest log backup", Cause: err}
		}
	}
	for n := keep - 1; n >= 1; n-- {
		src := fmt.Sprintf("%s.%d", path, n)
		dst := fmt.Sprintf("%s.%d", path, n+1)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return &argoerrors.ResourceError{Kind: "file", Message: "shift log backup", Cause: err}
		}
	}
	if err := os.Rename(path, path+".1"); err != nil {
		return &argoerrors.ResourceError{Kind: "file", Message: "rotate log", Cause: err}
	}
	return nil
}

// pruneOld removes numbered backups of path older than policy.MaxAge.
func pruneOld(path string, policy Policy) error {
	if policy.MaxAge <= 0 {
		return nil
	}
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return &argoerrors.ResourceError{Kind: "file", Message: "read log directory", Cause: err}
	}

	cutoff := time.Now().Add(-policy.MaxAge)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, base+".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}
	return nil
}

// Backups lists path's numbered backups, oldest first, for diagnostics.
func Backups(path string) []string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), base+".") {
			out = append(out, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}
