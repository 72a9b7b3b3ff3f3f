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
	"path/filepath"
	"strings"

	"github.com/ckoons/argo/pkg/argoerrors"
)

// shellMetacharacters are rejected outright in a template/script path, per
// spec.md §4.4 step 1: "no shell metacharacters from an allowlist of
// printable ASCII excluding ; & | $ ` \n < > ".
const shellMetacharacters = ";&|$`\n<>"

// ValidateScriptPath enforces spec.md §4.4's spawn-time path checks: must
// be absolute, must not contain a ".." segment, and must not contain any
// shell metacharacter. No process is spawned if this returns an error.
func ValidateScriptPath(path string) error {
	if path == "" {
		return &argoerrors.ValidationError{Field: "script", Message: "must not be empty"}
	}
	if !filepath.IsAbs(path) {
		return &argoerrors.ValidationError{Field: "script", Message: "must be an absolute path"}
	}
	for _, seg := range strings.Split(path, string(filepath.Separator)) {
		if seg == ".." {
			return &argoerrors.ValidationError{Field: "script", Message: "must not contain .. segments"}
		}
	}
	if strings.ContainsAny(path, shellMetacharacters) {
		return &argoerrors.ValidationError{Field: "script", Message: "contains disallowed shell metacharacters"}
	}
	return nil
}

// ValidateEnvOverrides rejects any key that matches the env denylist
// (LD_PRELOAD, LD_LIBRARY_PATH, PATH, DYLD_*, IFS).
func ValidateEnvOverrides(env map[string]string, isDenied func(string) bool) error {
	for k := range env {
		if isDenied(k) {
			return &argoerrors.ValidationError{Field: "env", Message: "overriding " + k + " is not permitted"}
		}
	}
	return nil
}
