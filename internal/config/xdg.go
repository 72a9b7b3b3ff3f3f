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

package config

import (
	"os"
	"path/filepath"
)

// DefaultConfigPath returns the conventional location for an optional
// argo.yaml overlay: $ARGO_ROOT/argo.yaml if ARGO_ROOT is set, otherwise
// ~/.argo/argo.yaml.
func DefaultConfigPath() string {
	if root := os.Getenv("ARGO_ROOT"); root != "" {
		return filepath.Join(root, "argo.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "argo.yaml"
	}
	return filepath.Join(home, ".argo", "argo.yaml")
}

// EnsureDir creates dir with mode 0700 if it does not already exist.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o700)
}
